package generator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/goccy/go-json"

	"github.com/mandeep511/lora-forger/pkg/domain"
)

var jsonBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*\\S)\\s*```")

type captionPayload struct {
	Caption  *string `json:"caption"`
	Filename *string `json:"filename"`
}

// parseCaption は応答から JSON を取り出し、caption と filename の両方が揃っていることを確認します。
func parseCaption(raw string) (domain.CaptionResult, error) {
	raw = strings.TrimSpace(raw)
	rawJSON := raw

	if matches := jsonBlockRegex.FindStringSubmatch(raw); len(matches) > 1 {
		rawJSON = matches[1]
	} else {
		first := strings.Index(raw, "{")
		last := strings.LastIndex(raw, "}")
		if first != -1 && last > first {
			rawJSON = raw[first : last+1]
		}
	}

	var p captionPayload
	if err := json.Unmarshal([]byte(rawJSON), &p); err != nil {
		return domain.CaptionResult{}, fmt.Errorf("AIからの応答に含まれるJSONの解析に失敗しました (応答抜粋: %q): %w", truncateString(raw, 200), err)
	}
	if p.Caption == nil || strings.TrimSpace(*p.Caption) == "" {
		return domain.CaptionResult{}, fmt.Errorf("応答に caption が含まれていません (応答抜粋: %q)", truncateString(raw, 200))
	}
	if p.Filename == nil || strings.TrimSpace(*p.Filename) == "" {
		return domain.CaptionResult{}, fmt.Errorf("応答に filename が含まれていません (応答抜粋: %q)", truncateString(raw, 200))
	}
	return domain.CaptionResult{
		Caption:  strings.TrimSpace(*p.Caption),
		Filename: strings.TrimSpace(*p.Filename),
	}, nil
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
