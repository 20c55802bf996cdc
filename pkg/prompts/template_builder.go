package prompts

import (
	"regexp"
	"strings"

	"github.com/mandeep511/lora-forger/pkg/domain"
)

var placeholderRegex = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// Render は content 内の {{name}} を vars の値で置換します。
// vars に無いプレースホルダはそのまま残り、差し込んだ値が再走査されることはありません。
func Render(content string, vars map[string]string) string {
	if len(vars) == 0 {
		return content
	}
	return placeholderRegex.ReplaceAllStringFunc(content, func(m string) string {
		name := m[2 : len(m)-2]
		if v, ok := vars[name]; ok {
			return v
		}
		return m
	})
}

// Compose は固定の方針ブロックの後ろに描画済みテンプレートを連結します。
func Compose(strategy, rendered string) string {
	if strategy == "" {
		return rendered
	}
	return strategy + StrategySeparator + rendered
}

// TextPromptBuilder はテンプレートと実行パラメータからシステム指示を構築します。
type TextPromptBuilder struct {
	strategy string
}

// NewTextPromptBuilder は固定方針ブロック付きの TextPromptBuilder を初期化します。
func NewTextPromptBuilder() *TextPromptBuilder {
	return &TextPromptBuilder{strategy: CaptionStrategy}
}

// BuildCaption はキャプション用のシステム指示を構築します。
func (b *TextPromptBuilder) BuildCaption(tpl domain.PromptTemplate, p domain.RunParams) (string, error) {
	if err := checkTemplate(tpl, domain.TemplateTypeDataset); err != nil {
		return "", err
	}
	return Compose(b.strategy, Render(tpl.Content, CaptionVariables(p))), nil
}

// BuildInference は推論プロンプト用のシステム指示を構築します。
func (b *TextPromptBuilder) BuildInference(tpl domain.PromptTemplate, p domain.InferenceParams) (string, error) {
	if err := checkTemplate(tpl, domain.TemplateTypeInference); err != nil {
		return "", err
	}
	return Render(tpl.Content, InferenceVariables(p)), nil
}

func checkTemplate(tpl domain.PromptTemplate, want domain.TemplateType) error {
	if strings.TrimSpace(tpl.Content) == "" {
		return domain.NewValidationError("template", "プロンプトテンプレート '"+tpl.ID+"' の内容が空です")
	}
	if tpl.Type != want {
		return domain.NewValidationError("template", "テンプレート '"+tpl.ID+"' は "+string(want)+" 用ではありません")
	}
	return nil
}
