package domain

import "strings"

// RunParams はキャプション生成1回分の実行パラメータです。
type RunParams struct {
	TriggerWord string
	NSFW        bool
}

// Validate は外部呼び出しの前にトリガーワードを検証します。
func (p RunParams) Validate() error {
	if strings.TrimSpace(p.TriggerWord) == "" {
		return NewValidationError("trigger", "トリガーワードは必須です")
	}
	return nil
}

// InferenceParams は推論ラボでのプロンプト生成パラメータです。
type InferenceParams struct {
	RunParams
	Style     string
	Idea      string
	Reference *Media
}

// Validate はトリガーワードと、アイデアまたは参照画像の有無を検証します。
func (p InferenceParams) Validate() error {
	if err := p.RunParams.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(p.Idea) == "" && (p.Reference == nil || len(p.Reference.Data) == 0) {
		return NewValidationError("idea", "アイデアのテキストか参照画像のどちらかが必要です")
	}
	return nil
}

// CaptionResult はキャプション生成の結果です。caption と filename は常に揃って返ります。
type CaptionResult struct {
	Caption  string `json:"caption"`
	Filename string `json:"filename"`
}

// InferenceResult は推論プロンプト生成の結果です。
type InferenceResult struct {
	Prompt string `json:"prompt"`
}
