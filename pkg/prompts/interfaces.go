package prompts

import "github.com/mandeep511/lora-forger/pkg/domain"

// PromptBuilder は、テンプレートと実行パラメータから AI へのシステム指示を構築する契約です。
type PromptBuilder interface {
	// BuildCaption は方針ブロックを含むキャプション用システム指示を生成します。
	BuildCaption(tpl domain.PromptTemplate, p domain.RunParams) (string, error)
	// BuildInference は推論プロンプト用システム指示を生成します。
	BuildInference(tpl domain.PromptTemplate, p domain.InferenceParams) (string, error)
}
