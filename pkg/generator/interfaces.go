package generator

import (
	"context"

	"google.golang.org/genai"

	"github.com/mandeep511/lora-forger/pkg/domain"
)

// ContentGenerator は Gemini の GenerateContent 呼び出しの契約です。
// *genai.Models はこのインターフェースを満たします。
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// CaptionGenerator は画像1枚からキャプションとファイル名を生成する契約です。
type CaptionGenerator interface {
	CaptionImage(ctx context.Context, media domain.Media, params domain.RunParams, tpl domain.PromptTemplate) (domain.CaptionResult, error)
}

// PromptComposer は推論用プロンプトを生成する契約です。
type PromptComposer interface {
	ComposePrompt(ctx context.Context, params domain.InferenceParams, tpl domain.PromptTemplate) (domain.InferenceResult, error)
}
