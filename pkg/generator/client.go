package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/mandeep511/lora-forger/pkg/config"
	"github.com/mandeep511/lora-forger/pkg/domain"
	"github.com/mandeep511/lora-forger/pkg/prompts"
)

// ErrEmptyResponse は Gemini の応答本文が空だったことを示します。
var ErrEmptyResponse = errors.New("Gemini から応答テキストが返りませんでした")

const (
	opCaption = "キャプション生成"
	opCompose = "推論プロンプト生成"
)

// captionSchema はキャプション応答の JSON スキーマです。
var captionSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"caption": {
			Type:        genai.TypeString,
			Description: "The minimalist 'Clean Label' caption (Trigger + Class).",
		},
		"filename": {
			Type:        genai.TypeString,
			Description: "A descriptive filename for organization (e.g., 'blue_dress_park.txt').",
		},
	},
	Required:         []string{"caption", "filename"},
	PropertyOrdering: []string{"caption", "filename"},
}

// Client はテンプレートの描画と Gemini 呼び出しを組み合わせて、
// キャプションと推論プロンプトを生成します。再試行は行いません。
type Client struct {
	models  ContentGenerator
	builder prompts.PromptBuilder
	cfg     config.Config
}

// NewClient は依存関係を注入して Client を初期化します。
func NewClient(models ContentGenerator, builder prompts.PromptBuilder, cfg config.Config) (*Client, error) {
	if models == nil {
		return nil, fmt.Errorf("ContentGenerator は必須です")
	}
	if builder == nil {
		builder = prompts.NewTextPromptBuilder()
	}
	if cfg.GeminiModel == "" {
		cfg.GeminiModel = config.DefaultGeminiModel
	}
	return &Client{models: models, builder: builder, cfg: cfg}, nil
}

// NewGeminiModels は API キーから Gemini API クライアントを作成し、その Models を返します。
func NewGeminiModels(ctx context.Context, apiKey string) (ContentGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY は必須です")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("AIクライアントの初期化に失敗しました: %w", err)
	}
	return client.Models, nil
}

// CaptionImage は画像と描画済みのシステム指示を送り、caption と filename の両方を受け取ります。
// どちらかが欠けた応答は失敗として扱います。
func (c *Client) CaptionImage(ctx context.Context, media domain.Media, params domain.RunParams, tpl domain.PromptTemplate) (domain.CaptionResult, error) {
	if err := params.Validate(); err != nil {
		return domain.CaptionResult{}, err
	}
	if len(media.Data) == 0 {
		return domain.CaptionResult{}, domain.NewValidationError("media", "画像データが空です")
	}

	instruction, err := c.builder.BuildCaption(tpl, params)
	if err != nil {
		return domain.CaptionResult{}, err
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(media.Data, media.MIMEType),
			genai.NewPartFromText(prompts.CaptionUserText),
		}, genai.RoleUser),
	}
	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction(instruction),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    captionSchema,
		Temperature:       genai.Ptr(c.cfg.CaptionTemperature),
	}

	slog.DebugContext(ctx, "Gemini にキャプション生成を依頼します", "model", c.cfg.GeminiModel, "file", media.Filename, "template", tpl.ID)
	raw, err := c.generate(ctx, opCaption, contents, genCfg)
	if err != nil {
		return domain.CaptionResult{}, err
	}

	result, err := parseCaption(raw)
	if err != nil {
		return domain.CaptionResult{}, &domain.GenerationError{Op: opCaption, Err: err}
	}
	return result, nil
}

// ComposePrompt は任意の参照画像とテキストを送り、整形前後の空白を除いたプロンプトを返します。
func (c *Client) ComposePrompt(ctx context.Context, params domain.InferenceParams, tpl domain.PromptTemplate) (domain.InferenceResult, error) {
	if err := params.Validate(); err != nil {
		return domain.InferenceResult{}, err
	}

	instruction, err := c.builder.BuildInference(tpl, params)
	if err != nil {
		return domain.InferenceResult{}, err
	}

	parts := make([]*genai.Part, 0, 2)
	if ref := params.Reference; ref != nil && len(ref.Data) > 0 {
		parts = append(parts, genai.NewPartFromBytes(ref.Data, ref.MIMEType))
	}
	text := strings.TrimSpace(params.Idea)
	if text == "" {
		text = prompts.InferenceFallbackText
	}
	parts = append(parts, genai.NewPartFromText(text))

	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction(instruction),
		Temperature:       genai.Ptr(c.cfg.InferenceTemperature),
	}

	slog.DebugContext(ctx, "Gemini に推論プロンプト生成を依頼します", "model", c.cfg.GeminiModel, "style", params.Style, "template", tpl.ID)
	raw, err := c.generate(ctx, opCompose, []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, genCfg)
	if err != nil {
		return domain.InferenceResult{}, err
	}
	return domain.InferenceResult{Prompt: strings.TrimSpace(raw)}, nil
}

func (c *Client) generate(ctx context.Context, op string, contents []*genai.Content, genCfg *genai.GenerateContentConfig) (string, error) {
	resp, err := c.models.GenerateContent(ctx, c.cfg.GeminiModel, contents, genCfg)
	if err != nil {
		return "", &domain.GenerationError{Op: op, Err: err}
	}
	if resp == nil {
		return "", &domain.GenerationError{Op: op, Err: ErrEmptyResponse}
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", &domain.GenerationError{Op: op, Err: ErrEmptyResponse}
	}
	return text, nil
}

func systemInstruction(text string) *genai.Content {
	return &genai.Content{Parts: []*genai.Part{{Text: text}}}
}
