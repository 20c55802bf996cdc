package generator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/mandeep511/lora-forger/pkg/config"
	"github.com/mandeep511/lora-forger/pkg/domain"
	"github.com/mandeep511/lora-forger/pkg/prompts"
)

// fakeModels は GenerateContent の引数を記録し、決められた応答を返すのだ。
type fakeModels struct {
	calls    int
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	resp     *genai.GenerateContentResponse
	err      error
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls++
	f.model, f.contents, f.config = model, contents, cfg
	return f.resp, f.err
}

func textResponse(s string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: s}}}}},
	}
}

func newTestClient(t *testing.T, f *fakeModels) *Client {
	t.Helper()
	c, err := NewClient(f, nil, config.DefaultConfig())
	require.NoError(t, err)
	return c
}

var (
	testMedia  = domain.Media{Filename: "a.png", MIMEType: "image/png", Data: []byte{1, 2, 3}}
	testParams = domain.RunParams{TriggerWord: "OHWX"}
	now        = time.UnixMilli(0)
)

func TestClient_CaptionImage(t *testing.T) {
	ctx := context.Background()
	tpl := prompts.DefaultTemplate(domain.TemplateTypeDataset, now)

	t.Run("構造化応答を caption と filename に変換するのだ", func(t *testing.T) {
		f := &fakeModels{resp: textResponse(`{"caption":"OHWX stands in the rain.","filename":"rainy_street.txt"}`)}
		got, err := newTestClient(t, f).CaptionImage(ctx, testMedia, testParams, tpl)
		require.NoError(t, err)
		assert.Equal(t, domain.CaptionResult{Caption: "OHWX stands in the rain.", Filename: "rainy_street.txt"}, got)

		assert.Equal(t, config.DefaultGeminiModel, f.model)
		require.Len(t, f.contents, 1)
		parts := f.contents[0].Parts
		require.Len(t, parts, 2)
		require.NotNil(t, parts[0].InlineData)
		assert.Equal(t, "image/png", parts[0].InlineData.MIMEType)
		assert.Equal(t, []byte{1, 2, 3}, parts[0].InlineData.Data)
		assert.Equal(t, prompts.CaptionUserText, parts[1].Text)

		assert.Equal(t, "application/json", f.config.ResponseMIMEType)
		assert.ElementsMatch(t, []string{"caption", "filename"}, f.config.ResponseSchema.Required)
		assert.Equal(t, float32(0.4), *f.config.Temperature)

		sys := f.config.SystemInstruction.Parts[0].Text
		assert.True(t, strings.HasPrefix(sys, prompts.CaptionStrategy))
		assert.Contains(t, sys, "OHWX")
	})

	t.Run("コードフェンス付きの応答も読めるのだ", func(t *testing.T) {
		f := &fakeModels{resp: textResponse("```json\n{\"caption\":\"c\",\"filename\":\"f.txt\"}\n```")}
		got, err := newTestClient(t, f).CaptionImage(ctx, testMedia, testParams, tpl)
		require.NoError(t, err)
		assert.Equal(t, "f.txt", got.Filename)
	})

	failures := map[string]*fakeModels{
		"通信エラー":        {err: errors.New("connection reset")},
		"空の応答":         {resp: textResponse("   ")},
		"候補なし":         {resp: &genai.GenerateContentResponse{}},
		"nil応答":        {},
		"JSONでない":      {resp: textResponse("I cannot help with that")},
		"filename が欠落": {resp: textResponse(`{"caption":"only caption"}`)},
		"caption が空":   {resp: textResponse(`{"caption":"","filename":"x.txt"}`)},
	}
	for name, f := range failures {
		t.Run(name+"は GenerationError なのだ", func(t *testing.T) {
			_, err := newTestClient(t, f).CaptionImage(ctx, testMedia, testParams, tpl)
			assert.True(t, domain.IsGeneration(err), "got %v", err)
		})
	}

	t.Run("トリガーワードが空なら呼び出さないのだ", func(t *testing.T) {
		f := &fakeModels{resp: textResponse(`{}`)}
		_, err := newTestClient(t, f).CaptionImage(ctx, testMedia, domain.RunParams{}, tpl)
		assert.True(t, domain.IsValidation(err))
		assert.Zero(t, f.calls)
	})
}

func TestClient_ComposePrompt(t *testing.T) {
	ctx := context.Background()
	tpl := prompts.DefaultTemplate(domain.TemplateTypeInference, now)

	t.Run("参照画像とテキストを送り前後の空白を除くのだ", func(t *testing.T) {
		f := &fakeModels{resp: textResponse("\n  OHWX wearing a neon jacket, cinematic lighting  \n")}
		ref := testMedia
		got, err := newTestClient(t, f).ComposePrompt(ctx, domain.InferenceParams{
			RunParams: domain.RunParams{TriggerWord: "OHWX", NSFW: true},
			Style:     "Cyberpunk",
			Reference: &ref,
		}, tpl)
		require.NoError(t, err)
		assert.Equal(t, "OHWX wearing a neon jacket, cinematic lighting", got.Prompt)

		parts := f.contents[0].Parts
		require.Len(t, parts, 2)
		assert.NotNil(t, parts[0].InlineData)
		assert.Equal(t, prompts.InferenceFallbackText, parts[1].Text)

		assert.Empty(t, f.config.ResponseMIMEType)
		assert.Equal(t, float32(0.7), *f.config.Temperature)
		sys := f.config.SystemInstruction.Parts[0].Text
		assert.Contains(t, sys, `("Cyberpunk")`)
		assert.Contains(t, sys, prompts.InferenceNSFWInstruction)
	})

	t.Run("テキストだけでも生成できるのだ", func(t *testing.T) {
		f := &fakeModels{resp: textResponse("p")}
		_, err := newTestClient(t, f).ComposePrompt(ctx, domain.InferenceParams{
			RunParams: testParams,
			Idea:      "on a yacht",
		}, tpl)
		require.NoError(t, err)
		require.Len(t, f.contents[0].Parts, 1)
		assert.Equal(t, "on a yacht", f.contents[0].Parts[0].Text)
	})

	t.Run("空の応答は GenerationError なのだ", func(t *testing.T) {
		f := &fakeModels{resp: textResponse("")}
		_, err := newTestClient(t, f).ComposePrompt(ctx, domain.InferenceParams{RunParams: testParams, Idea: "x"}, tpl)
		assert.True(t, domain.IsGeneration(err))
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})

	t.Run("アイデアも参照画像も無ければ呼び出さないのだ", func(t *testing.T) {
		f := &fakeModels{resp: textResponse("p")}
		_, err := newTestClient(t, f).ComposePrompt(ctx, domain.InferenceParams{RunParams: testParams}, tpl)
		assert.True(t, domain.IsValidation(err))
		assert.Zero(t, f.calls)
	})
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(nil, nil, config.DefaultConfig())
	assert.Error(t, err)

	_, err = NewGeminiModels(context.Background(), "")
	assert.Error(t, err)
}
