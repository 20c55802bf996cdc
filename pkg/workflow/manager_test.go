package workflow

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/mandeep511/lora-forger/pkg/config"
	"github.com/mandeep511/lora-forger/pkg/domain"
	"github.com/mandeep511/lora-forger/pkg/kv"
)

// echoModels はシステム指示を記録し、構造化応答かテキストを返すのだ。
type echoModels struct {
	mu           sync.Mutex
	instructions []string
}

func (e *echoModels) GenerateContent(_ context.Context, _ string, _ []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	e.mu.Lock()
	e.instructions = append(e.instructions, cfg.SystemInstruction.Parts[0].Text)
	e.mu.Unlock()

	text := "OHWX in a neon city"
	if cfg.ResponseMIMEType == "application/json" {
		text = `{"caption":"OHWX stands.","filename":"stand.txt"}`
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: text}}}}},
	}, nil
}

func newManager(t *testing.T) (*Manager, *echoModels) {
	t.Helper()
	models := &echoModels{}
	m, err := New(context.Background(), ManagerArgs{
		Config: config.DefaultConfig(),
		KV:     kv.NewMemoryStore(),
		Models: models,
	})
	require.NoError(t, err)
	return m, models
}

func TestManager(t *testing.T) {
	ctx := context.Background()

	t.Run("選択中のテンプレートで一括生成するのだ", func(t *testing.T) {
		m, models := newManager(t)
		custom, err := m.Tuner.Fork(ctx, domain.DefaultDatasetTemplateID, "Mine", "MY TEMPLATE for {{trigger}}")
		require.NoError(t, err)

		_, err = m.Collection.AddMany([]domain.Media{{Filename: "a.png", MIMEType: "image/png", Data: []byte{1}}})
		require.NoError(t, err)

		report, err := m.GenerateAll(ctx, domain.RunParams{TriggerWord: "OHWX"}, "")
		require.NoError(t, err)
		assert.Equal(t, 1, report.Completed)
		require.Len(t, models.instructions, 1)
		assert.True(t, strings.HasSuffix(models.instructions[0], "MY TEMPLATE for OHWX"), custom.ID)

		it := m.Collection.List()[0]
		assert.Equal(t, "stand.txt", it.SuggestedFilename)
	})

	t.Run("推論ラボは推論用テンプレートを使うのだ", func(t *testing.T) {
		m, models := newManager(t)
		res, err := m.ComposePrompt(ctx, domain.InferenceParams{
			RunParams: domain.RunParams{TriggerWord: "OHWX"},
			Style:     "Lineart",
			Idea:      "city",
		}, "")
		require.NoError(t, err)
		assert.Equal(t, "OHWX in a neon city", res.Prompt)
		assert.Contains(t, models.instructions[0], `("Lineart")`)
	})

	t.Run("種別違いのテンプレート指定は ValidationError なのだ", func(t *testing.T) {
		m, _ := newManager(t)
		_, err := m.GenerateAll(ctx, domain.RunParams{TriggerWord: "OHWX"}, domain.DefaultInferenceTemplateID)
		assert.True(t, domain.IsValidation(err))

		_, err = m.ResolveTemplate(domain.TemplateTypeDataset, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("必須の依存が無ければエラーなのだ", func(t *testing.T) {
		_, err := New(ctx, ManagerArgs{Config: config.DefaultConfig()})
		assert.Error(t, err)

		_, err = New(ctx, ManagerArgs{Config: config.DefaultConfig(), KV: kv.NewMemoryStore()})
		assert.Error(t, err, "APIキーもモデルも無いのだ")
	})
}
