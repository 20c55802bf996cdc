package builder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/mandeep511/lora-forger/internal/config"
	"github.com/mandeep511/lora-forger/pkg/domain"
	"github.com/mandeep511/lora-forger/pkg/kv"
)

type nopModels struct{}

func (nopModels) GenerateContent(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return &genai.GenerateContentResponse{}, nil
}

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	t.Setenv("LORA_CONFIG", "")
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	cfg.StoreBackend = backend
	cfg.StorePath = t.TempDir() + "/store.db"
	return cfg
}

func TestBuildAppContext(t *testing.T) {
	ctx := context.Background()

	t.Run("SQLite のストアでも組み立てられるのだ", func(t *testing.T) {
		appCtx, err := BuildAppContext(ctx, testConfig(t, kv.BackendSQLite), nopModels{})
		require.NoError(t, err)
		defer appCtx.Close()

		active := appCtx.Manager.Tuner.Selection.Active(domain.TemplateTypeDataset)
		assert.Equal(t, domain.DefaultDatasetTemplateID, active.ID)

		srv, err := BuildServer(ctx, appCtx)
		require.NoError(t, err)
		assert.NotNil(t, srv.Router())
	})

	t.Run("画像ローダーは内部アドレスを拒否するクライアントで組み立てられるのだ", func(t *testing.T) {
		appCtx, err := BuildAppContext(ctx, testConfig(t, kv.BackendMemory), nopModels{})
		require.NoError(t, err)
		defer appCtx.Close()

		require.NotNil(t, appCtx.Loader)
		assert.False(t, appCtx.httpClient.SkipNetworkValidation)
		_, err = appCtx.Loader.Load(ctx, "http://169.254.169.254/latest/meta-data")
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("API キーもモデルも無ければエラーなのだ", func(t *testing.T) {
		cfg := testConfig(t, kv.BackendMemory)
		cfg.GeminiAPIKey = ""
		_, err := BuildAppContext(ctx, cfg, nil)
		assert.Error(t, err)
	})

	t.Run("不明なバックエンドはエラーなのだ", func(t *testing.T) {
		_, err := BuildAppContext(ctx, testConfig(t, "redis"), nopModels{})
		assert.Error(t, err)
	})

	t.Run("config が無ければエラーなのだ", func(t *testing.T) {
		_, err := BuildAppContext(ctx, nil, nopModels{})
		assert.Error(t, err)
	})
}

func TestBuildTuner(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, kv.BackendFile)

	tuner, kvs, err := BuildTuner(ctx, cfg)
	require.NoError(t, err)
	forked, err := tuner.Fork(ctx, domain.DefaultDatasetTemplateID, "Mine", "")
	require.NoError(t, err)
	require.NoError(t, kvs.Close())

	// 同じパスで開き直しても複製と選択が残っているのだ
	tuner, kvs, err = BuildTuner(ctx, cfg)
	require.NoError(t, err)
	defer kvs.Close()
	assert.Equal(t, forked.ID, tuner.Selection.Active(domain.TemplateTypeDataset).ID)
}
