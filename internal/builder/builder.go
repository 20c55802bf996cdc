package builder

import (
	"context"
	"fmt"

	"github.com/shouni/go-http-kit/httpkit"

	"github.com/mandeep511/lora-forger/internal/config"
	"github.com/mandeep511/lora-forger/internal/metrics"
	"github.com/mandeep511/lora-forger/internal/server"
	"github.com/mandeep511/lora-forger/pkg/asset"
	"github.com/mandeep511/lora-forger/pkg/dataset"
	"github.com/mandeep511/lora-forger/pkg/generator"
	"github.com/mandeep511/lora-forger/pkg/kv"
	"github.com/mandeep511/lora-forger/pkg/publisher"
	"github.com/mandeep511/lora-forger/pkg/store"
	"github.com/mandeep511/lora-forger/pkg/workflow"
)

// BuildAppContext は設定から永続化ストア、Gemini クライアント、Manager を組み立てます。
// models が nil の場合は GEMINI_API_KEY から Gemini API クライアントを作成します。
func BuildAppContext(ctx context.Context, cfg *config.Config, models generator.ContentGenerator) (*AppContext, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config は必須です")
	}

	store, err := kv.Open(cfg.StoreBackend, cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("永続化ストアの初期化に失敗しました: %w", err)
	}

	httpClient := httpkit.New(cfg.HTTPTimeout)
	loader, err := asset.NewLoader(httpClient)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	m := metrics.New()
	previews := dataset.NewMemoryPreviews()
	manager, err := workflow.New(ctx, workflow.ManagerArgs{
		Config:   cfg.Library(),
		KV:       store,
		Models:   models,
		Previews: previews,
		Recorder: m,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &AppContext{
		Config:     cfg,
		Options:    cfg.Options,
		Manager:    manager,
		Previews:   previews,
		Loader:     loader,
		Publisher:  publisher.NewDatasetPublisher(nil),
		Metrics:    m,
		httpClient: httpClient,
		store:      store,
	}, nil
}

// BuildServer は AppContext から HTTP サーバーを構築します。
func BuildServer(ctx context.Context, appCtx *AppContext) (*server.Server, error) {
	return server.New(ctx, server.Deps{
		Manager:  appCtx.Manager,
		Previews: appCtx.Previews,
		Metrics:  appCtx.Metrics,
	})
}

// BuildTuner は Gemini を使わないテンプレート操作のために、永続化ストアと Tuner だけを組み立てます。
// 戻り値の kv.Store は呼び出し側で閉じてください。
func BuildTuner(ctx context.Context, cfg *config.Config) (*store.Tuner, kv.Store, error) {
	kvs, err := kv.Open(cfg.StoreBackend, cfg.StorePath)
	if err != nil {
		return nil, nil, fmt.Errorf("永続化ストアの初期化に失敗しました: %w", err)
	}
	templates, err := store.Open(ctx, kvs)
	if err != nil {
		_ = kvs.Close()
		return nil, nil, err
	}
	selection, err := store.NewSelection(ctx, kvs, templates)
	if err != nil {
		_ = kvs.Close()
		return nil, nil, err
	}
	return store.NewTuner(templates, selection), kvs, nil
}
