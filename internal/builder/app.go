package builder

import (
	"github.com/shouni/go-http-kit/httpkit"

	"github.com/mandeep511/lora-forger/internal/config"
	"github.com/mandeep511/lora-forger/internal/metrics"
	"github.com/mandeep511/lora-forger/pkg/asset"
	"github.com/mandeep511/lora-forger/pkg/dataset"
	"github.com/mandeep511/lora-forger/pkg/kv"
	"github.com/mandeep511/lora-forger/pkg/publisher"
	"github.com/mandeep511/lora-forger/pkg/workflow"
)

// AppContext は、アプリケーション実行に必要な共通コンテキストを保持する
// これを各コマンドに渡すことで、依存関係の注入を簡素化します。
type AppContext struct {
	Config     *config.Config          // Configは、環境変数と設定ファイルから読み込まれた設定です。
	Options    config.GenerateOptions  // Optionsは、コマンドラインから渡された実行時の設定です。
	Manager    *workflow.Manager       // Managerは、テンプレート・データセット・生成処理の窓口です。
	Previews   *dataset.MemoryPreviews // Previewsは、項目のプレビュー画像を保持します。
	Loader     *asset.Loader           // Loaderは、ローカルやURLから画像を読み込みます。
	Publisher  *publisher.DatasetPublisher
	Metrics    *metrics.Metrics
	httpClient *httpkit.Client // httpClient は画像URLの取得に使う共通クライアント
	store      kv.Store
}

// Close は永続化ストアを閉じます。
func (a *AppContext) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}
