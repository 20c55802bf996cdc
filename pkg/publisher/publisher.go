package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mandeep511/lora-forger/pkg/asset"
	"github.com/mandeep511/lora-forger/pkg/domain"
)

// Options はパブリッシュ動作を制御する設定項目です。
type Options struct {
	OutputDir   string
	TriggerWord string
}

// PublishResult は書き出したアーカイブの情報です。
type PublishResult struct {
	ArchivePath string
	Items       int
	Bytes       int
}

// OutputWriter はアーカイブを保存先へ書き込みます。
type OutputWriter interface {
	Write(ctx context.Context, path string, data []byte) error
}

// CheckOutputDir は LocalWriter が書き込めない出力先（スキーム付きの URI）を拒否します。
func CheckOutputDir(dir string) error {
	if asset.IsRemotePath(dir) {
		return domain.NewValidationError("output_dir", fmt.Sprintf("%s はローカルのディレクトリではありません", dir))
	}
	return nil
}

// LocalWriter はローカルファイルシステムへ書き込む OutputWriter です。
type LocalWriter struct{}

// Write は親ディレクトリを作成してからファイルを書き込みます。
func (LocalWriter) Write(_ context.Context, p string, data []byte) error {
	if err := CheckOutputDir(p); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("出力ディレクトリの作成に失敗しました: %w", err)
	}
	return os.WriteFile(p, data, 0o644)
}

// DatasetPublisher はデータセットを ZIP にまとめて保存します。
type DatasetPublisher struct {
	writer OutputWriter
	now    func() time.Time
}

// NewDatasetPublisher は DatasetPublisher を初期化します。writer が nil の場合はローカルに書き込みます。
func NewDatasetPublisher(writer OutputWriter) *DatasetPublisher {
	if writer == nil {
		writer = LocalWriter{}
	}
	return &DatasetPublisher{writer: writer, now: time.Now}
}

// Publish はアーカイブを組み立て、OutputDir 配下に書き出します。
func (p *DatasetPublisher) Publish(ctx context.Context, items []domain.DatasetItem, opts Options) (PublishResult, error) {
	if len(items) == 0 {
		return PublishResult{}, domain.NewValidationError("items", "書き出す項目がありません")
	}

	data, err := BuildArchive(items)
	if err != nil {
		return PublishResult{}, fmt.Errorf("アーカイブの作成に失敗しました: %w", err)
	}

	out, err := asset.ResolveOutputPath(opts.OutputDir, ArchiveName(opts.TriggerWord, p.now()))
	if err != nil {
		return PublishResult{}, fmt.Errorf("出力パスの解決に失敗しました: %w", err)
	}
	if err := p.writer.Write(ctx, out, data); err != nil {
		return PublishResult{}, fmt.Errorf("アーカイブの書き込みに失敗しました: %w", err)
	}

	slog.InfoContext(ctx, "データセットを書き出しました", "path", out, "items", len(items), "bytes", len(data))
	return PublishResult{ArchivePath: out, Items: len(items), Bytes: len(data)}, nil
}
