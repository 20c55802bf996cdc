package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mandeep511/lora-forger/internal/builder"
	"github.com/mandeep511/lora-forger/pkg/domain"
	"github.com/mandeep511/lora-forger/pkg/publisher"
)

// captionCmd は、画像フォルダのキャプションを一括生成して ZIP にまとめるのだ。
var captionCmd = &cobra.Command{
	Use:   "caption [画像のパスや URL ...]",
	Short: "画像にキャプションを付けて LoRA 用データセットの ZIP を作るのだ。",
	Long: `--input-dir の画像と、引数で渡した画像（ローカルパスまたは http(s) URL）を読み込み、
選択中のデータセット用テンプレートで3枚ずつキャプションを生成するのだ。
失敗した画像もそのまま ZIP に入るので、ログを見て作り直してほしいのだ。`,
	PreRunE: preRunAppE,
	RunE:    captionCommand,
}

func init() {
	f := captionCmd.Flags()
	f.StringVarP(&opts.InputDir, "input-dir", "i", "", "画像が入っているディレクトリなのだ。")
	f.StringVarP(&opts.TriggerWord, "trigger", "t", "", "トリガーワードなのだ（必須）。")
	f.BoolVar(&opts.NSFW, "nsfw", false, "NSFW 向けの指示を有効にするのだ。")
	f.StringVar(&opts.TemplateID, "template", "", "使うテンプレートの ID なのだ（省略時は選択中のもの）。")
	f.StringVarP(&opts.OutputDir, "output-dir", "o", "", "ZIP の保存先ディレクトリなのだ。")
}

func captionCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	// 1. 必須チェック（外部呼び出しの前に弾くのだ）
	params := domain.RunParams{TriggerWord: opts.TriggerWord, NSFW: opts.NSFW}
	if err := params.Validate(); err != nil {
		return err
	}
	if opts.InputDir == "" && len(args) == 0 {
		return fmt.Errorf("画像（--input-dir または引数）を指定してほしいのだ")
	}

	cfg, err := loadAppConfig(cmd)
	if err != nil {
		return err
	}
	if err := publisher.CheckOutputDir(cfg.Options.OutputDir); err != nil {
		return err
	}
	appCtx, err := builder.BuildAppContext(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	// 2. 画像を読み込むのだ
	var files []domain.Media
	if opts.InputDir != "" {
		loaded, err := appCtx.Loader.LoadDir(ctx, opts.InputDir)
		if err != nil {
			return err
		}
		files = append(files, loaded...)
	}
	for _, src := range args {
		m, err := appCtx.Loader.Load(ctx, src)
		if err != nil {
			return fmt.Errorf("%s の読み込みに失敗したのだ: %w", src, err)
		}
		files = append(files, m)
	}
	if len(files) == 0 {
		return fmt.Errorf("画像が1枚も見つからなかったのだ")
	}

	manager := appCtx.Manager
	if _, err := manager.Collection.AddMany(files); err != nil {
		return err
	}

	slog.Info("キャプション生成を始めるのだ！",
		"images", len(files),
		"trigger", params.TriggerWord,
		"model", cfg.GeminiModel,
		"group_size", cfg.GroupSize)

	// 3. 一括生成なのだ
	report, err := manager.GenerateAll(ctx, params, opts.TemplateID)
	if err != nil {
		return fmt.Errorf("一括生成が中断されたのだ: %w", err)
	}
	for _, it := range manager.Collection.List() {
		if it.Status == domain.StatusError {
			slog.Warn("キャプションを作れなかった画像があるのだ", "file", it.Media.Filename, "error", it.ErrorMessage)
		}
	}

	// 4. ZIP にまとめるのだ
	res, err := appCtx.Publisher.Publish(ctx, manager.Collection.List(), publisher.Options{
		OutputDir:   cfg.Options.OutputDir,
		TriggerWord: params.TriggerWord,
	})
	if err != nil {
		return err
	}

	slog.Info("データセットができたのだ！",
		"archive", res.ArchivePath,
		"completed", report.Completed,
		"failed", report.Failed)
	fmt.Fprintln(cmd.OutOrStdout(), res.ArchivePath)
	return nil
}
