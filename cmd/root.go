package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mandeep511/lora-forger/internal/config"
)

// opts は CLI フラグの値を保持するのだ。
var opts config.GenerateOptions

// グローバルフラグの値なのだ
var (
	verbose      bool
	aiModel      string
	groupSize    int
	admission    string
	storeBackend string
	storePath    string
)

var rootCmd = &cobra.Command{
	Use:   "lora-forger",
	Short: "LoRA 学習用データセットのキャプションと推論プロンプトを Gemini で作るのだ。",
	Long: `画像フォルダから LoRA 学習用のキャプションを一括生成して ZIP にまとめたり、
アイデアから推論用のプロンプトを作ったりするのだ。
テンプレートの管理と、HTTP API サーバーの起動もできるのだよ。`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	addAppFlags(rootCmd)
	rootCmd.AddCommand(captionCmd, promptCmd, templatesCmd, serveCmd)
}

// addAppFlags は、アプリケーション全般に適用されるグローバルフラグを定義するのだ。
func addAppFlags(rootCmd *cobra.Command) {
	pf := rootCmd.PersistentFlags()

	// --- 設定ファイルとログ ---
	pf.StringVar(&opts.ConfigFile, "config", "", "YAML の設定ファイルなのだ（LORA_CONFIG でも指定できるのだ）。")
	pf.BoolVarP(&verbose, "verbose", "v", false, "デバッグログを出すのだ。")

	// --- 永続化 ---
	pf.StringVar(&storeBackend, "store", "", "テンプレートの保存先（file / sqlite / memory）なのだ。")
	pf.StringVar(&storePath, "store-path", "", "テンプレートの保存先パスなのだ。")

	// --- AIモデル・バッチ設定 ---
	pf.StringVar(&aiModel, "model", "", "使用する Gemini モデル名なのだ。")
	pf.IntVar(&groupSize, "group-size", 0, "同時に投げる生成の数なのだ。")
	pf.StringVar(&admission, "admission", "", "投入方式（barrier / continuous）なのだ。")
}

// preRunAppE は、Gemini を呼ぶコマンドの前に API キーの有無を確かめるのだ。
func preRunAppE(cmd *cobra.Command, args []string) error {
	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("エラー: 環境変数 GEMINI_API_KEY が設定されていません。Gemini APIの利用には必須なのだ")
	}
	return nil
}

// loadAppConfig は環境変数と設定ファイルを読み、フラグで指定された値で上書きするのだ。
func loadAppConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(opts.ConfigFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("model") {
		cfg.GeminiModel = aiModel
	}
	if flags.Changed("group-size") {
		cfg.GroupSize = groupSize
	}
	if flags.Changed("admission") {
		cfg.Admission = admission
	}
	if flags.Changed("store") {
		cfg.StoreBackend = storeBackend
	}
	if flags.Changed("store-path") {
		cfg.StorePath = storePath
	}
	if opts.OutputDir == "" {
		opts.OutputDir = cfg.OutputDir
	}
	cfg.Options = opts
	return cfg, nil
}

// Execute は、アプリケーションのメインエントリポイントなのだ。
// Ctrl+C を受けると実行中の生成をキャンセルするのだよ。
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
