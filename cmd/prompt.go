package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mandeep511/lora-forger/internal/builder"
	"github.com/mandeep511/lora-forger/pkg/domain"
	"github.com/mandeep511/lora-forger/pkg/prompts"
)

// promptCmd は、推論ラボのプロンプト生成を CLI から実行するのだ。
var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "アイデアや参照画像から推論用のプロンプトを作るのだ。",
	Long: `選択中の推論用テンプレートとスタイルを使って、画像生成モデルに渡すプロンプトを1つ作るのだ。
--idea か --reference のどちらかは必ず指定してほしいのだ。`,
	PreRunE: preRunAppE,
	RunE:    promptCommand,
}

func init() {
	f := promptCmd.Flags()
	f.StringVarP(&opts.TriggerWord, "trigger", "t", "", "トリガーワードなのだ（必須）。")
	f.StringVarP(&opts.Style, "style", "s", prompts.Styles()[0], "画風なのだ。")
	f.StringVar(&opts.Idea, "idea", "", "プロンプトにしたいアイデアなのだ。")
	f.StringVarP(&opts.Reference, "reference", "r", "", "参照画像のパスまたは URL なのだ。")
	f.BoolVar(&opts.NSFW, "nsfw", false, "NSFW 向けの指示を有効にするのだ。")
	f.StringVar(&opts.TemplateID, "template", "", "使うテンプレートの ID なのだ（省略時は選択中のもの）。")
}

func promptCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	params := domain.InferenceParams{
		RunParams: domain.RunParams{TriggerWord: opts.TriggerWord, NSFW: opts.NSFW},
		Style:     opts.Style,
		Idea:      opts.Idea,
	}
	if opts.Reference == "" {
		if err := params.Validate(); err != nil {
			return err
		}
	}

	cfg, err := loadAppConfig(cmd)
	if err != nil {
		return err
	}
	appCtx, err := builder.BuildAppContext(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if opts.Reference != "" {
		ref, err := appCtx.Loader.Load(ctx, opts.Reference)
		if err != nil {
			return fmt.Errorf("参照画像の読み込みに失敗したのだ: %w", err)
		}
		params.Reference = &ref
	}

	res, err := appCtx.Manager.ComposePrompt(ctx, params, opts.TemplateID)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Prompt)
	return nil
}
