package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mandeep511/lora-forger/internal/builder"
	"github.com/mandeep511/lora-forger/pkg/domain"
	"github.com/mandeep511/lora-forger/pkg/store"
)

var (
	templateType    string
	templateName    string
	templateContent string
)

// templatesCmd は、プロンプトテンプレートの一覧・複製・削除・選択をまとめるのだ。
// Gemini は呼ばないので API キーはいらないのだ。
var templatesCmd = &cobra.Command{
	Use:     "templates",
	Aliases: []string{"tpl"},
	Short:   "プロンプトテンプレートを管理するのだ。",
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "テンプレートの一覧を表示するのだ。",
	Args:  cobra.NoArgs,
	RunE: withTuner(func(cmd *cobra.Command, tuner *store.Tuner, args []string) error {
		var t domain.TemplateType
		if templateType != "" {
			parsed, err := domain.ParseTemplateType(templateType)
			if err != nil {
				return err
			}
			t = parsed
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "\tID\tTYPE\tNAME\tUPDATED")
		for _, tpl := range tuner.Templates.List(t) {
			mark := ""
			if tuner.Selection.Active(tpl.Type).ID == tpl.ID {
				mark = "*"
			}
			if tpl.IsDefault() {
				mark += "D"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", mark, tpl.ID, tpl.Type, tpl.Name,
				time.UnixMilli(tpl.LastModified).Format(time.DateTime))
		}
		return w.Flush()
	}),
}

var templatesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "テンプレートの内容を表示するのだ。",
	Args:  cobra.ExactArgs(1),
	RunE: withTuner(func(cmd *cobra.Command, tuner *store.Tuner, args []string) error {
		tpl, err := tuner.Templates.Get(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "# %s (%s, %s)\n\n", tpl.Name, tpl.ID, tpl.Type)
		fmt.Fprintln(out, tpl.Content)
		return nil
	}),
}

var templatesForkCmd = &cobra.Command{
	Use:   "fork <id>",
	Short: "テンプレートを複製して選択するのだ。",
	Long: `元のテンプレートは変えずに、同じ種別のカスタムテンプレートを作るのだ。
--content-file を指定するとその内容で、省略すると元の内容をそのまま使うのだ。`,
	Args: cobra.ExactArgs(1),
	RunE: withTuner(func(cmd *cobra.Command, tuner *store.Tuner, args []string) error {
		content := ""
		if templateContent != "" {
			b, err := os.ReadFile(templateContent)
			if err != nil {
				return fmt.Errorf("テンプレートファイルの読み込みに失敗したのだ: %w", err)
			}
			content = string(b)
		}
		forked, err := tuner.Fork(cmd.Context(), args[0], templateName, content)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), forked.ID)
		return nil
	}),
}

var templatesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "カスタムテンプレートを削除するのだ（デフォルトは消せないのだ）。",
	Args:  cobra.ExactArgs(1),
	RunE: withTuner(func(cmd *cobra.Command, tuner *store.Tuner, args []string) error {
		return tuner.Delete(cmd.Context(), args[0])
	}),
}

var templatesSelectCmd = &cobra.Command{
	Use:   "select <dataset|inference> <id>",
	Short: "種別ごとに使うテンプレートを選ぶのだ。",
	Args:  cobra.ExactArgs(2),
	RunE: withTuner(func(cmd *cobra.Command, tuner *store.Tuner, args []string) error {
		t, err := domain.ParseTemplateType(args[0])
		if err != nil {
			return err
		}
		return tuner.Selection.Select(cmd.Context(), t, args[1])
	}),
}

func init() {
	templatesListCmd.Flags().StringVar(&templateType, "type", "", "種別（dataset / inference）で絞り込むのだ。")
	templatesForkCmd.Flags().StringVar(&templateName, "name", "", "複製の名前なのだ（省略時は \"Copy of ...\"）。")
	templatesForkCmd.Flags().StringVar(&templateContent, "content-file", "", "複製の内容を読むファイルなのだ。")

	templatesCmd.AddCommand(templatesListCmd, templatesShowCmd, templatesForkCmd, templatesDeleteCmd, templatesSelectCmd)
}

// withTuner は設定を読んで Tuner を組み立て、終わったらストアを閉じるのだ。
func withTuner(fn func(cmd *cobra.Command, tuner *store.Tuner, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadAppConfig(cmd)
		if err != nil {
			return err
		}
		tuner, kvs, err := builder.BuildTuner(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer kvs.Close()
		return fn(cmd, tuner, args)
	}
}
