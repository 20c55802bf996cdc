package cmd

import (
	"github.com/spf13/cobra"

	"github.com/mandeep511/lora-forger/internal/builder"
)

var addr string

// serveCmd は、HTTP API と SSE のサーバーを起動するのだ。
var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "HTTP API サーバーを起動するのだ。",
	PreRunE: preRunAppE,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := loadAppConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("addr") {
			cfg.Addr = addr
		}

		appCtx, err := builder.BuildAppContext(ctx, cfg, nil)
		if err != nil {
			return err
		}
		defer appCtx.Close()

		srv, err := builder.BuildServer(ctx, appCtx)
		if err != nil {
			return err
		}
		return srv.Run(ctx, cfg.Addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&addr, "addr", "", "待ち受けアドレスなのだ（既定は :8080）。")
}
