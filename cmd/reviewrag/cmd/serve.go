package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gardenhotel/reviewrag/internal/server"
	"github.com/gardenhotel/reviewrag/pkg/version"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP question-answering service",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.cleanup()

			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			srv := server.NewServer(server.Config{
				Addr:    a.cfg.Server.Addr,
				Version: version.Version,
			}, a.pipeline, a.logger)
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	return cmd
}
