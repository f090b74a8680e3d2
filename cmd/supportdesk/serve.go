package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pario-ai/supportdesk/pkg/server"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the support HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			a.logger.Info("starting supportdesk",
				zap.String("config", configPath),
				zap.String("listen", a.cfg.Listen),
				zap.String("retriever", a.cfg.Retriever.Type),
				zap.String("generator", a.cfg.Generator.Mode))
			return server.New(a.cfg.Listen, a.svc, a.logger.Named("http")).ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}
