package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/reddit-newsbot/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the worker pool and the daily schedule",
		Long: `serve starts the read API on server.port, the channel worker pool and,
when schedule.enabled is set, the cron trigger for the scrape run. It exits
cleanly on SIGINT or SIGTERM after draining in-flight runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			app, err := server.Build(cmd.Context(), rt.cfg, rt.logger, server.Options{})
			if err != nil {
				return err
			}
			defer func() {
				if cerr := app.Close(context.WithoutCancel(cmd.Context())); cerr != nil {
					rt.logger.Warn("close failed", zap.Error(cerr))
				}
			}()
			return app.Serve(cmd.Context())
		},
	}
}
