package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/reddit-newsbot/internal/server"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the post tables if they do not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			posts, err := server.OpenPostStore(cmd.Context(), rt.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = posts.Close() }()

			if err := posts.Bootstrap(cmd.Context()); err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			rt.logger.Info("schema ready", zap.String("driver", rt.cfg.Database.Driver))
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", rt.cfg.Database.Driver)
			return nil
		},
	}
}
