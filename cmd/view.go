package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/reddit-newsbot/internal/server"
	"github.com/JakeFAU/reddit-newsbot/internal/viewer"
)

func newViewCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "view",
		Short:       "Browse stored posts in the terminal",
		Annotations: map[string]string{logToFile: "true"},
		Args:        cobra.NoArgs,
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

			return viewer.Run(cmd.Context(), viewer.Config{
				Posts:        posts,
				Explainer:    server.NewExplainer(rt.cfg, rt.logger),
				Subreddits:   rt.cfg.Scrape.Subreddits,
				PageSize:     rt.cfg.Viewer.PageSize,
				DefaultLimit: rt.cfg.Viewer.DefaultLimit,
				MinLimit:     rt.cfg.Viewer.MinLimit,
				MaxLimit:     rt.cfg.Viewer.MaxLimit,
				Logger:       rt.logger.Named("viewer"),
			})
		},
	}
}
