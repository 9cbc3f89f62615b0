package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/reddit-newsbot/internal/scheduler"
	"github.com/JakeFAU/reddit-newsbot/internal/scraper"
	"github.com/JakeFAU/reddit-newsbot/internal/server"
)

func newScrapeCmd() *cobra.Command {
	var (
		subreddits []string
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Execute a single scrape run and exit",
		Long: `scrape runs the bootstrap task followed by one task per subreddit, the
same way the scheduled job does, and prints a line per task. The exit status is
non-zero when any task failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			cfg := rt.cfg
			if len(subreddits) > 0 {
				cfg.Scrape.Subreddits = subreddits
			}
			if cmd.Flags().Changed("limit") {
				if limit <= 0 {
					return fmt.Errorf("--limit must be > 0, got %d", limit)
				}
				cfg.Scrape.Limit = limit
			}

			app, err := server.Build(cmd.Context(), cfg, rt.logger, server.Options{})
			if err != nil {
				return err
			}
			defer func() {
				if cerr := app.Close(context.WithoutCancel(cmd.Context())); cerr != nil {
					rt.logger.Warn("close failed", zap.Error(cerr))
				}
			}()

			summary, runErr := app.RunOnce(cmd.Context())
			printSummary(cmd, summary)
			return runErr
		},
	}
	cmd.Flags().StringSliceVar(&subreddits, "subreddits", nil, "override scrape.subreddits for this run")
	cmd.Flags().IntVar(&limit, "limit", 0, "override scrape.limit for this run")
	return cmd
}

func printSummary(cmd *cobra.Command, summary scheduler.RunSummary) {
	if summary.RunID == "" {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s\n", summary.RunID)
	tasks := append([]scraper.TaskResult{summary.Bootstrap}, summary.Tasks...)
	for _, task := range tasks {
		line := fmt.Sprintf("  %-24s %-16s attempts=%d saved=%d", task.Task, task.Status, task.Attempts, task.Result.Saved)
		if task.Err != nil {
			line += " error=" + task.Err.Error()
		}
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "saved %d posts\n", summary.Saved())
}
