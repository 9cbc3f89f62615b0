// Package cmd defines the newsbot command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/reddit-newsbot/internal/config"
	"github.com/JakeFAU/reddit-newsbot/internal/logging"
)

// logToFile marks commands that own the terminal; their logs go to viewer.log_file.
const logToFile = "log_to_file"

type runtimeKeyType string

const runtimeKey runtimeKeyType = "runtime"

// runtime is what every subcommand receives from the root pre-run hook.
type runtime struct {
	cfg    config.Config
	logger *zap.Logger
}

type rootOptions struct {
	configFile string
	envFile    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "newsbot",
		Short: "Scrapes hot subreddit listings into a post store and serves them back.",
		Long: `newsbot pulls the hot listing of each configured subreddit once a day,
upserts the posts into Postgres or SQLite, and exposes them through a JSON API
and a terminal viewer that can ask a generative model to explain a keyword.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWithEnvFile(opts.configFile, opts.envFile)
			if err != nil {
				return err
			}
			logOpts := logging.Options{Development: cfg.Logging.Development, Level: cfg.Logging.Level}
			if opts.logLevel != "" {
				logOpts.Level = opts.logLevel
			}
			if cmd.Annotations[logToFile] == "true" {
				logOpts.OutputPaths = []string{cfg.Viewer.LogFile}
			}
			logger, err := logging.New(logOpts)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			zap.ReplaceGlobals(logger)
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey, &runtime{cfg: cfg, logger: logger}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, err := resolveRuntime(cmd.Context()); err == nil {
				_ = rt.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the environment (ignored when missing)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level")

	cmd.AddCommand(
		newServeCmd(),
		newScrapeCmd(),
		newMigrateCmd(),
		newViewCmd(),
		newExplainCmd(),
	)
	return cmd
}

func resolveRuntime(ctx context.Context) (*runtime, error) {
	if ctx == nil {
		return nil, errors.New("command context not initialized")
	}
	rt, ok := ctx.Value(runtimeKey).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("configuration not loaded")
	}
	return rt, nil
}

// Execute runs the root command until it finishes or the process is signalled.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
