// Package cmd defines the changelogwatch command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/changelog-watch/internal/app"
	"github.com/JakeFAU/changelog-watch/internal/config"
	"github.com/JakeFAU/changelog-watch/internal/logging"
	"github.com/JakeFAU/changelog-watch/internal/orchestrator"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is what subcommands need from the wired application.
type App interface {
	RunOnce(ctx context.Context) (orchestrator.Report, error)
	Serve(ctx context.Context) error
	Close() error
}

// newApp is the application factory. Tests replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger, outputPath string) (App, error) {
	return app.Build(ctx, cfg, logger, outputPath)
}

type rootOptions struct {
	configFile string
	outputFile string
	envFiles   []string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "changelogwatch",
		Short: "Watches product changelogs and announces recent changes.",
		Long: `changelogwatch retrieves each configured changelog page through an ordered
chain of retrieval strategies, asks an LLM to extract dated change records,
keeps the ones inside the recency window, writes a markdown digest and posts
new entries to the configured notifier.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(opts.envFiles...); err != nil {
				return err
			}
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger, opts.outputFile)
			if err != nil {
				_ = logger.Sync()
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				_ = appInstance.Close()
			}
			_ = zap.L().Sync()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file (yaml, toml or json)")
	cmd.PersistentFlags().StringVarP(&opts.outputFile, "output-file", "o", "changelog.md", "markdown digest written by every run")
	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", nil, "dotenv files to load (default .env)")

	cmd.AddCommand(newRunCmd(), newServeCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "changelogwatch:", err)
		os.Exit(1)
	}
}
