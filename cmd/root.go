// Package cmd defines and implements the CLI commands for the catalog-crawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/app"
	"github.com/JakeFAU/catalog-crawler/internal/config"
	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/logging"
	"github.com/JakeFAU/catalog-crawler/internal/pipeline"
)

var cfgFile string

// App defines the application interface that commands use.
// Tests inject a fake through newApp.
type App interface {
	Crawl(ctx context.Context, query string, opts pipeline.RunOptions) (crawler.CrawlResult, error)
	Report(ctx context.Context, result crawler.CrawlResult) error
	Close(ctx context.Context) error
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger, stdout io.Writer) (App, error) {
	a, err := app.New(ctx, cfg, logger, app.Options{Stdout: stdout})
	if err != nil {
		return nil, err
	}
	return a, nil
}

type envKey struct{}

// env is the loaded configuration and logger shared by subcommands.
type env struct {
	cfg    config.Config
	logger *zap.Logger
}

func envFrom(ctx context.Context) (env, error) {
	e, ok := ctx.Value(envKey{}).(env)
	if !ok {
		return env{}, errors.New("configuration not loaded")
	}
	return e, nil
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog-crawler",
		Short: "Searches an equipment auction catalog and extracts listing records.",
		Long: `catalog-crawler searches an auction catalog for a term, discovers the
matching detail pages, and fetches them concurrently with a polite,
jittered pace. Records are written to the configured report sinks.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadDotEnv(); err != nil {
				return err
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			cmd.SetContext(context.WithValue(cmd.Context(), envKey{}, env{cfg: cfg, logger: logger}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if e, err := envFrom(cmd.Context()); err == nil {
				_ = e.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or $HOME/.catalog-crawler/config.yaml)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newServeCmd())
	return cmd
}

func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
