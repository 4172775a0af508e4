package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/config"
	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/pipeline"
)

const searchPrompt = "Enter search term (e.g., truck, excavator, loader): "

type crawlFlags struct {
	query       string
	backend     string
	concurrency int
	maxLinks    int
	sinks       []string
}

// newCrawlCmd creates the 'crawl' subcommand. The search term comes from the
// positional arguments, --query, or a single stdin prompt, in that order.
func newCrawlCmd() *cobra.Command {
	var flags crawlFlags
	cmd := &cobra.Command{
		Use:   "crawl [term...]",
		Short: "Searches the catalog and scrapes every matching detail page",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, args, flags)
		},
	}
	cmd.Flags().StringVarP(&flags.query, "query", "q", "", "search term")
	cmd.Flags().StringVar(&flags.backend, "backend", "", "fetch backend: lightweight or rendered")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "maximum detail pages in flight")
	cmd.Flags().IntVar(&flags.maxLinks, "max-links", 0, "cap on detail pages crawled (0 keeps the configured value)")
	cmd.Flags().StringSliceVar(&flags.sinks, "sink", nil, "report sinks: console, file, gcs, pubsub")
	return cmd
}

func runCrawl(cmd *cobra.Command, args []string, flags crawlFlags) error {
	e, err := envFrom(cmd.Context())
	if err != nil {
		return err
	}
	cfg, err := applyCrawlFlags(cmd, e.cfg, flags)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	term := strings.Join(args, " ")
	if flags.query != "" {
		term = flags.query
	}
	if len(args) == 0 && !cmd.Flags().Changed("query") {
		term, err = prompt(cmd.InOrStdin(), out)
		if err != nil {
			return err
		}
	}
	term = strings.TrimSpace(term)
	if term == "" {
		fmt.Fprintln(out, "Please enter a valid search term.")
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, e.logger, out)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if cerr := a.Close(closeCtx); cerr != nil {
			e.logger.Warn("failed to close application", zap.Error(cerr))
		}
	}()

	fmt.Fprintf(out, "[INFO] Searching for: %s\n", term)
	result, err := a.Crawl(ctx, term, pipeline.RunOptions{
		OnDiscovered: func(items int) {
			fmt.Fprintf(out, "[INFO] Found %d items. Scraping details...\n", items)
		},
	})
	switch {
	case errors.Is(err, crawler.ErrNoResults):
		fmt.Fprintln(out, "No products found. Try a different keyword.")
		return nil
	case err != nil:
		return fmt.Errorf("run crawl: %w", err)
	}
	if err := a.Report(ctx, result); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	e.logger.Info("crawl command finished",
		zap.String("run_id", result.RunID),
		zap.Int("records", len(result.Records)),
		zap.Int("failures", len(result.Failures)),
	)
	return nil
}

// applyCrawlFlags copies explicitly set flags over the loaded configuration.
func applyCrawlFlags(cmd *cobra.Command, cfg config.Config, flags crawlFlags) (config.Config, error) {
	f := cmd.Flags()
	if f.Changed("backend") {
		cfg.Crawler.Backend = flags.backend
	}
	if f.Changed("concurrency") {
		cfg.Crawler.Concurrency = flags.concurrency
	}
	if f.Changed("max-links") {
		cfg.Discovery.MaxLinks = flags.maxLinks
	}
	if f.Changed("sink") {
		cfg.Report.Sinks = flags.sinks
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

func prompt(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, searchPrompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read search term: %w", err)
	}
	return line, nil
}
