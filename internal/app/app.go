// Package app builds every long-lived crawler component from configuration
// and acts as the dependency container shared by the CLI and the HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/config"
	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/discovery"
	"github.com/JakeFAU/catalog-crawler/internal/dispatcher"
	"github.com/JakeFAU/catalog-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/catalog-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/catalog-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/catalog-crawler/internal/id/uuid"
	"github.com/JakeFAU/catalog-crawler/internal/pipeline"
	"github.com/JakeFAU/catalog-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/catalog-crawler/internal/progress"
	"github.com/JakeFAU/catalog-crawler/internal/progress/sinks"
	pubsubpublisher "github.com/JakeFAU/catalog-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/catalog-crawler/internal/report"
	"github.com/JakeFAU/catalog-crawler/internal/storage/gcs"
	"github.com/JakeFAU/catalog-crawler/internal/storage/local"
)

// Options carries process-level collaborators that tests replace.
type Options struct {
	// Stdout receives the console report; defaults to os.Stdout.
	Stdout io.Writer
	// Registerer receives progress collectors; defaults to the global registry.
	Registerer prometheus.Registerer
}

// App holds the shared, long-lived services for one process.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	hub      *progress.Hub
	pipeline *pipeline.Pipeline
	sinks    report.Multi
	closers  []func(context.Context) error
}

// New wires every component described by cfg. It fails fast when a
// configured sink or backend cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	a := &App{cfg: cfg, logger: logger}
	logger.Info("initializing crawler services", zap.String("backend", cfg.Crawler.Backend))

	if err := a.init(ctx, opts); err != nil {
		closeErr := a.Close(context.Background())
		return nil, errors.Join(err, closeErr)
	}
	return a, nil
}

func (a *App) init(ctx context.Context, opts Options) error {
	cfg := a.cfg
	backend := crawler.Backend(cfg.Crawler.Backend)
	rnd := crawler.NewRandom(cfg.Crawler.Seed)

	agents, err := crawler.NewUserAgentPool(cfg.Crawler.UserAgents, rnd)
	if err != nil {
		return fmt.Errorf("user agents: %w", err)
	}
	fetcher, err := newFetcher(backend, cfg.Crawler, agents, a.logger)
	if err != nil {
		return err
	}
	engine, err := extract.NewEngine(cfg.Selectors, a.logger.Named("extract"))
	if err != nil {
		return fmt.Errorf("extraction engine: %w", err)
	}

	var discoverer crawler.LinkDiscoverer
	discoverer, err = discovery.New(fetcher, discovery.Config{
		BaseOrigin:   cfg.Crawler.BaseOrigin,
		Card:         discovery.DefaultCard(),
		LinkContains: cfg.Discovery.LinkContains,
		StripQuery:   cfg.Discovery.StripQuery,
		MaxLinks:     cfg.Discovery.MaxLinks,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("discovery: %w", err)
	}
	if cfg.Discovery.CacheTTL > 0 {
		discoverer, err = discovery.NewCached(discoverer, cfg.Discovery.CacheSize, cfg.Discovery.CacheTTL, a.logger.Named("discovery"))
		if err != nil {
			return fmt.Errorf("discovery cache: %w", err)
		}
	}

	jitter, err := crawler.NewJitter(cfg.Crawler.JitterMin, cfg.Crawler.JitterMax, rnd)
	if err != nil {
		return fmt.Errorf("jitter: %w", err)
	}

	if err := a.initProgress(opts.Registerer); err != nil {
		return err
	}

	dispatchOpts := []dispatcher.Option{dispatcher.WithEmitter(a.hub), dispatcher.WithLogger(a.logger)}
	if cfg.Crawler.HostRPS > 0 {
		dispatchOpts = append(dispatchOpts, dispatcher.WithLimiter(ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.Crawler.HostRPS,
			DefaultBurst: cfg.Crawler.HostBurst,
		})))
	}
	disp, err := dispatcher.New(fetcher, engine, jitter, dispatcher.Config{
		Concurrency: cfg.Crawler.Concurrency,
		TaskTimeout: cfg.Crawler.TaskTimeout,
		Backend:     backend,
	}, dispatchOpts...)
	if err != nil {
		return fmt.Errorf("dispatcher: %w", err)
	}

	a.pipeline, err = pipeline.New(discoverer, disp, uuid.New(), pipeline.Config{
		BaseOrigin: cfg.Crawler.BaseOrigin,
		Backend:    backend,
	}, pipeline.WithEmitter(a.hub), pipeline.WithLogger(a.logger))
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	return a.initSinks(ctx, opts.Stdout)
}

func newFetcher(backend crawler.Backend, cfg config.CrawlerConfig, agents *crawler.UserAgentPool, logger *zap.Logger) (crawler.Fetcher, error) {
	switch backend {
	case crawler.BackendRendered:
		f, err := headless.NewChromedp(headless.Config{
			UserAgents:        agents,
			NavigationTimeout: cfg.NavigationTimeout,
			SettleDelay:       cfg.SettleDelay,
			ExecPath:          cfg.ChromePath,
			Headful:           cfg.Headful,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("rendered fetcher: %w", err)
		}
		return f, nil
	default:
		f, err := collyfetcher.New(collyfetcher.Config{
			UserAgents:    agents,
			RespectRobots: cfg.RespectRobots,
			Timeout:       cfg.RequestTimeout,
		}, collyfetcher.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("lightweight fetcher: %w", err)
		}
		return f, nil
	}
}

func (a *App) initProgress(reg prometheus.Registerer) error {
	promSink, err := sinks.NewPrometheusSink(reg)
	if err != nil {
		return fmt.Errorf("progress metrics: %w", err)
	}
	progressSinks := []progress.Sink{promSink}
	if a.cfg.Progress.LogEvents {
		progressSinks = append(progressSinks, sinks.NewLogSink(a.logger.Named("progress")))
	}
	a.hub = progress.NewHub(progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   a.cfg.Progress.MaxBatchWait,
		SinkTimeout:    a.cfg.Progress.SinkTimeout,
		Logger:         a.logger,
	}, progressSinks...)
	a.closers = append(a.closers, a.hub.Close)
	return nil
}

func (a *App) initSinks(ctx context.Context, stdout io.Writer) error {
	rc := a.cfg.Report
	format, err := report.ParseFormat(rc.Format)
	if err != nil {
		return err
	}
	for _, name := range rc.Sinks {
		var sink report.Sink
		switch name {
		case config.SinkConsole:
			sink = report.NewConsoleSink(stdout)
		case config.SinkFile:
			store, err := local.New(local.Config{BaseDir: rc.OutputDir})
			if err != nil {
				return fmt.Errorf("file sink: %w", err)
			}
			if sink, err = report.NewBlobSink(store, rc.Prefix, format, a.logger); err != nil {
				return fmt.Errorf("file sink: %w", err)
			}
		case config.SinkGCS:
			client, err := storage.NewClient(ctx)
			if err != nil {
				return fmt.Errorf("gcs client: %w", err)
			}
			a.closers = append(a.closers, func(context.Context) error { return client.Close() })
			store, err := gcs.New(client, gcs.Config{Bucket: rc.GCSBucket, Prefix: rc.Prefix})
			if err != nil {
				return fmt.Errorf("gcs sink: %w", err)
			}
			if sink, err = report.NewBlobSink(store, "", format, a.logger); err != nil {
				return fmt.Errorf("gcs sink: %w", err)
			}
		case config.SinkPubSub:
			client, err := pubsub.NewClient(ctx, rc.PubSubProject)
			if err != nil {
				return fmt.Errorf("pubsub client: %w", err)
			}
			topic := client.Topic(rc.PubSubTopic)
			a.closers = append(a.closers, func(context.Context) error {
				topic.Stop()
				return client.Close()
			})
			if sink, err = report.NewPubSubSink(pubsubpublisher.New(topic), a.logger); err != nil {
				return fmt.Errorf("pubsub sink: %w", err)
			}
		default:
			return fmt.Errorf("unknown report sink %q", name)
		}
		a.sinks = append(a.sinks, report.Named{Name: name, Sink: sink})
		a.logger.Info("report sink enabled", zap.String("sink", name))
	}
	return nil
}

// Config returns the configuration the app was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Crawl runs one search. See pipeline.Pipeline.Run for error semantics.
func (a *App) Crawl(ctx context.Context, query string, opts pipeline.RunOptions) (crawler.CrawlResult, error) {
	result, err := a.pipeline.Run(ctx, query, opts)
	if err != nil {
		return result, fmt.Errorf("crawl %q: %w", query, err)
	}
	return result, nil
}

// Report delivers result to every configured sink.
func (a *App) Report(ctx context.Context, result crawler.CrawlResult) error {
	return a.sinks.Write(ctx, result)
}

// Close flushes progress and releases cloud clients.
func (a *App) Close(ctx context.Context) error {
	a.logger.Info("shutting down crawler services")
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
