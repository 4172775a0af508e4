// Package pipeline runs one search end to end: query validation, listing
// discovery and the bounded fetch-extract pool.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/clock/system"
	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/progress"
)

// Runner fans detail pages out to workers.
type Runner interface {
	Run(ctx context.Context, urls []crawler.DetailURL, concurrency int) crawler.CrawlResult
}

// Config fixes the site a pipeline crawls.
type Config struct {
	BaseOrigin string
	Backend    crawler.Backend
}

// RunOptions override configuration for a single run. Zero values keep the
// configured behavior.
type RunOptions struct {
	Concurrency int
	MaxLinks    int
	// OnDiscovered, when set, is called with the number of detail pages about
	// to be crawled. It is not called when discovery fails or finds nothing.
	OnDiscovered func(items int)
}

// Pipeline wires discovery to the dispatcher.
type Pipeline struct {
	discoverer crawler.LinkDiscoverer
	runner     Runner
	ids        crawler.IDGenerator
	clock      crawler.Clock
	emitter    progress.Emitter
	cfg        Config
	logger     *zap.Logger
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithEmitter routes run lifecycle events to e.
func WithEmitter(e progress.Emitter) Option {
	return func(p *Pipeline) {
		if e != nil {
			p.emitter = e
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(c crawler.Clock) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// New validates dependencies and returns a Pipeline.
func New(discoverer crawler.LinkDiscoverer, runner Runner, ids crawler.IDGenerator, cfg Config, opts ...Option) (*Pipeline, error) {
	switch {
	case discoverer == nil:
		return nil, errors.New("discoverer is required")
	case runner == nil:
		return nil, errors.New("runner is required")
	case ids == nil:
		return nil, errors.New("id generator is required")
	case cfg.BaseOrigin == "":
		return nil, errors.New("base origin is required")
	}
	if cfg.Backend == "" {
		cfg.Backend = crawler.BackendLightweight
	}
	p := &Pipeline{
		discoverer: discoverer,
		runner:     runner,
		ids:        ids,
		clock:      system.New(),
		emitter:    progress.Nop{},
		cfg:        cfg,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("pipeline")
	return p, nil
}

// Run crawls rawQuery. An empty query fails with crawler.ErrEmptyQuery before
// any network activity. Discovery failures are fatal to the run; an empty
// listing returns crawler.ErrNoResults alongside a result with no records.
// Per-page failures never fail the run and are reported in the result.
func (p *Pipeline) Run(ctx context.Context, rawQuery string, opts RunOptions) (crawler.CrawlResult, error) {
	query, err := crawler.NewListingQuery(rawQuery)
	if err != nil {
		return crawler.CrawlResult{}, err
	}
	runID, err := p.ids.NewID()
	if err != nil {
		return crawler.CrawlResult{}, fmt.Errorf("run id: %w", err)
	}
	ctx = progress.WithRunID(ctx, runID)
	started := p.clock.Now()
	result := crawler.CrawlResult{
		RunID:     runID,
		Query:     query.Term(),
		Backend:   p.cfg.Backend,
		StartedAt: started,
		Records:   []crawler.ProductRecord{},
	}
	logger := p.logger.With(zap.String("run_id", runID), zap.String("query", query.Term()))
	p.emit(ctx, progress.Event{Stage: progress.StageRunStart})

	listingURL := query.ListingURL(p.cfg.BaseOrigin)
	logger.Info("searching", zap.String("listing_url", listingURL))

	urls, err := p.discoverer.Discover(ctx, listingURL)
	if err != nil {
		logger.Error("discovery failed", zap.Error(err))
		result.FinishedAt = p.clock.Now()
		p.emit(ctx, progress.Event{
			Stage: progress.StageRunError,
			URL:   listingURL,
			Dur:   result.FinishedAt.Sub(started),
			Note:  err.Error(),
		})
		return result, fmt.Errorf("discover %s: %w", listingURL, err)
	}
	if opts.MaxLinks > 0 && len(urls) > opts.MaxLinks {
		urls = urls[:opts.MaxLinks]
	}
	if len(urls) == 0 {
		logger.Warn("no products found")
		result.FinishedAt = p.clock.Now()
		p.emit(ctx, progress.Event{Stage: progress.StageRunDone, Dur: result.FinishedAt.Sub(started)})
		return result, crawler.ErrNoResults
	}
	logger.Info("found items", zap.Int("items", len(urls)))
	if opts.OnDiscovered != nil {
		opts.OnDiscovered(len(urls))
	}

	out := p.runner.Run(ctx, urls, opts.Concurrency)
	if out.Records != nil {
		result.Records = out.Records
	}
	result.Failures = out.Failures
	result.FinishedAt = p.clock.Now()
	logger.Info("run complete",
		zap.Int("records", len(result.Records)),
		zap.Int("failures", len(result.Failures)),
		zap.Duration("dur", result.FinishedAt.Sub(started)),
	)
	p.emit(ctx, progress.Event{
		Stage:   progress.StageRunDone,
		Dur:     result.FinishedAt.Sub(started),
		Records: len(result.Records),
	})
	return result, nil
}

func (p *Pipeline) emit(ctx context.Context, evt progress.Event) {
	evt.RunID = progress.RunIDFromContext(ctx)
	evt.Backend = string(p.cfg.Backend)
	evt.TS = p.clock.Now().UTC()
	if evt.Dur < 0 {
		evt.Dur = 0
	}
	p.emitter.Emit(evt)
}
