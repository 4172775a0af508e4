// Package dispatcher fans detail page tasks out to a bounded pool and
// collects their records.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/clock/system"
	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/metrics"
	"github.com/JakeFAU/catalog-crawler/internal/progress"
)

// DefaultConcurrency is used when neither the call nor the config sets a width.
const DefaultConcurrency = 3

// Config tunes the pool.
type Config struct {
	// Concurrency is the pool width used when Run is given a non-positive value.
	Concurrency int
	// TaskTimeout bounds one fetch plus extraction; 0 leaves it to the fetcher.
	TaskTimeout time.Duration
	// Backend labels results and metrics.
	Backend crawler.Backend
}

// Dispatcher runs fetch-extract tasks with at most N in flight and a jittered
// pause after each completion.
type Dispatcher struct {
	fetcher   crawler.Fetcher
	extractor crawler.Extractor
	jitter    *crawler.Jitter
	pauser    crawler.Pauser
	limiter   crawler.HostLimiter
	emitter   progress.Emitter
	clock     crawler.Clock
	cfg       Config
	logger    *zap.Logger
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithLimiter makes every task wait on a per-host limiter before fetching.
func WithLimiter(l crawler.HostLimiter) Option {
	return func(d *Dispatcher) { d.limiter = l }
}

// WithEmitter routes task lifecycle events to e.
func WithEmitter(e progress.Emitter) Option {
	return func(d *Dispatcher) {
		if e != nil {
			d.emitter = e
		}
	}
}

// WithPauser replaces the timer used for jitter pauses.
func WithPauser(p crawler.Pauser) Option {
	return func(d *Dispatcher) {
		if p != nil {
			d.pauser = p
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(c crawler.Clock) Option {
	return func(d *Dispatcher) {
		if c != nil {
			d.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// New wires a Dispatcher.
func New(fetcher crawler.Fetcher, extractor crawler.Extractor, jitter *crawler.Jitter, cfg Config, opts ...Option) (*Dispatcher, error) {
	switch {
	case fetcher == nil:
		return nil, errors.New("fetcher is required")
	case extractor == nil:
		return nil, errors.New("extractor is required")
	case jitter == nil:
		return nil, errors.New("jitter is required")
	case cfg.Concurrency < 0:
		return nil, fmt.Errorf("concurrency must be >= 0, got %d", cfg.Concurrency)
	case cfg.TaskTimeout < 0:
		return nil, fmt.Errorf("task timeout must be >= 0, got %s", cfg.TaskTimeout)
	}
	if cfg.Backend == "" {
		cfg.Backend = crawler.BackendLightweight
	}
	metrics.Init()
	d := &Dispatcher{
		fetcher:   fetcher,
		extractor: extractor,
		jitter:    jitter,
		pauser:    crawler.TimerPauser{},
		emitter:   progress.Nop{},
		clock:     system.New(),
		cfg:       cfg,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.Named("dispatcher")
	return d, nil
}

type outcome struct {
	url     crawler.DetailURL
	record  crawler.ProductRecord
	err     *crawler.FetchError
	status  int
	bytes   int
	dur     time.Duration
	skipped bool
}

// Run processes urls with at most concurrency tasks in flight. Records are
// returned in completion order and failed pages are reported in Failures.
// When ctx ends, URLs not yet dispatched are recorded as canceled.
func (d *Dispatcher) Run(ctx context.Context, urls []crawler.DetailURL, concurrency int) crawler.CrawlResult {
	result := crawler.CrawlResult{
		Backend: d.cfg.Backend,
		Records: make([]crawler.ProductRecord, 0, len(urls)),
	}
	if len(urls) == 0 {
		return result
	}
	width := d.width(concurrency)
	d.logger.Info("dispatching detail pages", zap.Int("urls", len(urls)), zap.Int("concurrency", width))

	slots := make(chan struct{}, width)
	outcomes := make(chan outcome, len(urls))
	go d.dispatch(ctx, urls, slots, outcomes)

	for range urls {
		out := <-outcomes
		d.collect(ctx, &result, out)
		if out.skipped {
			continue
		}
		delay := d.jitter.Next()
		metrics.ObserveJitter(delay)
		d.pauser.Pause(ctx, delay)
		<-slots
	}
	d.logger.Info("dispatch finished",
		zap.Int("records", len(result.Records)),
		zap.Int("failures", len(result.Failures)),
	)
	return result
}

func (d *Dispatcher) width(concurrency int) int {
	switch {
	case concurrency > 0:
		return concurrency
	case d.cfg.Concurrency > 0:
		return d.cfg.Concurrency
	default:
		return DefaultConcurrency
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, urls []crawler.DetailURL, slots chan<- struct{}, outcomes chan<- outcome) {
	for i, u := range urls {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			for _, rest := range urls[i:] {
				outcomes <- outcome{url: rest, err: crawler.ClassifyFetchError(rest.String(), ctx.Err()), skipped: true}
			}
			return
		}
		go func(u crawler.DetailURL) {
			outcomes <- d.runTask(ctx, u)
		}(u)
	}
}

func (d *Dispatcher) runTask(ctx context.Context, u crawler.DetailURL) (out outcome) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	start := d.clock.Now()
	out.url = u
	d.emit(ctx, progress.Event{Stage: progress.StageTaskStart, URL: u.String()})
	d.logger.Debug("task state", zap.String("url", u.String()), zap.String("state", string(crawler.TaskFetching)))

	defer func() {
		if r := recover(); r != nil {
			out.err = &crawler.FetchError{Kind: crawler.FetchInternal, URL: u.String(), Err: fmt.Errorf("panic: %v", r)}
		}
		out.dur = d.clock.Now().Sub(start)
	}()

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, u.String()); err != nil {
			out.err = crawler.ClassifyFetchError(u.String(), err)
			return out
		}
	}

	taskCtx := ctx
	if d.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, d.cfg.TaskTimeout)
		defer cancel()
	}

	doc, err := d.fetcher.Fetch(taskCtx, u.String())
	if err != nil {
		out.err = crawler.ClassifyFetchError(u.String(), err)
		return out
	}
	if doc != nil {
		out.status = doc.StatusCode
		out.bytes = doc.Bytes
	}

	record := d.extractor.Extract(doc, u.ItemNumber())
	record.URL = u.String()
	out.record = record
	return out
}

func (d *Dispatcher) collect(ctx context.Context, result *crawler.CrawlResult, out outcome) {
	if out.err != nil {
		d.logger.Warn("detail page failed",
			zap.String("url", out.url.String()),
			zap.String("kind", string(out.err.Kind)),
			zap.Bool("dispatched", !out.skipped),
			zap.Error(out.err),
		)
		metrics.ObserveFetchError(string(out.err.Kind))
		result.Failures = append(result.Failures, crawler.TaskFailure{
			URL:   out.url.String(),
			Kind:  out.err.Kind,
			Error: out.err.Error(),
		})
		d.emit(ctx, progress.Event{
			Stage: progress.StageTaskFailed,
			URL:   out.url.String(),
			Dur:   out.dur,
			Note:  string(out.err.Kind),
		})
		return
	}
	metrics.ObservePage(string(d.cfg.Backend), strconv.Itoa(out.status), out.bytes)
	result.Records = append(result.Records, out.record)
	d.logger.Debug("task state",
		zap.String("url", out.url.String()),
		zap.String("state", string(crawler.TaskExtracted)),
		zap.Duration("dur", out.dur),
	)
	d.emit(ctx, progress.Event{
		Stage:       progress.StageTaskDone,
		URL:         out.url.String(),
		Bytes:       int64(out.bytes),
		StatusClass: progress.ClassifyStatus(out.status),
		Dur:         out.dur,
	})
}

func (d *Dispatcher) emit(ctx context.Context, evt progress.Event) {
	runID := progress.RunIDFromContext(ctx)
	if runID == "" {
		return
	}
	evt.RunID = runID
	evt.Backend = string(d.cfg.Backend)
	evt.TS = d.clock.Now().UTC()
	d.emitter.Emit(evt)
}
