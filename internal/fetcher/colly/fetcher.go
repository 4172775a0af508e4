// Package collyfetcher implements the lightweight crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

const defaultTimeout = 10 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgents    *crawler.UserAgentPool
	RespectRobots bool
	Timeout       time.Duration
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithTransport replaces the HTTP transport, e.g. with httpmock in tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Fetcher) {
		f.transport = rt
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// Fetcher implements crawler.Fetcher with one GET per call through a cloned
// Colly collector.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. The shared collector is configured once here; Fetch
// only touches per-call clones.
func New(cfg Config, opts ...Option) (*Fetcher, error) {
	if cfg.UserAgents == nil {
		return nil, errors.New("user agent pool is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	f := &Fetcher{
		cfg:       cfg,
		transport: newHTTPTransport(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}

	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.ParseHTTPErrorResponse = true
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	c.WithTransport(f.transport)
	c.SetRequestTimeout(cfg.Timeout)
	f.baseCollector = c
	return f, nil
}

// Fetch executes a single HTTP GET with a randomly chosen User-Agent.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*crawler.Document, error) {
	var (
		result   fetchResult
		fetchErr error
	)
	start := time.Now()
	collector := f.baseCollector.Clone()
	collector.UserAgent = f.cfg.UserAgents.Pick()
	f.configureCollectorHooks(collector, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, url, &fetchErr); err != nil {
		f.logger.Debug("lightweight fetch failed", zap.String("url", url), zap.Error(err))
		return nil, crawler.ClassifyFetchError(url, err)
	}
	if result.status < 200 || result.status >= 300 {
		return nil, crawler.NewStatusError(url, result.status)
	}

	doc, err := crawler.ParseDocument(result.url, result.status, result.body)
	if err != nil {
		return nil, &crawler.FetchError{Kind: crawler.FetchNetwork, URL: url, StatusCode: result.status, Err: err}
	}
	doc.Backend = crawler.BackendLightweight
	doc.Duration = time.Since(start)
	f.logger.Debug("lightweight fetch done",
		zap.String("url", url),
		zap.Int("status", result.status),
		zap.Int("bytes", doc.Bytes),
		zap.Duration("dur", doc.Duration),
	)
	return doc, nil
}

type fetchResult struct {
	url    string
	status int
	body   []byte
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *fetchResult, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml")
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = fetchResult{
			url:    r.Request.URL.String(),
			status: r.StatusCode,
			body:   append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
