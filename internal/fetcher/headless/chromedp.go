// Package headless implements the rendered crawler.Fetcher with chromedp.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

const (
	defaultNavigationTimeout = 45 * time.Second
	defaultSettleDelay       = 2 * time.Second
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	UserAgents        *crawler.UserAgentPool
	NavigationTimeout time.Duration
	// SettleDelay is slept after the body is ready so client-side rendering
	// can finish.
	SettleDelay time.Duration
	// ExecPath overrides the Chrome binary; empty uses chromedp's lookup.
	ExecPath string
	// Headful disables headless mode for local debugging.
	Headful bool
}

// Fetcher implements crawler.Fetcher with a fresh browser per call.
type Fetcher struct {
	cfg    Config
	logger *zap.Logger
}

// NewChromedp creates a headless fetcher backed by chromedp.
func NewChromedp(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if cfg.UserAgents == nil {
		return nil, errors.New("user agent pool is required")
	}
	if cfg.NavigationTimeout < 0 || cfg.SettleDelay < 0 {
		return nil, fmt.Errorf("navigation timeout and settle delay must be >= 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{cfg: cfg, logger: logger}, nil
}

// Fetch starts a browser, renders url, and returns the resulting DOM. The
// browser and its allocator are torn down before Fetch returns on every path.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*crawler.Document, error) {
	userAgent := f.cfg.UserAgents.Pick()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, f.allocatorOptions(userAgent)...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	taskCtx, cancel := context.WithTimeout(browserCtx, f.navTimeout())
	defer cancel()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	start := time.Now()
	html, finalURL, err := f.runHeadless(taskCtx, url, userAgent)
	if err != nil {
		f.logger.Debug("rendered fetch failed", zap.String("url", url), zap.Error(err))
		return nil, classifyRunError(ctx, taskCtx, url, err)
	}

	status, responseURL := meta.snapshotWithFallbacks(url, finalURL)
	if status >= http.StatusBadRequest {
		return nil, crawler.NewStatusError(url, status)
	}

	doc, err := crawler.ParseDocument(responseURL, status, []byte(html))
	if err != nil {
		return nil, &crawler.FetchError{Kind: crawler.FetchNetwork, URL: url, StatusCode: status, Err: err}
	}
	doc.Backend = crawler.BackendRendered
	doc.Duration = time.Since(start)
	f.logger.Debug("rendered fetch done",
		zap.String("url", url),
		zap.Int("status", status),
		zap.Int("bytes", doc.Bytes),
		zap.Duration("dur", doc.Duration),
	)
	return doc, nil
}

func (f *Fetcher) allocatorOptions(userAgent string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(userAgent),
	)
	if f.cfg.Headful {
		opts = append(opts, chromedp.Flag("headless", false))
	} else {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}
	if f.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(f.cfg.ExecPath))
	}
	return opts
}

func (f *Fetcher) runHeadless(ctx context.Context, url, userAgent string) (string, string, error) {
	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		networkSetupAction(userAgent),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(f.settleDelay()),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, finalURL, nil
}

func networkSetupAction(userAgent string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if userAgent != "" {
			if err := emulation.SetUserAgentOverride(userAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// classifyRunError maps a chromedp failure onto the fetch taxonomy. A caller
// cancellation wins over the navigation deadline.
func classifyRunError(parent, task context.Context, url string, err error) *crawler.FetchError {
	switch {
	case parent.Err() != nil:
		return crawler.ClassifyFetchError(url, fmt.Errorf("%w: %w", parent.Err(), err))
	case errors.Is(task.Err(), context.DeadlineExceeded):
		return &crawler.FetchError{Kind: crawler.FetchTimeout, URL: url, Err: err}
	default:
		return crawler.ClassifyFetchError(url, err)
	}
}

type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// Redirect chains report several documents; the last one is the page.
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, string) {
	m.mu.RLock()
	status, url := m.status, m.url
	m.mu.RUnlock()
	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, url
}

func (f *Fetcher) navTimeout() time.Duration {
	if f.cfg.NavigationTimeout > 0 {
		return f.cfg.NavigationTimeout
	}
	return defaultNavigationTimeout
}

func (f *Fetcher) settleDelay() time.Duration {
	if f.cfg.SettleDelay > 0 {
		return f.cfg.SettleDelay
	}
	return defaultSettleDelay
}
