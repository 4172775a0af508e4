package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/config"
	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/pipeline"
)

type fakeApp struct {
	cfg      config.Config
	queries  []string
	result   crawler.CrawlResult
	err      error
	reported []crawler.CrawlResult
	closed   bool
}

func (f *fakeApp) Crawl(_ context.Context, query string, opts pipeline.RunOptions) (crawler.CrawlResult, error) {
	f.queries = append(f.queries, query)
	if f.err == nil && opts.OnDiscovered != nil {
		opts.OnDiscovered(len(f.result.Records))
	}
	return f.result, f.err
}

func (f *fakeApp) Report(_ context.Context, result crawler.CrawlResult) error {
	f.reported = append(f.reported, result)
	return nil
}

func (f *fakeApp) Close(context.Context) error {
	f.closed = true
	return nil
}

// useFakeApp swaps the application factory for the duration of t.
func useFakeApp(t *testing.T, fake *fakeApp) *int {
	t.Helper()
	calls := new(int)
	orig := newApp
	newApp = func(_ context.Context, cfg config.Config, _ *zap.Logger, _ io.Writer) (App, error) {
		*calls++
		fake.cfg = cfg
		return fake, nil
	}
	t.Cleanup(func() {
		newApp = orig
		cfgFile = ""
	})
	t.Chdir(t.TempDir())
	return calls
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func sampleResult() crawler.CrawlResult {
	return crawler.CrawlResult{
		RunID: "run-1",
		Query: "boom truck",
		Records: []crawler.ProductRecord{
			crawler.NewProductRecord("https://www.rbauction.com/pdp/a/1"),
			crawler.NewProductRecord("https://www.rbauction.com/pdp/b/2"),
		},
	}
}

func TestCrawlWithArgs(t *testing.T) {
	fake := &fakeApp{result: sampleResult()}
	useFakeApp(t, fake)

	out, err := execute(t, "", "crawl", "boom", "truck")
	require.NoError(t, err)
	require.Equal(t, []string{"boom truck"}, fake.queries)
	require.Contains(t, out, "[INFO] Searching for: boom truck")
	require.Contains(t, out, "[INFO] Found 2 items. Scraping details...")
	require.Len(t, fake.reported, 1)
	require.True(t, fake.closed)
}

func TestCrawlPromptsWithoutTerm(t *testing.T) {
	fake := &fakeApp{result: sampleResult()}
	useFakeApp(t, fake)

	out, err := execute(t, "  excavator \n", "crawl")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, searchPrompt))
	require.Equal(t, []string{"excavator"}, fake.queries)
}

func TestCrawlEmptyTermDoesNotBuildApp(t *testing.T) {
	fake := &fakeApp{}
	calls := useFakeApp(t, fake)

	out, err := execute(t, "   \n", "crawl")
	require.NoError(t, err)
	require.Contains(t, out, "Please enter a valid search term.")
	require.Zero(t, *calls)
	require.Empty(t, fake.queries)
}

func TestCrawlNoResults(t *testing.T) {
	fake := &fakeApp{err: fmt.Errorf("crawl %q: %w", "unobtainium", crawler.ErrNoResults)}
	useFakeApp(t, fake)

	out, err := execute(t, "", "crawl", "-q", "unobtainium")
	require.NoError(t, err)
	require.Contains(t, out, "No products found. Try a different keyword.")
	require.Empty(t, fake.reported)
}

func TestCrawlFatalErrorIsReturned(t *testing.T) {
	fake := &fakeApp{err: &crawler.DiscoveryError{URL: "https://www.rbauction.com/search", Reason: "blocked"}}
	useFakeApp(t, fake)

	_, err := execute(t, "", "crawl", "truck")
	require.Error(t, err)
	require.True(t, fake.closed)
}

func TestCrawlFlagsOverrideConfig(t *testing.T) {
	fake := &fakeApp{result: sampleResult()}
	useFakeApp(t, fake)

	_, err := execute(t, "", "crawl", "loader",
		"--backend", "rendered",
		"--concurrency", "7",
		"--max-links", "4",
		"--sink", "console,file",
	)
	require.NoError(t, err)
	require.Equal(t, string(crawler.BackendRendered), fake.cfg.Crawler.Backend)
	require.Equal(t, 7, fake.cfg.Crawler.Concurrency)
	require.Equal(t, 4, fake.cfg.Discovery.MaxLinks)
	require.Equal(t, []string{config.SinkConsole, config.SinkFile}, fake.cfg.Report.Sinks)
}

func TestCrawlRejectsInvalidFlags(t *testing.T) {
	fake := &fakeApp{}
	calls := useFakeApp(t, fake)

	_, err := execute(t, "", "crawl", "loader", "--backend", "selenium")
	require.ErrorContains(t, err, "invalid flags")
	require.Zero(t, *calls)
}

func TestConfigFileFlag(t *testing.T) {
	fake := &fakeApp{result: sampleResult()}
	useFakeApp(t, fake)

	path := filepath.Join(t.TempDir(), "crawler.yaml")
	require.NoError(t, os.WriteFile(path, []byte("crawler:\n  concurrency: 2\n"), 0o600))

	_, err := execute(t, "", "--config", path, "crawl", "truck")
	require.NoError(t, err)
	require.Equal(t, 2, fake.cfg.Crawler.Concurrency)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	fake := &fakeApp{result: sampleResult()}
	useFakeApp(t, fake)

	cfg, err := config.Load("")
	require.NoError(t, err)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, lis, cfg, zap.NewNop()) }()

	url := "http://" + lis.Addr().String() + "/healthz"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url) //nolint:noctx // test probe
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
	require.True(t, fake.closed)
}
