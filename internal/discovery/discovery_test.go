package discovery

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

const (
	baseOrigin = "https://www.rbauction.com"
	listingURL = "https://www.rbauction.com/search?freeText=truck&refreshSearch=true"
)

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, url string) (*crawler.Document, error) {
	args := m.Called(ctx, url)
	doc, _ := args.Get(0).(*crawler.Document)
	return doc, args.Error(1)
}

func listing(t *testing.T, body string) *crawler.Document {
	t.Helper()
	doc, err := crawler.ParseDocument(listingURL, http.StatusOK, []byte(body))
	require.NoError(t, err)
	return doc
}

func newDiscoverer(t *testing.T, f crawler.Fetcher, mutate func(*Config)) *Discoverer {
	t.Helper()
	cfg := Config{BaseOrigin: baseOrigin, Card: DefaultCard()}
	if mutate != nil {
		mutate(&cfg)
	}
	d, err := New(f, cfg, zap.NewNop())
	require.NoError(t, err)
	return d
}

func TestDiscoverDeduplicatesCards(t *testing.T) {
	t.Parallel()

	fetcher := &mockFetcher{}
	fetcher.On("Fetch", mock.Anything, listingURL).Return(listing(t, `<ul>
<li data-testid="searchResultItemCard-0"><a href="/pdp/x/111">x</a><a href="/pdp/ignored/9">second</a></li>
<li data-testid="searchResultItemCard-1"><a href="/pdp/y/222">y</a></li>
<li data-testid="searchResultItemCard-2"><a href="/pdp/y/222">y again</a></li>
</ul>`), nil)

	links, err := newDiscoverer(t, fetcher, nil).Discover(context.Background(), listingURL)
	require.NoError(t, err)
	require.Equal(t, []crawler.DetailURL{
		baseOrigin + "/pdp/x/111",
		baseOrigin + "/pdp/y/222",
	}, links)
	fetcher.AssertExpectations(t)
}

func TestDiscoverSkipsCardsWithoutLinksAndOtherNodes(t *testing.T) {
	t.Parallel()

	fetcher := &mockFetcher{}
	fetcher.On("Fetch", mock.Anything, listingURL).Return(listing(t, `<ul>
<li data-testid="searchResultItemCard-0"><a>no href</a></li>
<li data-testid="somethingElse-1"><a href="/pdp/z/333">z</a></li>
<li data-testid="searchResultItemCard-2"><span><a href="/pdp/w/444">w</a></span></li>
</ul>`), nil)

	links, err := newDiscoverer(t, fetcher, nil).Discover(context.Background(), listingURL)
	require.NoError(t, err)
	require.Equal(t, []crawler.DetailURL{baseOrigin + "/pdp/w/444"}, links)
}

func TestDiscoverEmptyListing(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	fetcher := &mockFetcher{}
	fetcher.On("Fetch", mock.Anything, listingURL).Return(listing(t, `<p>No results</p>`), nil)

	d, err := New(fetcher, Config{BaseOrigin: baseOrigin, Card: DefaultCard()}, zap.New(core))
	require.NoError(t, err)

	links, err := d.Discover(context.Background(), listingURL)
	require.NoError(t, err)
	require.Empty(t, links)
	require.Equal(t, 1, logs.FilterMessage("no result cards on listing page").Len())
}

func TestDiscoverPropagatesFetchError(t *testing.T) {
	t.Parallel()

	fetcher := &mockFetcher{}
	fetcher.On("Fetch", mock.Anything, listingURL).
		Return(nil, crawler.NewStatusError(listingURL, http.StatusForbidden))

	_, err := newDiscoverer(t, fetcher, nil).Discover(context.Background(), listingURL)
	var fe *crawler.FetchError
	require.True(t, errors.As(err, &fe))
	require.Equal(t, http.StatusForbidden, fe.StatusCode)
}

func TestDiscoverUnparsedDocumentIsDiscoveryError(t *testing.T) {
	t.Parallel()

	fetcher := &mockFetcher{}
	fetcher.On("Fetch", mock.Anything, listingURL).Return(&crawler.Document{URL: listingURL}, nil)

	_, err := newDiscoverer(t, fetcher, nil).Discover(context.Background(), listingURL)
	var de *crawler.DiscoveryError
	require.True(t, errors.As(err, &de))
	require.Equal(t, listingURL, de.URL)
}

func TestDiscoverOptions(t *testing.T) {
	t.Parallel()

	body := `<ul>
<li data-testid="searchResultItemCard-0"><a href="/pdp/a/1?utm=x">a</a></li>
<li data-testid="searchResultItemCard-1"><a href="/pdp/a/1?utm=y">a again</a></li>
<li data-testid="searchResultItemCard-2"><a href="/promo/banner">promo</a></li>
<li data-testid="searchResultItemCard-3"><a href="https://www.rbauction.com/pdp/b/2">b</a></li>
<li data-testid="searchResultItemCard-4"><a href="/pdp/c/3">c</a></li>
</ul>`
	fetcher := &mockFetcher{}
	fetcher.On("Fetch", mock.Anything, listingURL).Return(listing(t, body), nil)

	d := newDiscoverer(t, fetcher, func(c *Config) {
		c.StripQuery = true
		c.LinkContains = "/pdp/"
		c.MaxLinks = 2
	})
	links, err := d.Discover(context.Background(), listingURL)
	require.NoError(t, err)
	require.Equal(t, []crawler.DetailURL{
		baseOrigin + "/pdp/a/1",
		baseOrigin + "/pdp/b/2",
	}, links)
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{BaseOrigin: baseOrigin, Card: DefaultCard()}, nil)
	require.Error(t, err)
	_, err = New(&mockFetcher{}, Config{Card: DefaultCard()}, nil)
	require.Error(t, err)
	_, err = New(&mockFetcher{}, Config{BaseOrigin: baseOrigin, Card: DefaultCard(), MaxLinks: -1}, nil)
	require.Error(t, err)
}

type countingDiscoverer struct {
	calls int
	links []crawler.DetailURL
	err   error
}

func (c *countingDiscoverer) Discover(context.Context, string) ([]crawler.DetailURL, error) {
	c.calls++
	return c.links, c.err
}

func TestCachedDiscoverer(t *testing.T) {
	t.Parallel()

	inner := &countingDiscoverer{links: []crawler.DetailURL{baseOrigin + "/pdp/x/1"}}
	cached, err := NewCached(inner, 8, time.Minute, nil)
	require.NoError(t, err)

	for range 3 {
		links, err := cached.Discover(context.Background(), listingURL)
		require.NoError(t, err)
		require.Len(t, links, 1)
	}
	require.Equal(t, 1, inner.calls)
	require.Equal(t, 1, cached.Len())

	empty := &countingDiscoverer{links: []crawler.DetailURL{}}
	cachedEmpty, err := NewCached(empty, 8, time.Minute, nil)
	require.NoError(t, err)
	_, _ = cachedEmpty.Discover(context.Background(), listingURL)
	_, _ = cachedEmpty.Discover(context.Background(), listingURL)
	require.Equal(t, 2, empty.calls)

	failing := &countingDiscoverer{err: errors.New("boom")}
	cachedFailing, err := NewCached(failing, 8, time.Minute, nil)
	require.NoError(t, err)
	_, err = cachedFailing.Discover(context.Background(), listingURL)
	require.Error(t, err)
	require.Equal(t, 0, cachedFailing.Len())

	_, err = NewCached(inner, 0, time.Minute, nil)
	require.Error(t, err)
}
