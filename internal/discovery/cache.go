package discovery

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

// CachedDiscoverer memoizes non-empty discovery results per listing URL for
// a fixed TTL. Errors and empty results are never cached.
type CachedDiscoverer struct {
	next   crawler.LinkDiscoverer
	cache  *expirable.LRU[string, []crawler.DetailURL]
	logger *zap.Logger
}

// NewCached wraps next with an expiring LRU of the given size.
func NewCached(next crawler.LinkDiscoverer, size int, ttl time.Duration, logger *zap.Logger) (*CachedDiscoverer, error) {
	if next == nil {
		return nil, errors.New("discoverer is required")
	}
	if size <= 0 || ttl <= 0 {
		return nil, errors.New("cache size and ttl must be > 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedDiscoverer{
		next:   next,
		cache:  expirable.NewLRU[string, []crawler.DetailURL](size, nil, ttl),
		logger: logger,
	}, nil
}

// Discover implements crawler.LinkDiscoverer.
func (c *CachedDiscoverer) Discover(ctx context.Context, listingURL string) ([]crawler.DetailURL, error) {
	if links, ok := c.cache.Get(listingURL); ok {
		c.logger.Debug("discovery cache hit", zap.String("url", listingURL), zap.Int("links", len(links)))
		return append([]crawler.DetailURL(nil), links...), nil
	}
	links, err := c.next.Discover(ctx, listingURL)
	if err != nil {
		return nil, err
	}
	if len(links) > 0 {
		c.cache.Add(listingURL, append([]crawler.DetailURL(nil), links...))
	}
	return links, nil
}

// Len reports the number of cached listings.
func (c *CachedDiscoverer) Len() int {
	return c.cache.Len()
}
