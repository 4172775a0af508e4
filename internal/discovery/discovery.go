// Package discovery derives detail page URLs from a catalog listing page.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/extract"
)

// Config describes how result cards and their links are recognised.
type Config struct {
	BaseOrigin string
	// Card selects one search result container.
	Card extract.Selector
	// LinkTag is the anchor tag searched inside each card.
	LinkTag string
	// LinkContains keeps only hrefs containing this substring when set.
	LinkContains string
	// StripQuery drops query strings from resolved links before dedupe.
	StripQuery bool
	// MaxLinks caps the result after dedupe; 0 means unlimited.
	MaxLinks int
}

// DefaultCard matches the catalog's search result cards.
func DefaultCard() extract.Selector {
	return extract.Selector{Tag: "li", Where: extract.Prefix("data-testid", "searchResultItemCard-")}
}

// Discoverer implements crawler.LinkDiscoverer over a Fetcher.
type Discoverer struct {
	fetcher crawler.Fetcher
	cfg     Config
	logger  *zap.Logger
}

// New validates cfg and returns a Discoverer.
func New(fetcher crawler.Fetcher, cfg Config, logger *zap.Logger) (*Discoverer, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if strings.TrimSpace(cfg.BaseOrigin) == "" {
		return nil, errors.New("base origin is required")
	}
	if cfg.MaxLinks < 0 {
		return nil, fmt.Errorf("max links must be >= 0, got %d", cfg.MaxLinks)
	}
	if err := cfg.Card.Validate(); err != nil {
		return nil, fmt.Errorf("card selector: %w", err)
	}
	if cfg.LinkTag == "" {
		cfg.LinkTag = "a"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{fetcher: fetcher, cfg: cfg, logger: logger.Named("discovery")}, nil
}

// Discover fetches listingURL and returns its detail URLs in first-seen
// order. Fetch failures propagate unchanged; an unreadable listing yields a
// *crawler.DiscoveryError. A listing without cards returns an empty slice.
func (d *Discoverer) Discover(ctx context.Context, listingURL string) ([]crawler.DetailURL, error) {
	doc, err := d.fetcher.Fetch(ctx, listingURL)
	if err != nil {
		return nil, fmt.Errorf("fetch listing: %w", err)
	}
	return d.Links(listingURL, doc)
}

// Links extracts detail URLs from an already fetched listing page.
func (d *Discoverer) Links(listingURL string, doc *crawler.Document) ([]crawler.DetailURL, error) {
	if !doc.Parsed() {
		d.logger.Warn("listing page could not be parsed", zap.String("url", listingURL))
		return nil, &crawler.DiscoveryError{URL: listingURL, Reason: "listing page has no document"}
	}

	cards := doc.Selection().Find("*").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return d.cfg.Card.Matches(s.Get(0))
	})
	if cards.Length() == 0 {
		d.logger.Warn("no result cards on listing page", zap.String("url", listingURL))
		return []crawler.DetailURL{}, nil
	}

	seen := make(map[crawler.DetailURL]struct{}, cards.Length())
	links := make([]crawler.DetailURL, 0, cards.Length())
	cards.Each(func(i int, card *goquery.Selection) {
		href, ok := card.Find(d.cfg.LinkTag + "[href]").First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			d.logger.Debug("result card without link", zap.Int("card", i))
			return
		}
		if d.cfg.LinkContains != "" && !strings.Contains(href, d.cfg.LinkContains) {
			return
		}
		link, absolute := crawler.ResolveDetailURL(d.cfg.BaseOrigin, href)
		if absolute {
			d.logger.Warn("result card link already absolute", zap.String("href", href))
		}
		if d.cfg.StripQuery {
			link = crawler.StripQuery(link)
		}
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	})

	if d.cfg.MaxLinks > 0 && len(links) > d.cfg.MaxLinks {
		d.logger.Info("capping discovered links",
			zap.Int("found", len(links)),
			zap.Int("max_links", d.cfg.MaxLinks),
		)
		links = links[:d.cfg.MaxLinks]
	}
	d.logger.Info("discovered detail pages",
		zap.String("url", listingURL),
		zap.Int("cards", cards.Length()),
		zap.Int("links", len(links)),
	)
	return links, nil
}
