package crawler

import (
	"context"
	"time"
)

// Fetcher turns a URL into a queryable document. Lightweight and rendered
// backends both satisfy it and return *FetchError on failure.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Document, error)
}

// Extractor builds a ProductRecord from one fetched detail page. It never
// fails; missing fields resolve to their defaults.
type Extractor interface {
	Extract(doc *Document, item ItemNumber) ProductRecord
}

// LinkDiscoverer derives detail page URLs from a listing page.
type LinkDiscoverer interface {
	Discover(ctx context.Context, listingURL string) ([]DetailURL, error)
}

// HostLimiter throttles requests per host before they are issued.
type HostLimiter interface {
	Wait(ctx context.Context, url string) error
}

// Pauser blocks for a delay or until ctx is done.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}

// RandomSource yields pseudo-random integers. Implementations must be safe
// for concurrent use.
type RandomSource interface {
	IntN(n int) int
	Int64N(n int64) int64
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
