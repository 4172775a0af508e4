package crawler

import (
	"strings"
	"time"
)

// DefaultFieldValue is the sentinel used when a text field has no match.
const DefaultFieldValue = "N/A"

// Backend names a fetch implementation.
type Backend string

// Supported fetch backends.
const (
	BackendLightweight Backend = "lightweight"
	BackendRendered    Backend = "rendered"
)

// Valid reports whether b names a known backend.
func (b Backend) Valid() bool {
	return b == BackendLightweight || b == BackendRendered
}

// TaskState tracks one detail page through fetch and extraction.
type TaskState string

// Task lifecycle states. Extracted and Failed are terminal.
const (
	TaskPending   TaskState = "pending"
	TaskFetching  TaskState = "fetching"
	TaskExtracted TaskState = "extracted"
	TaskFailed    TaskState = "failed"
)

// Terminal reports whether no further transition is possible.
func (s TaskState) Terminal() bool {
	return s == TaskExtracted || s == TaskFailed
}

// ListingQuery is a trimmed, non-empty search term.
type ListingQuery struct {
	term string
}

// NewListingQuery validates raw user input.
func NewListingQuery(raw string) (ListingQuery, error) {
	term := strings.TrimSpace(raw)
	if term == "" {
		return ListingQuery{}, ErrEmptyQuery
	}
	return ListingQuery{term: term}, nil
}

// Term returns the trimmed search term.
func (q ListingQuery) Term() string {
	return q.term
}

// ItemNumber is the trailing path segment of a detail URL.
type ItemNumber string

// DetailURL is a fully-qualified item detail page URL.
type DetailURL string

func (u DetailURL) String() string {
	return string(u)
}

// ProductRecord is the extracted view of one detail page. Every field is
// always populated; unmatched text fields hold DefaultFieldValue and Images
// is an empty, non-nil slice.
type ProductRecord struct {
	URL     string   `json:"url" yaml:"url"`
	Title   string   `json:"title" yaml:"title"`
	Feature string   `json:"feature" yaml:"feature"`
	Images  []string `json:"images" yaml:"images"`
}

// NewProductRecord returns a record for url with every field defaulted.
func NewProductRecord(url string) ProductRecord {
	return ProductRecord{
		URL:     url,
		Title:   DefaultFieldValue,
		Feature: DefaultFieldValue,
		Images:  []string{},
	}
}

// TaskFailure describes a detail page that produced no record.
type TaskFailure struct {
	URL   string    `json:"url" yaml:"url"`
	Kind  FetchKind `json:"kind" yaml:"kind"`
	Error string    `json:"error" yaml:"error"`
}

// CrawlResult aggregates one run. Records arrive in completion order; failed
// pages never appear in Records and are listed in Failures instead.
type CrawlResult struct {
	RunID      string          `json:"run_id" yaml:"run_id"`
	Query      string          `json:"query" yaml:"query"`
	Backend    Backend         `json:"backend" yaml:"backend"`
	StartedAt  time.Time       `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time       `json:"finished_at" yaml:"finished_at"`
	Records    []ProductRecord `json:"records" yaml:"records"`
	Failures   []TaskFailure   `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// Attempted returns how many detail pages were processed.
func (r CrawlResult) Attempted() int {
	return len(r.Records) + len(r.Failures)
}
