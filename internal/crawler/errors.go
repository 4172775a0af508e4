package crawler

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrEmptyQuery is returned when the search term is blank.
	ErrEmptyQuery = errors.New("search term is empty")
	// ErrNoResults is returned when discovery finds no detail pages.
	ErrNoResults = errors.New("no products found")
)

// FetchKind classifies a fetch failure.
type FetchKind string

// Fetch failure kinds.
const (
	FetchNetwork    FetchKind = "network"
	FetchTimeout    FetchKind = "timeout"
	FetchHTTPStatus FetchKind = "http-status"
	FetchCanceled   FetchKind = "canceled"
	// FetchInternal marks failures raised after a successful fetch, such as a
	// recovered extraction panic.
	FetchInternal FetchKind = "internal"
)

// FetchError is returned by every Fetcher.
type FetchError struct {
	Kind       FetchKind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.Kind == FetchHTTPStatus:
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewStatusError reports a non-2xx response.
func NewStatusError(url string, status int) *FetchError {
	return &FetchError{Kind: FetchHTTPStatus, URL: url, StatusCode: status}
}

// ClassifyFetchError wraps a transport failure with the matching kind.
// Existing *FetchError values pass through unchanged.
func ClassifyFetchError(url string, err error) *FetchError {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	kind := FetchNetwork
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		kind = FetchCanceled
	case errors.Is(err, context.DeadlineExceeded):
		kind = FetchTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = FetchTimeout
	}
	return &FetchError{Kind: kind, URL: url, Err: err}
}

// KindOf returns the fetch kind carried by err, or FetchInternal.
func KindOf(err error) FetchKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return FetchInternal
}

// DiscoveryError reports a listing page that could not be read.
type DiscoveryError struct {
	URL    string
	Reason string
	Err    error
}

func (e *DiscoveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("discover %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("discover %s: %s", e.URL, e.Reason)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}
