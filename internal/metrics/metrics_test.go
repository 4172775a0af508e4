package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://www.RBAuction.com/pdp/x", "www.rbauction.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitAndObservers(t *testing.T) {
	// Init is idempotent.
	Init()
	Init()

	if crawlerPagesTotal == nil || crawlerBytesTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil ||
		crawlerJitterDelaySeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	pages := crawlerPagesTotal.WithLabelValues("lightweight", "200")
	before := testutil.ToFloat64(pages)
	ObservePage("lightweight", "200", 2048)
	if got := testutil.ToFloat64(pages); got != before+1 {
		t.Errorf("expected pages counter to grow by 1, got %f -> %f", before, got)
	}

	kind := crawlerFetchErrorsTotal.WithLabelValues("timeout")
	before = testutil.ToFloat64(kind)
	ObserveFetchError("timeout")
	if got := testutil.ToFloat64(kind); got != before+1 {
		t.Errorf("expected fetch errors to grow by 1, got %f -> %f", before, got)
	}

	IncActiveWorkers()
	if got := testutil.ToFloat64(crawlerActiveWorkers); got < 1 {
		t.Errorf("expected active workers >= 1, got %f", got)
	}
	DecActiveWorkers()

	ObserveJitter(1500 * time.Millisecond)
	ObserveDiscovery(12)
	ObserveRateLimitDelay("www.rbauction.com", 200*time.Millisecond)
	if n := testutil.CollectAndCount(crawlerJitterDelaySeconds); n != 1 {
		t.Errorf("expected jitter histogram to be collected, got %d", n)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://www.rbauction.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
