package report

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

var rule = strings.Repeat("=", 60)

// ConsoleSink prints one block per record.
type ConsoleSink struct {
	w io.Writer
}

// NewConsoleSink writes to w.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	return &ConsoleSink{w: w}
}

// Write implements Sink.
func (s *ConsoleSink) Write(_ context.Context, result crawler.CrawlResult) error {
	var b strings.Builder
	for _, rec := range result.Records {
		fmt.Fprintln(&b, rule)
		fmt.Fprintf(&b, "URL     : %s\n", rec.URL)
		fmt.Fprintf(&b, "Title   : %s\n", rec.Title)
		fmt.Fprintf(&b, "Feature : %s\n", rec.Feature)
		fmt.Fprintf(&b, "Images  : [%s]\n", strings.Join(rec.Images, ", "))
		fmt.Fprintln(&b, rule)
		fmt.Fprintln(&b)
	}
	if _, err := io.WriteString(s.w, b.String()); err != nil {
		return fmt.Errorf("write console report: %w", err)
	}
	return nil
}
