// Package report delivers crawl results to the console, files, object
// storage and message topics.
package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

// Sink receives the result of one run.
type Sink interface {
	Write(ctx context.Context, result crawler.CrawlResult) error
}

// Named pairs a sink with the name used in logs and errors.
type Named struct {
	Name string
	Sink Sink
}

// Multi fans a result out to every sink. All sinks are attempted; failures
// are joined.
type Multi []Named

// Write implements Sink.
func (m Multi) Write(ctx context.Context, result crawler.CrawlResult) error {
	var errs []error
	for _, s := range m {
		if s.Sink == nil {
			continue
		}
		if err := s.Sink.Write(ctx, result); err != nil {
			errs = append(errs, fmt.Errorf("%s sink: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}
