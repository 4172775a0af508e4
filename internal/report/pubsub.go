package report

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

// Publisher sends one JSON payload with attributes and returns the server
// assigned message ID.
type Publisher interface {
	Publish(ctx context.Context, attrs map[string]string, payload any) (string, error)
}

// RecordMessage is the payload published for each record.
type RecordMessage struct {
	RunID  string                `json:"run_id"`
	Query  string                `json:"query"`
	Record crawler.ProductRecord `json:"record"`
}

// PubSubSink publishes one message per extracted record.
type PubSubSink struct {
	publisher Publisher
	logger    *zap.Logger
}

// NewPubSubSink validates its inputs.
func NewPubSubSink(p Publisher, logger *zap.Logger) (*PubSubSink, error) {
	if p == nil {
		return nil, errors.New("publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PubSubSink{publisher: p, logger: logger}, nil
}

// Write implements Sink. Publishing stops at the first failure.
func (s *PubSubSink) Write(ctx context.Context, result crawler.CrawlResult) error {
	for i, rec := range result.Records {
		attrs := map[string]string{
			"run_id":  result.RunID,
			"backend": string(result.Backend),
		}
		id, err := s.publisher.Publish(ctx, attrs, RecordMessage{RunID: result.RunID, Query: result.Query, Record: rec})
		if err != nil {
			return fmt.Errorf("publish record %d of %d: %w", i+1, len(result.Records), err)
		}
		s.logger.Debug("record published", zap.String("message_id", id), zap.String("url", rec.URL))
	}
	return nil
}
