package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

// BlobStore persists an encoded report and returns its URI. The local and
// GCS stores both satisfy it.
type BlobStore interface {
	PutObject(ctx context.Context, path, contentType string, data io.Reader) (string, error)
}

// BlobSink encodes a result and uploads it as {prefix}/{run_id}.{ext}.
type BlobSink struct {
	store  BlobStore
	prefix string
	format Format
	logger *zap.Logger
}

// NewBlobSink validates its inputs.
func NewBlobSink(store BlobStore, prefix string, format Format, logger *zap.Logger) (*BlobSink, error) {
	if store == nil {
		return nil, errors.New("blob store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlobSink{store: store, prefix: prefix, format: format, logger: logger}, nil
}

// Key returns the object path used for runID.
func (s *BlobSink) Key(runID string) string {
	return path.Join(s.prefix, runID+"."+s.format.Ext())
}

// Write implements Sink.
func (s *BlobSink) Write(ctx context.Context, result crawler.CrawlResult) error {
	if result.RunID == "" {
		return errors.New("result has no run id")
	}
	data, err := Encode(s.format, result)
	if err != nil {
		return err
	}
	uri, err := s.store.PutObject(ctx, s.Key(result.RunID), s.format.ContentType(), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("put report: %w", err)
	}
	s.logger.Info("report written", zap.String("uri", uri), zap.Int("bytes", len(data)))
	return nil
}
