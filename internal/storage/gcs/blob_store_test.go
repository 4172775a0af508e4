package gcs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type memWriter struct {
	bytes.Buffer
	closeErr error
	closed   bool
}

func (w *memWriter) Close() error {
	w.closed = true
	return w.closeErr
}

type memBucket struct {
	objects     map[string]*memWriter
	contentType map[string]string
	closeErr    error
}

func newMemBucket() *memBucket {
	return &memBucket{objects: map[string]*memWriter{}, contentType: map[string]string{}}
}

func (b *memBucket) open(_ context.Context, bucket, object, contentType string) io.WriteCloser {
	w := &memWriter{closeErr: b.closeErr}
	key := bucket + "/" + object
	b.objects[key] = w
	b.contentType[key] = contentType
	return w
}

func TestPutObject(t *testing.T) {
	t.Parallel()

	bucket := newMemBucket()
	store, err := NewWithWriter(bucket.open, Config{Bucket: "reports", Prefix: "/crawls/"})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "run-1.json", "application/json", strings.NewReader(`{"a":1}`))
	require.NoError(t, err)
	require.Equal(t, "gs://reports/crawls/run-1.json", uri)

	w := bucket.objects["reports/crawls/run-1.json"]
	require.NotNil(t, w)
	require.True(t, w.closed)
	require.Equal(t, `{"a":1}`, w.String())
	require.Equal(t, "application/json", bucket.contentType["reports/crawls/run-1.json"])
}

func TestPutObjectErrors(t *testing.T) {
	t.Parallel()

	bucket := newMemBucket()
	bucket.closeErr = errors.New("upload rejected")
	store, err := NewWithWriter(bucket.open, Config{Bucket: "reports"})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "", "", strings.NewReader("x"))
	require.Error(t, err)

	_, err = store.PutObject(context.Background(), "run.json", "", strings.NewReader("x"))
	require.ErrorContains(t, err, "upload rejected")
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)
	_, err = NewWithWriter(nil, Config{Bucket: "b"})
	require.Error(t, err)
	_, err = NewWithWriter(newMemBucket().open, Config{})
	require.Error(t, err)
}
