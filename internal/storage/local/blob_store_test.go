// Package local_test tests the local filesystem blob store.
package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-crawler/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})
	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})
	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "reports", "nested")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})
	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "runs/abc.json", "application/json", strings.NewReader(`{"ok":true}`))
	require.NoError(t, err)
	assert.Equal(t, "file://"+filepath.Join(dir, "runs", "abc.json"), uri)

	data, err := os.ReadFile(filepath.Join(dir, "runs", "abc.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(data))

	// Overwrites are allowed.
	_, err = store.PutObject(context.Background(), "runs/abc.json", "", strings.NewReader(`{}`))
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "", "", strings.NewReader("x"))
	assert.Error(t, err)
	_, err = store.PutObject(context.Background(), "../escape.json", "", strings.NewReader("x"))
	assert.ErrorContains(t, err, "path traversal")
}
