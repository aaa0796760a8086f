// Package local_test tests the local filesystem blob store.
package local_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/opinion-crawler/internal/storage/local"
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

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "testfile")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})

	t.Run("DoesNotCreateDirectory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "images")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)

		_, statErr := os.Stat(dir)
		assert.True(t, os.IsNotExist(statErr))
	})
}

func TestPutObject(t *testing.T) {
	ctx := context.Background()

	t.Run("CreatesDirectoryLazily", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "images")
		store, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)

		uri, err := store.PutObject(ctx, "article_1.jpg", "image/jpeg", bytes.NewReader([]byte("jpeg-bytes")))
		require.NoError(t, err)
		assert.Equal(t, "file://"+filepath.Join(dir, "article_1.jpg"), uri)

		content, err := os.ReadFile(filepath.Join(dir, "article_1.jpg"))
		require.NoError(t, err)
		assert.Equal(t, "jpeg-bytes", string(content))
	})

	t.Run("EmptyPath", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		_, err = store.PutObject(ctx, " ", "", bytes.NewReader(nil))
		assert.Error(t, err)
	})

	t.Run("PathTraversal", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		_, err = store.PutObject(ctx, "../../etc/passwd", "", bytes.NewReader([]byte("x")))
		assert.ErrorContains(t, err, "path traversal")
	})

	t.Run("RemovesPartialFile", func(t *testing.T) {
		dir := t.TempDir()
		store, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)

		_, err = store.PutObject(ctx, "broken.jpg", "", failingReader{})
		require.Error(t, err)
		_, statErr := os.Stat(filepath.Join(dir, "broken.jpg"))
		assert.True(t, os.IsNotExist(statErr))
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries, "temporary file must be cleaned up")
	})

	t.Run("ConcurrentWritersSameName", func(t *testing.T) {
		dir := t.TempDir()
		store, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)

		payload := bytes.Repeat([]byte("x"), 64*1024)
		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.PutObject(ctx, "article_1.jpg", "image/jpeg", bytes.NewReader(payload))
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		content, err := os.ReadFile(filepath.Join(dir, "article_1.jpg"))
		require.NoError(t, err)
		assert.Equal(t, payload, content)
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}
