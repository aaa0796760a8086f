package media

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/opinion-crawler/internal/storage/local"
	"github.com/JakeFAU/opinion-crawler/internal/storage/memory"
)

func TestValidateURL(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"https://imagenes.elpais.com/a.jpg": true,
		"http://img.test/b.png":             true,
		"not-a-url":                         false,
		"":                                  false,
		"/relative/path.jpg":                false,
		"ftp://img.test/a.jpg":              false,
		"https://":                          false,
	}
	for raw, ok := range cases {
		err := ValidateURL(raw)
		if ok {
			assert.NoError(t, err, raw)
		} else {
			assert.ErrorIs(t, err, ErrInvalidURL, raw)
		}
	}
}

func TestDownloadInvalidURLIsNoop(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "images")
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	fetcher := New(store, Config{}, zap.NewNop())

	_, err = fetcher.Download(context.Background(), "not-a-url", "article_1.jpg")
	assert.ErrorIs(t, err, ErrInvalidURL)

	select {
	case <-fetcher.Submit(context.Background(), "not-a-url", "article_2.jpg"):
	case <-time.After(time.Second):
		t.Fatal("submit did not signal completion")
	}

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr), "image directory must not be created")
}

func TestDownloadStreamsIntoStore(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "images")
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	fetcher := New(store, Config{UserAgent: "opinion-crawler-test"}, zap.NewNop())

	uri, err := fetcher.Download(context.Background(), srv.URL+"/cover.png", "article_3.jpg")
	require.NoError(t, err)
	assert.Equal(t, "file://"+filepath.Join(dir, "article_3.jpg"), uri)

	data, err := os.ReadFile(filepath.Join(dir, "article_3.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
}

func TestSubmitSwallowsHTTPErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	store := memory.NewBlobStore()
	fetcher := New(store, Config{}, zap.NewNop())

	_, err := fetcher.Download(context.Background(), srv.URL+"/missing.jpg", "article_1.jpg")
	assert.ErrorContains(t, err, "status 404")

	fetcher.Submit(context.Background(), srv.URL+"/missing.jpg", "article_2.jpg")
	fetcher.Wait()

	assert.Equal(t, int32(2), hits.Load())
	assert.Empty(t, store.Paths())
}

type panickingStore struct{}

func (panickingStore) PutObject(context.Context, string, string, io.Reader) (string, error) {
	panic("disk vanished")
}

func TestSubmitRecoversPanics(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("jpeg"))
	}))
	defer srv.Close()

	core, logs := observer.New(zap.ErrorLevel)
	fetcher := New(panickingStore{}, Config{}, zap.New(core))

	done := fetcher.Submit(context.Background(), srv.URL+"/cover.jpg", "article_1.jpg")
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("download never signaled completion")
	}
	fetcher.Wait()

	entries := logs.FilterMessage("Image download panicked").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "disk vanished", entries[0].ContextMap()["panic"])
	assert.Equal(t, "article_1.jpg", entries[0].ContextMap()["file"])
}
