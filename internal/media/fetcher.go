// Package media downloads article cover images into a BlobStore.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/opinion-crawler/internal/crawler"
	"github.com/JakeFAU/opinion-crawler/internal/metrics"
)

// DefaultTimeout bounds a single image download.
const DefaultTimeout = 30 * time.Second

// ErrInvalidURL is returned for image URLs that are not absolute http(s) URLs.
var ErrInvalidURL = errors.New("media: invalid image url")

// Config holds downloader settings.
type Config struct {
	Timeout   time.Duration
	UserAgent string
}

// Fetcher streams images into a BlobStore. Submit runs downloads in the
// background; Wait blocks until all submitted downloads have finished.
type Fetcher struct {
	http   *resty.Client
	store  crawler.BlobStore
	logger *zap.Logger
	wg     sync.WaitGroup
}

// New builds a Fetcher writing to store.
func New(store crawler.BlobStore, cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := resty.New().SetTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		httpClient.SetHeader("User-Agent", cfg.UserAgent)
	}
	return &Fetcher{
		http:   httpClient,
		store:  store,
		logger: logger,
	}
}

// ValidateURL accepts only absolute http and https URLs with a host.
func ValidateURL(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: %q is not absolute", ErrInvalidURL, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	return nil
}

// Download fetches imageURL and stores it as fileName. Invalid URLs are
// rejected before anything is written.
func (f *Fetcher) Download(ctx context.Context, imageURL, fileName string) (string, error) {
	logger := f.logger.With(zap.String("url", imageURL), zap.String("file", fileName))
	if err := ValidateURL(imageURL); err != nil {
		logger.Warn("Invalid image URL", zap.Error(err))
		metrics.ObserveImageDownload(imageURL, "invalid", 0)
		return "", err
	}

	res, err := f.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(imageURL)
	if err != nil {
		logger.Error("Image download failed", zap.Error(err))
		metrics.ObserveImageDownload(imageURL, "error", 0)
		return "", fmt.Errorf("get image: %w", err)
	}
	body := res.RawBody()
	defer func() {
		if closeErr := body.Close(); closeErr != nil {
			logger.Debug("Closing image body failed", zap.Error(closeErr))
		}
	}()

	if !res.IsSuccess() {
		logger.Error("Image download failed", zap.Int("status", res.StatusCode()))
		metrics.ObserveImageDownload(imageURL, "http_error", 0)
		return "", fmt.Errorf("get image: status %d", res.StatusCode())
	}

	contentType := res.Header().Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	counter := &countingReader{r: body}
	uri, err := f.store.PutObject(ctx, fileName, contentType, counter)
	if err != nil {
		logger.Error("Image write failed", zap.Error(err))
		metrics.ObserveImageDownload(imageURL, "write_error", counter.n)
		return "", fmt.Errorf("store image: %w", err)
	}

	logger.Info("Image saved", zap.String("uri", uri), zap.Int64("bytes", counter.n))
	metrics.ObserveImageDownload(imageURL, "stored", counter.n)
	return uri, nil
}

// Submit starts Download in the background. The returned channel is closed when
// the download completes or fails; failures are only logged.
func (f *Fetcher) Submit(ctx context.Context, imageURL, fileName string) <-chan struct{} {
	done := make(chan struct{})
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer close(done)
		defer func() {
			if rec := recover(); rec != nil {
				f.logger.Error("Image download panicked",
					zap.String("url", imageURL),
					zap.String("file", fileName),
					zap.Any("panic", rec),
					zap.Stack("stack"),
				)
			}
		}()
		_, _ = f.Download(ctx, imageURL, fileName)
	}()
	return done
}

// Wait blocks until every submitted download has finished.
func (f *Fetcher) Wait() {
	f.wg.Wait()
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
