// Package static implements crawler.Browser without JavaScript: pages are
// fetched with colly and queried with goquery (CSS) and htmlquery (XPath).
// Clicking a link follows its href; other clicks are no-ops.
package static

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/opinion-crawler/internal/crawler"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Browser opens static sessions sharing one HTTP transport.
type Browser struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// New builds a Browser.
func New(cfg Config, logger *zap.Logger) *Browser {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	c.IgnoreRobotsTxt = true
	return &Browser{cfg: cfg, baseCollector: c, logger: logger}
}

// Open implements crawler.Browser. The target only labels log lines.
func (b *Browser) Open(_ context.Context, target crawler.BrowserTarget) (crawler.Session, error) {
	b.logger.Info("Static session opened", zap.String("session", target.Label()))
	return &session{browser: b}, nil
}

type session struct {
	browser *Browser

	mu     sync.Mutex
	url    string
	doc    *goquery.Document
	closed bool
}

type page struct {
	finalURL string
	body     []byte
}

func (s *session) Navigate(ctx context.Context, rawURL string) error {
	p, err := s.browser.fetch(ctx, rawURL)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", rawURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.body))
	if err != nil {
		return fmt.Errorf("parse %s: %w", rawURL, err)
	}
	s.mu.Lock()
	s.url = p.finalURL
	s.doc = doc
	s.mu.Unlock()
	return nil
}

func (b *Browser) fetch(ctx context.Context, rawURL string) (page, error) {
	if err := ctx.Err(); err != nil {
		return page{}, fmt.Errorf("static fetch canceled: %w", err)
	}
	var (
		result   page
		fetchErr error
	)
	collector := b.baseCollector.Clone()
	if b.cfg.UserAgent != "" {
		collector.UserAgent = b.cfg.UserAgent
	}
	collector.SetRequestTimeout(b.cfg.Timeout)
	collector.OnResponse(func(r *colly.Response) {
		result = page{
			finalURL: r.Request.URL.String(),
			body:     append([]byte(nil), r.Body...),
		}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()
	select {
	case <-ctx.Done():
		return page{}, fmt.Errorf("static fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return page{}, fmt.Errorf("colly visit failed: %w", err)
		}
		if fetchErr != nil {
			return page{}, fmt.Errorf("colly response failed: %w", fetchErr)
		}
		return result, nil
	}
}

func (s *session) current() (string, *goquery.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", nil, fmt.Errorf("session closed")
	}
	if s.doc == nil {
		return s.url, nil, fmt.Errorf("no page loaded")
	}
	return s.url, s.doc, nil
}

// WaitFor cannot wait for scripts, so it resolves immediately.
func (s *session) WaitFor(ctx context.Context, sel crawler.Selector) (crawler.Element, error) {
	el, err := s.Find(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("wait for %s: %w", sel, err)
	}
	return el, nil
}

func (s *session) Find(ctx context.Context, sel crawler.Selector) (crawler.Element, error) {
	all, err := s.FindAll(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, crawler.ErrNotFound
	}
	return all[0], nil
}

func (s *session) FindAll(_ context.Context, sel crawler.Selector) ([]crawler.Element, error) {
	_, doc, err := s.current()
	if err != nil {
		return nil, err
	}
	return s.query(doc.Selection, sel)
}

func (s *session) CurrentURL(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url, nil
}

func (s *session) Close(context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.doc = nil
	s.mu.Unlock()
	return nil
}

func (s *session) follow(ctx context.Context, href string) error {
	base, _, err := s.current()
	if err != nil {
		return err
	}
	target, err := resolve(base, href)
	if err != nil {
		return err
	}
	return s.Navigate(ctx, target)
}

func resolve(base, href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("parse href %q: %w", href, err)
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base %q: %w", base, err)
	}
	return baseURL.ResolveReference(ref).String(), nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
