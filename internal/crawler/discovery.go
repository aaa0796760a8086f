package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// IsCandidateURL reports whether href points at a dated article inside the
// configured section.
func (c PipelineConfig) IsCandidateURL(href string) bool {
	if href == "" {
		return false
	}
	return strings.Contains(href, c.sectionSegment()) && datePattern.MatchString(href)
}

// candidateSet accumulates unique candidate URLs up to a cap.
type candidateSet struct {
	max   int
	seen  map[string]struct{}
	items []ArticleCandidate
}

func newCandidateSet(max int) *candidateSet {
	return &candidateSet{
		max:  max,
		seen: make(map[string]struct{}),
	}
}

// Add records href and reports whether it was new.
func (s *candidateSet) Add(href string) bool {
	if s.Full() {
		return false
	}
	if _, ok := s.seen[href]; ok {
		return false
	}
	s.seen[href] = struct{}{}
	s.items = append(s.items, ArticleCandidate{URL: href, Position: len(s.items) + 1})
	return true
}

func (s *candidateSet) Full() bool {
	return len(s.items) >= s.max
}

// DiscoverArticles scans the section page for headline links and returns up to
// MaxArticles unique candidates in page order. Only the initial wait for
// article blocks is fatal; a block that fails is skipped.
func (p *Pipeline) DiscoverArticles(ctx context.Context) ([]ArticleCandidate, error) {
	p.logger.Info("Locating opinion articles")

	waitCtx, cancel := context.WithTimeout(ctx, p.cfg.WaitTimeout)
	_, err := p.session.WaitFor(waitCtx, p.cfg.ArticleBlock)
	cancel()
	if err != nil {
		return nil, p.fail(fmt.Errorf("wait for article blocks: %w", err))
	}

	listCtx, cancel := p.boundedRead(ctx)
	blocks, err := p.session.FindAll(listCtx, p.cfg.ArticleBlock)
	cancel()
	if err != nil {
		return nil, p.fail(fmt.Errorf("list article blocks: %w", err))
	}
	p.logger.Info("Article blocks found", zap.Int("count", len(blocks)))

	urlCtx, cancel := p.boundedRead(ctx)
	base, _ := p.session.CurrentURL(urlCtx)
	cancel()
	set := newCandidateSet(p.cfg.MaxArticles)
	for i, block := range blocks {
		if set.Full() {
			break
		}
		href, err := p.headlineHref(ctx, block)
		if err != nil {
			p.logger.Warn("Skipping non-article block", zap.Int("block", i), zap.Error(err))
			continue
		}
		href = resolveURL(base, href)
		if !p.cfg.IsCandidateURL(href) {
			continue
		}
		if set.Add(href) {
			p.logger.Info("Valid article", zap.String("url", href))
		}
	}

	p.logger.Info("Collected valid articles", zap.Int("count", len(set.items)))
	p.state = StateArticlesDiscovered
	return set.items, nil
}

func (p *Pipeline) headlineHref(ctx context.Context, block Element) (string, error) {
	ctx, cancel := p.boundedRead(ctx)
	defer cancel()
	link, _, err := FirstMatch(ctx, block, p.cfg.HeadlineLinks...)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", fmt.Errorf("no headline link: %w", err)
		}
		return "", err
	}
	href, err := link.Attribute(ctx, "href")
	if err != nil {
		return "", fmt.Errorf("read href: %w", err)
	}
	return strings.TrimSpace(href), nil
}

// resolveURL makes ref absolute against base; it returns ref unchanged when
// either side does not parse.
func resolveURL(base, ref string) string {
	if ref == "" || base == "" {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil || refURL.IsAbs() {
		return ref
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}
