package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// State is a Pipeline position.
type State int

// Pipeline states in traversal order.
const (
	StateNew State = iota
	StateHome
	StateConsentResolved
	StateOnOpinionSection
	StateArticlesDiscovered
	StateExtractingDetail
	StateDone
	StateFailed
)

var stateNames = map[State]string{
	StateNew:                "new",
	StateHome:               "home",
	StateConsentResolved:    "consent_resolved",
	StateOnOpinionSection:   "on_opinion_section",
	StateArticlesDiscovered: "articles_discovered",
	StateExtractingDetail:   "extracting_detail",
	StateDone:               "done",
	StateFailed:             "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrEmptyTitle is returned by ExtractDetail when the title element has no text.
var ErrEmptyTitle = errors.New("article title is empty")

// urlPollInterval is how often NavigateToSection re-reads the current URL.
const urlPollInterval = 100 * time.Millisecond

// Pipeline drives one Session through the opinion-section extraction states.
// It is owned by a single goroutine.
type Pipeline struct {
	cfg     PipelineConfig
	session Session
	images  ImageFetcher
	logger  *zap.Logger
	state   State
}

// NewPipeline wires a pipeline around an open session. images may be nil, in
// which case cover images are recorded but not downloaded.
func NewPipeline(cfg PipelineConfig, session Session, images ImageFetcher, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cfg:     cfg,
		session: session,
		images:  images,
		logger:  logger,
		state:   StateNew,
	}
}

// State returns the current pipeline state.
func (p *Pipeline) State() State {
	return p.state
}

func (p *Pipeline) fail(err error) error {
	p.logger.Error("Pipeline failed", zap.Stringer("state", p.state), zap.Error(err))
	p.state = StateFailed
	return err
}

// Prepare runs the pipeline from Home through ArticlesDiscovered.
func (p *Pipeline) Prepare(ctx context.Context) ([]ArticleCandidate, error) {
	if err := p.OpenHome(ctx); err != nil {
		return nil, err
	}
	p.HandleConsent(ctx)
	if err := p.NavigateToSection(ctx); err != nil {
		return nil, err
	}
	return p.DiscoverArticles(ctx)
}

// OpenHome loads the base URL and waits for the document body.
func (p *Pipeline) OpenHome(ctx context.Context) error {
	p.logger.Info("Opening home page", zap.String("url", p.cfg.BaseURL))
	if err := p.session.Navigate(ctx, p.cfg.BaseURL); err != nil {
		return p.fail(fmt.Errorf("open home %s: %w", p.cfg.BaseURL, err))
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.cfg.WaitTimeout)
	defer cancel()
	if _, err := p.session.WaitFor(waitCtx, CSS("body")); err != nil {
		return p.fail(fmt.Errorf("wait for home body: %w", err))
	}
	p.state = StateHome
	return nil
}

// HandleConsent clicks the cookie acceptance button if it shows up within the
// consent timeout. It reports whether a click happened; a missing popup is not
// an error.
func (p *Pipeline) HandleConsent(ctx context.Context) bool {
	defer func() { p.state = StateConsentResolved }()

	waitCtx, cancel := context.WithTimeout(ctx, p.cfg.ConsentTimeout)
	defer cancel()
	button, err := p.session.WaitFor(waitCtx, ContainsText("button", p.cfg.ConsentText))
	if err != nil {
		p.logger.Warn("Cookie popup not found or already handled", zap.Error(err))
		return false
	}
	if err := button.Click(waitCtx); err != nil {
		p.logger.Warn("Cookie popup not clickable", zap.Error(err))
		return false
	}
	p.logger.Info("Cookie popup accepted")
	return true
}

// NavigateToSection follows the section link and waits for the section URL.
func (p *Pipeline) NavigateToSection(ctx context.Context) error {
	p.logger.Info("Navigating to section", zap.String("section", p.cfg.SectionName))

	waitCtx, cancel := context.WithTimeout(ctx, p.cfg.WaitTimeout)
	defer cancel()

	link, err := p.session.WaitFor(waitCtx, ContainsText("a", p.cfg.SectionName))
	if err != nil {
		return p.fail(fmt.Errorf("find %s link: %w", p.cfg.SectionName, err))
	}
	if err := link.Click(waitCtx); err != nil {
		return p.fail(fmt.Errorf("click %s link: %w", p.cfg.SectionName, err))
	}
	if err := p.waitForURL(waitCtx, p.cfg.SectionPath); err != nil {
		return p.fail(fmt.Errorf("wait for %s: %w", p.cfg.SectionPath, err))
	}

	p.logger.Info("Section loaded", zap.String("section", p.cfg.SectionName))
	p.state = StateOnOpinionSection
	return nil
}

func (p *Pipeline) waitForURL(ctx context.Context, fragment string) error {
	ticker := time.NewTicker(urlPollInterval)
	defer ticker.Stop()
	for {
		current, err := p.session.CurrentURL(ctx)
		if err == nil && strings.Contains(current, fragment) {
			return nil
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
			}
			return fmt.Errorf("%w (url %q)", ctx.Err(), current)
		case <-ticker.C:
		}
	}
}

// ExtractDetail visits one candidate and builds its ArticleDetail. Any error
// means the article should be skipped.
func (p *Pipeline) ExtractDetail(ctx context.Context, candidate ArticleCandidate) (ArticleDetail, error) {
	p.state = StateExtractingDetail
	logger := p.logger.With(zap.Int("article", candidate.Position), zap.String("url", candidate.URL))

	if err := p.session.Navigate(ctx, candidate.URL); err != nil {
		return ArticleDetail{}, fmt.Errorf("open article: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.cfg.WaitTimeout)
	titleNode, err := p.session.WaitFor(waitCtx, p.cfg.Title)
	if err != nil {
		cancel()
		return ArticleDetail{}, fmt.Errorf("wait for title: %w", err)
	}
	title, err := titleNode.Text(waitCtx)
	cancel()
	if err != nil {
		return ArticleDetail{}, fmt.Errorf("read title: %w", err)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return ArticleDetail{}, ErrEmptyTitle
	}

	articleType, err := p.classify(ctx)
	if err != nil {
		return ArticleDetail{}, err
	}
	logger.Info("Article type detected", zap.String("type", string(articleType)))

	detail := ArticleDetail{
		Title:   title,
		Content: p.ExtractContent(ctx),
		Type:    articleType,
	}

	imageURL, err := p.coverImage(ctx)
	if err != nil {
		return ArticleDetail{}, err
	}
	if imageURL == "" {
		logger.Info("No cover image found")
		return detail, nil
	}
	detail.ImageURL = resolveURL(candidate.URL, imageURL)
	p.fetchImage(ctx, detail.ImageURL, fmt.Sprintf("article_%d.jpg", candidate.Position))
	return detail, nil
}

func (p *Pipeline) classify(ctx context.Context) (ArticleType, error) {
	ctx, cancel := p.boundedRead(ctx)
	defer cancel()
	for _, marker := range p.cfg.GalleryMarkers {
		nodes, err := p.session.FindAll(ctx, marker)
		if err != nil {
			return "", fmt.Errorf("check gallery marker %s: %w", marker, err)
		}
		if len(nodes) > 0 {
			return ArticleTypeGallery, nil
		}
	}
	return ArticleTypeStandard, nil
}

func (p *Pipeline) coverImage(ctx context.Context) (string, error) {
	ctx, cancel := p.boundedRead(ctx)
	defer cancel()
	nodes, err := p.session.FindAll(ctx, p.cfg.CoverImage)
	if err != nil {
		return "", fmt.Errorf("find cover image: %w", err)
	}
	if len(nodes) == 0 {
		return "", nil
	}
	src, err := nodes[0].Attribute(ctx, "src")
	if err != nil {
		return "", fmt.Errorf("read cover image src: %w", err)
	}
	return strings.TrimSpace(src), nil
}

// boundedRead caps a DOM read at the wait timeout so a stalled driver call
// cannot hold the session forever.
func (p *Pipeline) boundedRead(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.cfg.WaitTimeout)
}

// fetchImage hands the download to the fetcher and waits for its completion
// signal. The download outcome is only logged by the fetcher.
func (p *Pipeline) fetchImage(ctx context.Context, imageURL, fileName string) {
	if p.images == nil {
		return
	}
	done := p.images.Submit(ctx, imageURL, fileName)
	select {
	case <-done:
	case <-ctx.Done():
		p.logger.Warn("Stopped waiting for image download", zap.String("file", fileName), zap.Error(ctx.Err()))
	}
}

// Finish marks the pipeline as done unless it already failed.
func (p *Pipeline) Finish() {
	if p.state != StateFailed {
		p.state = StateDone
	}
}
