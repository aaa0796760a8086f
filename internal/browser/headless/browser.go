// Package headless implements crawler.Browser with chromedp, either against a
// remote CDP grid such as BrowserStack or a locally launched Chrome.
package headless

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/opinion-crawler/internal/crawler"
)

// Modes supported by Browser.
const (
	ModeRemote = "remote"
	ModeLocal  = "local"
)

// Config controls how sessions are allocated.
type Config struct {
	Mode              string
	Endpoint          string
	Credentials       crawler.Credentials
	UserAgent         string
	NavigationTimeout time.Duration
	// MaxParallel caps concurrently open sessions; zero means unlimited.
	MaxParallel int
	// ShowWindow runs a local Chrome with a visible window.
	ShowWindow bool
}

// Browser opens chromedp-backed sessions.
type Browser struct {
	cfg     Config
	limiter chan struct{}
	logger  *zap.Logger
}

// New validates cfg and returns a Browser.
func New(cfg Config, logger *zap.Logger) (*Browser, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	switch cfg.Mode {
	case "", ModeRemote:
		cfg.Mode = ModeRemote
		if cfg.Credentials.Username == "" || cfg.Credentials.AccessKey == "" {
			return nil, fmt.Errorf("remote mode requires grid credentials")
		}
	case ModeLocal:
	default:
		return nil, fmt.Errorf("unknown browser mode %q", cfg.Mode)
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}
	return &Browser{cfg: cfg, limiter: limiter, logger: logger}, nil
}

// Open allocates a browser for target and returns its session. The session's
// lifetime is independent of ctx, which only bounds the connection attempt.
func (b *Browser) Open(ctx context.Context, target crawler.BrowserTarget) (crawler.Session, error) {
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}

	allocCtx, allocCancel, err := b.allocator(target)
	if err != nil {
		b.release()
		return nil, err
	}
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)

	stopForward := forwardCancel(ctx, taskCancel)
	err = chromedp.Run(taskCtx, b.setupAction(target))
	stopForward()
	if err != nil {
		taskCancel()
		allocCancel()
		b.release()
		return nil, fmt.Errorf("start browser for %s: %w", target.Label(), err)
	}

	b.logger.Info("Browser session opened", zap.String("session", target.Label()), zap.String("mode", b.cfg.Mode))
	return &session{
		taskCtx:     taskCtx,
		taskCancel:  taskCancel,
		allocCancel: allocCancel,
		navTimeout:  b.cfg.NavigationTimeout,
		release:     b.release,
	}, nil
}

func (b *Browser) allocator(target crawler.BrowserTarget) (context.Context, context.CancelFunc, error) {
	if b.cfg.Mode == ModeLocal {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", !b.cfg.ShowWindow),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("hide-scrollbars", true),
			chromedp.Flag("enable-automation", false),
		)
		allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
		return allocCtx, cancel, nil
	}

	wsURL, err := CapabilitiesURL(b.cfg.Endpoint, target, b.cfg.Credentials)
	if err != nil {
		return nil, nil, err
	}
	allocCtx, cancel := chromedp.NewRemoteAllocator(context.Background(), wsURL, chromedp.NoModifyURL)
	return allocCtx, cancel, nil
}

// viewport describes an emulated screen.
type viewport struct {
	Width, Height int64
	Scale         float64
}

// mobileViewport is applied to device targets when Chrome runs locally; on the
// grid the real device supplies its own screen.
var mobileViewport = viewport{Width: 390, Height: 844, Scale: 3}

// emulatedViewport reports the viewport to force for target, if any.
func (b *Browser) emulatedViewport(target crawler.BrowserTarget) (viewport, bool) {
	if b.cfg.Mode != ModeLocal || !target.IsMobile() {
		return viewport{}, false
	}
	return mobileViewport, true
}

func (b *Browser) setupAction(target crawler.BrowserTarget) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if b.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		vp, ok := b.emulatedViewport(target)
		if !ok {
			return nil
		}
		if err := emulation.SetDeviceMetricsOverride(vp.Width, vp.Height, vp.Scale, true).Do(ctx); err != nil {
			return fmt.Errorf("emulate %s viewport: %w", target.Label(), err)
		}
		if err := emulation.SetTouchEmulationEnabled(true).Do(ctx); err != nil {
			return fmt.Errorf("emulate touch: %w", err)
		}
		return nil
	})
}

func (b *Browser) acquire(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	select {
	case b.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (b *Browser) release() {
	if b.limiter == nil {
		return
	}
	select {
	case <-b.limiter:
	default:
	}
}

// forwardCancel cancels a chromedp context when parent is done, until the
// returned stop function is called.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
