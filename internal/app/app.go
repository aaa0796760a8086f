// Package app builds and owns the long-lived services of one scraper run,
// acting as the dependency injection container for the CLI.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/opinion-crawler/internal/api"
	"github.com/JakeFAU/opinion-crawler/internal/browser/headless"
	"github.com/JakeFAU/opinion-crawler/internal/browser/static"
	"github.com/JakeFAU/opinion-crawler/internal/clock/system"
	"github.com/JakeFAU/opinion-crawler/internal/config"
	"github.com/JakeFAU/opinion-crawler/internal/crawler"
	"github.com/JakeFAU/opinion-crawler/internal/dispatcher"
	"github.com/JakeFAU/opinion-crawler/internal/id/uuid"
	"github.com/JakeFAU/opinion-crawler/internal/media"
	"github.com/JakeFAU/opinion-crawler/internal/metrics"
	"github.com/JakeFAU/opinion-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/opinion-crawler/internal/progress"
	"github.com/JakeFAU/opinion-crawler/internal/progress/sinks"
	"github.com/JakeFAU/opinion-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/opinion-crawler/internal/report"
	"github.com/JakeFAU/opinion-crawler/internal/session"
	"github.com/JakeFAU/opinion-crawler/internal/storage/gcs"
	"github.com/JakeFAU/opinion-crawler/internal/storage/local"
	"github.com/JakeFAU/opinion-crawler/internal/storage/postgres"
	"github.com/JakeFAU/opinion-crawler/internal/store"
	"github.com/JakeFAU/opinion-crawler/internal/telemetry"
	"github.com/JakeFAU/opinion-crawler/internal/translate"
)

// Option overrides a collaborator, mainly for tests.
type Option func(*options)

type options struct {
	browser     crawler.Browser
	blobs       crawler.BlobStore
	reports     crawler.ReportStore
	publisher   crawler.Publisher
	printer     *report.Printer
	registerer  prometheus.Registerer
	translators session.TranslatorFactory
}

// WithBrowser replaces the driver selected by grid.driver.
func WithBrowser(b crawler.Browser) Option {
	return func(o *options) { o.browser = b }
}

// WithBlobStore replaces the images.provider store.
func WithBlobStore(s crawler.BlobStore) Option {
	return func(o *options) { o.blobs = s }
}

// WithReportStore replaces the Postgres report store.
func WithReportStore(s crawler.ReportStore) Option {
	return func(o *options) { o.reports = s }
}

// WithPublisher replaces the Pub/Sub publisher; topic still comes from pubsub.topic.
func WithPublisher(p crawler.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithPrinter redirects console output.
func WithPrinter(p *report.Printer) Option {
	return func(o *options) { o.printer = p }
}

// WithRegisterer registers the progress collectors somewhere other than the
// default registry.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) { o.registerer = r }
}

// WithTranslators replaces the RapidAPI translator factory.
func WithTranslators(f session.TranslatorFactory) Option {
	return func(o *options) { o.translators = f }
}

// App holds the services shared by every session of a run.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	runID      string
	fetcher    *media.Fetcher
	hub        *progress.Hub
	status     *sinks.StatusSink
	metrics    *metrics.Server
	dispatcher *dispatcher.Dispatcher
	closers    []func() error
}

// New wires every service from cfg. Optional backends (Postgres, Pub/Sub,
// metrics endpoint) are only built when configured. It fails fast when a
// configured backend cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, logger: logger}
	ids := uuid.New()
	runID, err := ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("run id: %w", err)
	}
	a.runID = runID
	logger.Info("Initializing application services", zap.String("run_id", runID))

	tp, err := telemetry.InitTracerProvider(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	a.closers = append(a.closers, func() error { return tp.Shutdown(context.Background()) })

	if err := a.build(ctx, &o); err != nil {
		_ = a.closeAll()
		return nil, err
	}

	a.hub, err = a.buildProgress(o.registerer)
	if err != nil {
		_ = a.closeAll()
		return nil, err
	}

	a.fetcher = media.New(o.blobs, media.Config{
		Timeout:   cfg.Images.Timeout,
		UserAgent: cfg.Grid.UserAgent,
	}, logger.Named("media"))

	if o.translators == nil {
		o.translators = a.translatorFactory()
	}
	runner, err := session.New(session.Config{
		Pipeline: cfg.Pipeline(),
		RunID:    runID,
		Topic:    cfg.PubSub.Topic,
	}, session.Deps{
		Browser:     o.browser,
		Translators: o.translators,
		Images:      a.fetcher,
		Printer:     o.printer,
		Reports:     o.reports,
		Publisher:   o.publisher,
		Progress:    a.hub,
		Clock:       system.New(),
		IDs:         ids,
	}, logger.Named("session"))
	if err != nil {
		_ = a.closeAll()
		return nil, fmt.Errorf("session runner: %w", err)
	}
	a.dispatcher = dispatcher.New(runner, logger.Named("dispatcher"))

	if cfg.Metrics.Addr != "" {
		progressAPI := api.NewProgressHandler(a.status, logger.Named("api"))
		a.metrics = metrics.NewServer(cfg.Metrics.Addr, logger.Named("metrics"), progressAPI.Routes)
		a.metrics.Start()
	}
	logger.Info("Application services initialized")
	return a, nil
}

func (a *App) build(ctx context.Context, o *options) error {
	var err error
	if o.browser == nil {
		if o.browser, err = a.buildBrowser(); err != nil {
			return err
		}
	}
	if o.blobs == nil {
		if o.blobs, err = a.buildBlobStore(ctx); err != nil {
			return err
		}
	}
	if o.reports == nil && a.cfg.Reports.DSN != "" {
		reports, err := postgres.NewReportStore(ctx, postgres.ReportStoreConfig{
			DSN:   a.cfg.Reports.DSN,
			Table: a.cfg.Reports.Table,
		})
		if err != nil {
			return fmt.Errorf("report store: %w", err)
		}
		a.closers = append(a.closers, func() error { reports.Close(); return nil })
		o.reports = reports
	}
	if o.publisher == nil && a.cfg.PubSub.Enabled() {
		pub, err := pubsub.Dial(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.Topic)
		if err != nil {
			return fmt.Errorf("publisher: %w", err)
		}
		a.closers = append(a.closers, pub.Close)
		o.publisher = pub
	}
	return nil
}

func (a *App) buildBrowser() (crawler.Browser, error) {
	grid := a.cfg.Grid
	switch grid.Driver {
	case config.DriverStatic:
		a.logger.Info("Using static browser driver")
		return static.New(static.Config{
			UserAgent: grid.UserAgent,
			Timeout:   grid.NavigationTimeout,
		}, a.logger.Named("static")), nil
	case config.DriverRemote, config.DriverLocal:
		mode := headless.ModeRemote
		if grid.Driver == config.DriverLocal {
			mode = headless.ModeLocal
		}
		a.logger.Info("Using headless browser driver", zap.String("mode", mode), zap.String("endpoint", grid.Endpoint))
		b, err := headless.New(headless.Config{
			Mode:              mode,
			Endpoint:          grid.Endpoint,
			Credentials:       a.cfg.Credentials(),
			UserAgent:         grid.UserAgent,
			NavigationTimeout: grid.NavigationTimeout,
			MaxParallel:       grid.MaxParallel,
			ShowWindow:        grid.ShowWindow,
		}, a.logger.Named("headless"))
		if err != nil {
			return nil, fmt.Errorf("headless browser: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown grid driver %q", grid.Driver)
	}
}

func (a *App) buildBlobStore(ctx context.Context) (crawler.BlobStore, error) {
	images := a.cfg.Images
	switch images.Provider {
	case config.ImagesGCS:
		a.logger.Info("Using GCS image store", zap.String("bucket", images.GCSBucket))
		store, err := gcs.Dial(ctx, gcs.Config{Bucket: images.GCSBucket, Prefix: images.GCSPrefix})
		if err != nil {
			return nil, fmt.Errorf("gcs image store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case config.ImagesLocal, "":
		store, err := local.New(local.Config{BaseDir: images.Dir})
		if err != nil {
			return nil, fmt.Errorf("local image store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown images provider %q", images.Provider)
	}
}

func (a *App) buildProgress(reg prometheus.Registerer) (*progress.Hub, error) {
	promSink, err := sinks.NewPrometheusSink(reg)
	if err != nil {
		return nil, fmt.Errorf("progress sink: %w", err)
	}
	a.status = sinks.NewStatusSink()
	return progress.NewHub(progress.Config{
		Logger: a.logger.Named("progress"),
	}, sinks.NewLogSink(a.logger.Named("progress")), promSink, a.status), nil
}

// translatorFactory gives each session its own limiter unless the limiter is
// configured to be shared across the run.
func (a *App) translatorFactory() session.TranslatorFactory {
	tc := a.cfg.Translate
	var shared *ratelimit.Limiter
	if tc.SharedLimiter {
		shared = ratelimit.New(ratelimit.Config{Name: "translate_shared", Delay: tc.Delay})
	}
	return func(label string) crawler.Translator {
		limiter := shared
		if limiter == nil {
			limiter = ratelimit.New(ratelimit.Config{Name: "translate", Delay: tc.Delay})
		}
		return translate.New(translate.Config{
			APIKey:   tc.APIKey,
			Endpoint: tc.Endpoint,
			Host:     tc.Host,
			From:     tc.From,
			To:       tc.To,
			Timeout:  tc.Timeout,
		}, limiter, a.logger.Named("translate").With(zap.String("session", label)))
	}
}

// RunID identifies this run in logs, reports and events.
func (a *App) RunID() string {
	return a.runID
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Status exposes the live per-session view fed by progress events.
func (a *App) Status() store.ProgressRepository {
	return a.status
}

// Targets returns the configured browser targets.
func (a *App) Targets() []crawler.BrowserTarget {
	return a.cfg.Targets
}

// Run executes every configured target in parallel and waits for pending
// image downloads before returning.
func (a *App) Run(ctx context.Context) ([]dispatcher.Outcome, error) {
	outcomes, err := a.dispatcher.Run(ctx, a.cfg.Targets)
	a.fetcher.Wait()
	if err != nil {
		return nil, fmt.Errorf("dispatch sessions: %w", err)
	}
	return outcomes, nil
}

// Close flushes progress events and releases every backend. Errors are logged
// and joined.
func (a *App) Close(ctx context.Context) error {
	a.logger.Info("Shutting down application services")
	var errs []error
	if a.fetcher != nil {
		a.fetcher.Wait()
	}
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.metrics != nil {
		if err := a.metrics.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.closeAll(); err != nil {
		errs = append(errs, err)
	}
	err := errors.Join(errs...)
	if err != nil {
		a.logger.Warn("Shutdown finished with errors", zap.Error(err))
	}
	// Sync fails on stdout for some terminals; nothing useful to do about it.
	_ = a.logger.Sync()
	return err
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
