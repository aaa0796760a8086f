// Package session runs the opinion pipeline for one browser target and
// contains every failure at the session boundary.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/opinion-crawler/internal/clock/system"
	"github.com/JakeFAU/opinion-crawler/internal/crawler"
	"github.com/JakeFAU/opinion-crawler/internal/metrics"
	"github.com/JakeFAU/opinion-crawler/internal/progress"
	"github.com/JakeFAU/opinion-crawler/internal/report"
	"github.com/JakeFAU/opinion-crawler/internal/wordfreq"
)

const (
	defaultCleanupTimeout = 15 * time.Second
	tracerName            = "github.com/JakeFAU/opinion-crawler/internal/session"
)

// TranslatorFactory returns the translator a session uses for its titles. It is
// called once per session.
type TranslatorFactory func(label string) crawler.Translator

// Config controls Runner behavior.
type Config struct {
	Pipeline crawler.PipelineConfig
	RunID    string
	// Topic enables report publishing when a Publisher is wired.
	Topic string
	// CleanupTimeout bounds browser close and report persistence, which run
	// even after the session context is canceled.
	CleanupTimeout time.Duration
}

// Deps are the collaborators shared by every session. Browser and Translators
// are required.
type Deps struct {
	Browser     crawler.Browser
	Translators TranslatorFactory
	Images      crawler.ImageFetcher
	Printer     *report.Printer
	Reports     crawler.ReportStore
	Publisher   crawler.Publisher
	Progress    progress.Emitter
	Clock       crawler.Clock
	IDs         crawler.IDGenerator
	// Tracer defaults to the global provider's tracer.
	Tracer trace.Tracer
}

// Runner executes one session per Run call and is safe for concurrent use.
type Runner struct {
	cfg  Config
	deps Deps
	log  *zap.Logger
}

// New validates deps and fills optional collaborators with no-op defaults.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Runner, error) {
	if deps.Browser == nil {
		return nil, errors.New("session: browser is required")
	}
	if deps.Translators == nil {
		return nil, errors.New("session: translator factory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Printer == nil {
		deps.Printer = report.NewPrinter(nil)
	}
	if deps.Progress == nil {
		deps.Progress = progress.NopEmitter{}
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(tracerName)
	}
	if cfg.CleanupTimeout <= 0 {
		cfg.CleanupTimeout = defaultCleanupTimeout
	}
	return &Runner{cfg: cfg, deps: deps, log: logger}, nil
}

// Run drives the pipeline for target and returns the finalized report. The
// returned error is the session-fatal failure, if any; it is already logged and
// reflected in the report status. Panics are recovered and reported the same
// way. The browser session is always closed.
func (r *Runner) Run(ctx context.Context, target crawler.BrowserTarget) (rep crawler.SessionReport, err error) {
	label := target.Label()
	logger := r.log.With(zap.String("session", label))

	rep = crawler.SessionReport{
		RunID:     r.cfg.RunID,
		SessionID: r.sessionID(logger, label),
		Target:    target,
		Status:    crawler.SessionStatusRunning,
		Started:   r.deps.Clock.Now(),
	}
	ctx, span := r.deps.Tracer.Start(ctx, "session", trace.WithAttributes(
		attribute.String("run.id", rep.RunID),
		attribute.String("session.id", rep.SessionID),
		attribute.String("session.target", label),
	))
	if sc := span.SpanContext(); sc.HasTraceID() {
		logger = logger.With(zap.String("trace_id", sc.TraceID().String()))
	}
	r.emit(rep, progress.Event{Stage: progress.StageSessionStart})
	metrics.IncActiveSessions()
	defer metrics.DecActiveSessions()

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Session panicked", zap.Any("panic", rec), zap.Stack("stack"))
			err = fmt.Errorf("session panic: %v", rec)
		}
		r.finalize(ctx, logger, &rep, err)
		span.SetAttributes(attribute.Int("session.rows", len(rep.Rows)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	logger.Info("Starting session", zap.String("build", target.BuildName))
	sess, err := r.deps.Browser.Open(ctx, target)
	if err != nil {
		return rep, fmt.Errorf("open browser: %w", err)
	}
	defer r.closeSession(logger, sess)

	err = r.drive(ctx, logger, sess, &rep)
	return rep, err
}

func (r *Runner) sessionID(logger *zap.Logger, label string) string {
	if r.deps.IDs == nil {
		return label
	}
	id, err := r.deps.IDs.NewID()
	if err != nil {
		logger.Warn("Session id generation failed, using label", zap.Error(err))
		return label
	}
	return id
}

func (r *Runner) drive(ctx context.Context, logger *zap.Logger, sess crawler.Session, rep *crawler.SessionReport) error {
	pipeline := crawler.NewPipeline(r.cfg.Pipeline, sess, r.deps.Images, logger.Named("pipeline"))
	candidates, err := pipeline.Prepare(ctx)
	if err != nil {
		return fmt.Errorf("prepare %s: %w", pipeline.State(), err)
	}

	translator := r.deps.Translators(rep.Target.Label())
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("session interrupted: %w", err)
		}
		r.processArticle(ctx, logger, pipeline, translator, candidate, rep)
	}
	pipeline.Finish()
	return nil
}

func (r *Runner) processArticle(
	ctx context.Context,
	logger *zap.Logger,
	pipeline *crawler.Pipeline,
	translator crawler.Translator,
	candidate crawler.ArticleCandidate,
	rep *crawler.SessionReport,
) {
	ctx, span := r.deps.Tracer.Start(ctx, "article", trace.WithAttributes(
		attribute.Int("article.position", candidate.Position),
		attribute.String("article.url", candidate.URL),
	))
	defer span.End()

	start := r.deps.Clock.Now()
	evt := progress.Event{URL: candidate.URL, Position: candidate.Position}

	detail, err := pipeline.ExtractDetail(ctx, candidate)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "skipped")
		logger.Warn("Skipping article",
			zap.Int("article", candidate.Position),
			zap.String("url", candidate.URL),
			zap.Error(err),
		)
		metrics.ObserveArticle("skipped")
		evt.Stage = progress.StageArticleSkipped
		evt.Note = err.Error()
		r.emit(*rep, evt)
		return
	}

	evt.Stage = progress.StageArticleDone
	titleEN, err := translator.TranslateToEnglish(ctx, detail.Title)
	if err != nil {
		titleEN = crawler.TranslationFailed
		span.RecordError(err)
		evt.Stage = progress.StageTranslationFailed
		evt.Note = err.Error()
	}

	row := crawler.ReportRow{
		Index:   candidate.Position,
		TitleES: detail.Title,
		TitleEN: titleEN,
		Content: detail.Content,
		Type:    detail.Type,
		Image:   detail.ImageURL,
	}
	rep.Rows = append(rep.Rows, row)
	if err := r.deps.Printer.Article(rep.Target.Label(), row); err != nil {
		logger.Warn("Article output failed", zap.Error(err))
	}

	if evt.Stage == progress.StageTranslationFailed {
		metrics.ObserveArticle("translation_failed")
	} else {
		metrics.ObserveArticle("done")
	}
	evt.Dur = r.deps.Clock.Now().Sub(start)
	r.emit(*rep, evt)
}

func (r *Runner) closeSession(logger *zap.Logger, sess crawler.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.CleanupTimeout)
	defer cancel()
	if err := sess.Close(ctx); err != nil {
		logger.Warn("Browser close failed", zap.Error(err))
		return
	}
	logger.Info("Browser closed")
}

// finalize stamps the terminal status, computes the word table, prints the
// summary and hands the report to the optional store and publisher.
func (r *Runner) finalize(ctx context.Context, logger *zap.Logger, rep *crawler.SessionReport, runErr error) {
	rep.Finished = r.deps.Clock.Now()
	rep.RepeatedWords = wordfreq.AnalyzeRepeatedWords(rep.TranslatedTitles())

	evt := progress.Event{Dur: rep.Finished.Sub(rep.Started)}
	if runErr != nil {
		rep.Status = crawler.SessionStatusFailed
		rep.ErrorText = runErr.Error()
		evt.Stage = progress.StageSessionError
		evt.Note = rep.ErrorText
		logger.Error("Execution failed", zap.Error(runErr), zap.Int("rows", len(rep.Rows)))
	} else {
		rep.Status = crawler.SessionStatusSucceeded
		evt.Stage = progress.StageSessionDone
		logger.Info("Completed session", zap.Int("rows", len(rep.Rows)))
	}

	if runErr == nil || len(rep.Rows) > 0 {
		if err := r.deps.Printer.Summary(*rep); err != nil {
			logger.Warn("Summary output failed", zap.Error(err))
		}
	}
	metrics.ObserveSession(rep.Target.Label(), string(rep.Status))
	r.emit(*rep, evt)
	r.persist(ctx, logger, *rep)
}

func (r *Runner) persist(ctx context.Context, logger *zap.Logger, rep crawler.SessionReport) {
	if r.deps.Reports == nil && (r.deps.Publisher == nil || r.cfg.Topic == "") {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.CleanupTimeout)
	defer cancel()

	if r.deps.Reports != nil {
		if err := r.deps.Reports.SaveReport(ctx, rep); err != nil {
			logger.Error("Report store failed", zap.Error(err))
		}
	}
	if r.deps.Publisher != nil && r.cfg.Topic != "" {
		id, err := r.deps.Publisher.Publish(ctx, r.cfg.Topic, rep)
		if err != nil {
			logger.Error("Report publish failed", zap.String("topic", r.cfg.Topic), zap.Error(err))
			return
		}
		logger.Debug("Report published", zap.String("topic", r.cfg.Topic), zap.String("message_id", id))
	}
}

func (r *Runner) emit(rep crawler.SessionReport, evt progress.Event) {
	evt.RunID = rep.RunID
	evt.SessionID = rep.SessionID
	evt.Target = rep.Target.Label()
	evt.TS = r.deps.Clock.Now()
	r.deps.Progress.Emit(evt)
}
