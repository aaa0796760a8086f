package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/opinion-crawler/internal/progress"
)

// PrometheusSink exports session progress via Prometheus. It owns the
// collectors for sessions started/completed/running and per-outcome article
// counters.
type PrometheusSink struct {
	sessionsStarted   prometheus.Counter
	sessionsCompleted *prometheus.CounterVec
	sessionsRunning   prometheus.Gauge
	sessionRuntime    *prometheus.HistogramVec

	articles        *prometheus.CounterVec
	articleDuration prometheus.Histogram

	tracker *sessionTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opinion_progress_sessions_started_total",
			Help: "Browser sessions that have started.",
		}),
		sessionsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opinion_progress_sessions_completed_total",
			Help: "Browser sessions completed partitioned by result.",
		}, []string{"result"}),
		sessionsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "opinion_progress_sessions_running",
			Help: "Current number of running browser sessions.",
		}),
		sessionRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "opinion_progress_session_runtime_seconds",
			Help:    "Wall time per completed session.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
		}, []string{"result"}),
		articles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opinion_progress_articles_total",
			Help: "Articles processed partitioned by outcome.",
		}, []string{"outcome"}),
		articleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "opinion_progress_article_duration_seconds",
			Help:    "Time spent extracting and translating one article.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 45},
		}),
		tracker: newSessionTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.sessionsStarted,
		s.sessionsCompleted,
		s.sessionsRunning,
		s.sessionRuntime,
		s.articles,
		s.articleDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageSessionStart:
		s.sessionsStarted.Inc()
		if s.tracker.start(evt.SessionID) {
			s.sessionsRunning.Inc()
		}
	case progress.StageSessionDone:
		s.finishSession(evt, "success")
	case progress.StageSessionError:
		s.finishSession(evt, "error")
	case progress.StageArticleDone:
		s.articles.WithLabelValues("done").Inc()
		if evt.Dur > 0 {
			s.articleDuration.Observe(evt.Dur.Seconds())
		}
	case progress.StageArticleSkipped:
		s.articles.WithLabelValues("skipped").Inc()
	case progress.StageTranslationFailed:
		s.articles.WithLabelValues("translation_failed").Inc()
	}
}

func (s *PrometheusSink) finishSession(evt progress.Event, result string) {
	s.sessionsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.sessionRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.SessionID) {
		s.sessionsRunning.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type sessionTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newSessionTracker() *sessionTracker {
	return &sessionTracker{running: make(map[string]struct{})}
}

func (t *sessionTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *sessionTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
