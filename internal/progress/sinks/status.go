package sinks

import (
	"context"
	"sync"

	"github.com/JakeFAU/opinion-crawler/internal/progress"
	"github.com/JakeFAU/opinion-crawler/internal/store"
)

// StatusSink folds events into the latest state of each session and serves it
// as a store.ProgressRepository.
type StatusSink struct {
	mu       sync.RWMutex
	order    []string
	sessions map[string]*store.SessionRun
}

// NewStatusSink returns an empty StatusSink.
func NewStatusSink() *StatusSink {
	return &StatusSink{sessions: make(map[string]*store.SessionRun)}
}

// Consume implements progress.Sink.
func (s *StatusSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		s.apply(evt)
	}
	return nil
}

func (s *StatusSink) apply(evt progress.Event) {
	run, ok := s.sessions[evt.SessionID]
	if !ok {
		// Events can arrive for a session whose start was dropped.
		run = &store.SessionRun{
			ID:        evt.SessionID,
			RunID:     evt.RunID,
			Target:    evt.Target,
			StartedAt: evt.TS,
			Status:    store.RunRunning,
		}
		s.sessions[evt.SessionID] = run
		s.order = append(s.order, evt.SessionID)
	}
	if evt.TS.After(run.LastUpdate) {
		run.LastUpdate = evt.TS
	}

	switch evt.Stage {
	case progress.StageSessionStart:
		run.StartedAt = evt.TS
	case progress.StageArticleDone:
		run.Done++
	case progress.StageArticleSkipped:
		run.Skipped++
	case progress.StageTranslationFailed:
		run.TranslationFailed++
	case progress.StageSessionDone, progress.StageSessionError:
		finished := evt.TS
		run.FinishedAt = &finished
		run.Status = store.RunSuccess
		if evt.Stage == progress.StageSessionError {
			run.Status = store.RunError
			if evt.Note != "" {
				msg := evt.Note
				run.ErrorMessage = &msg
			}
		}
	}
}

// GetSession implements store.ProgressRepository.
func (s *StatusSink) GetSession(_ context.Context, id string) (store.SessionRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.sessions[id]
	if !ok {
		return store.SessionRun{}, store.ErrNotFound
	}
	return *run, nil
}

// ListSessions implements store.ProgressRepository.
func (s *StatusSink) ListSessions(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.SessionRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.SessionRun, 0, len(s.order))
	skipped := 0
	for _, id := range s.order {
		run := s.sessions[id]
		if status != nil && run.Status != *status {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, *run)
	}
	return out, nil
}

// Close implements progress.Sink; the state stays readable afterwards.
func (s *StatusSink) Close(context.Context) error {
	return nil
}
