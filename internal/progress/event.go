package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageSessionStart      Stage = "SESSION_START"
	StageArticleDone       Stage = "ARTICLE_DONE"
	StageArticleSkipped    Stage = "ARTICLE_SKIPPED"
	StageTranslationFailed Stage = "TRANSLATION_FAILED"
	StageSessionDone       Stage = "SESSION_DONE"
	StageSessionError      Stage = "SESSION_ERROR"
)

// Event captures one milestone of a browser session.
type Event struct {
	// RunID groups the sessions of one process run.
	RunID string
	// SessionID identifies the session within the run.
	SessionID string
	// Target is the human-readable session label.
	Target string
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// URL and Position identify the article for article stages.
	URL      string
	Position int
	// Dur is the article or session wall time.
	Dur time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.SessionID == "" {
		return errors.New("session id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageSessionStart, StageSessionDone, StageSessionError:
	case StageArticleDone, StageArticleSkipped, StageTranslationFailed:
		if e.Position <= 0 {
			return fmt.Errorf("%s requires an article position", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// Terminal reports whether the stage ends a session.
func (s Stage) Terminal() bool {
	return s == StageSessionDone || s == StageSessionError
}
