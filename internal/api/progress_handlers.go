package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/opinion-crawler/internal/store"
)

const (
	defaultSessionLimit = 50
	maxSessionLimit     = 500
	progressTimeout     = 3 * time.Second
)

// ProgressHandler exposes read-only session progress endpoints.
type ProgressHandler struct {
	repo    store.ProgressRepository
	timeout time.Duration
	logger  *zap.Logger
}

// NewProgressHandler wires the repository and logger.
func NewProgressHandler(repo store.ProgressRepository, logger *zap.Logger) *ProgressHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressHandler{
		repo:    repo,
		timeout: progressTimeout,
		logger:  logger,
	}
}

// Routes mounts the handlers on r.
func (h *ProgressHandler) Routes(r chi.Router) {
	r.Get("/api/sessions", h.ListSessions)
	r.Get("/api/sessions/{session_id}", h.GetSession)
}

// ListSessions handles GET /api/sessions?status=&limit=&offset=. It returns a
// JSON object {"sessions": [...]} on success, 400 for invalid filters, 503 when
// the repo is unavailable, or 500 if the repository call fails.
func (h *ProgressHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "progress repository unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	limit, offset, err := parseLimitOffset(r, defaultSessionLimit, maxSessionLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var status *store.RunStatus
	if statusParam := strings.TrimSpace(r.URL.Query().Get("status")); statusParam != "" {
		statusVal, parseErr := parseStatus(statusParam)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		status = &statusVal
	}
	sessions, err := h.repo.ListSessions(ctx, status, limit, offset)
	if err != nil {
		h.logger.Error("list sessions failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": toSessionDTOs(sessions),
	})
}

// GetSession handles GET /api/sessions/{session_id}. It returns
// {"session": {...}} on success, 400 for malformed IDs, 404 when the repository
// reports store.ErrNotFound, 503 if the repo is not initialized, or 500
// otherwise.
func (h *ProgressHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "progress repository unavailable")
		return
	}
	id, err := parseSessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	run, err := h.repo.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		h.logger.Error("get session failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": toSessionDTO(run)})
}

func parseSessionID(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "session_id")
	if raw == "" {
		return "", errors.New("session_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", errors.New("invalid session_id")
	}
	return id.String(), nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func parseStatus(input string) (store.RunStatus, error) {
	switch strings.ToLower(input) {
	case "running":
		return store.RunRunning, nil
	case "success", "succeeded":
		return store.RunSuccess, nil
	case "error", "failed", "failure":
		return store.RunError, nil
	default:
		return "", errors.New("invalid status")
	}
}

func toSessionDTOs(in []store.SessionRun) []sessionDTO {
	out := make([]sessionDTO, 0, len(in))
	for _, run := range in {
		out = append(out, toSessionDTO(run))
	}
	return out
}

func toSessionDTO(run store.SessionRun) sessionDTO {
	return sessionDTO{
		ID:                run.ID,
		RunID:             run.RunID,
		Target:            run.Target,
		StartedAt:         run.StartedAt,
		FinishedAt:        run.FinishedAt,
		LastUpdate:        run.LastUpdate,
		Status:            string(run.Status),
		Done:              run.Done,
		Skipped:           run.Skipped,
		TranslationFailed: run.TranslationFailed,
		Error:             run.ErrorMessage,
	}
}

type sessionDTO struct {
	ID                string     `json:"id"`
	RunID             string     `json:"run_id"`
	Target            string     `json:"target"`
	StartedAt         time.Time  `json:"started_at"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
	LastUpdate        time.Time  `json:"last_update"`
	Status            string     `json:"status"`
	Done              int        `json:"articles_done"`
	Skipped           int        `json:"articles_skipped"`
	TranslationFailed int        `json:"translations_failed"`
	Error             *string    `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing more can be reported to the client.
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
