package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/tradeforge/riskmon/internal/domain"
	"github.com/tradeforge/riskmon/internal/risk"
)

// SessionHandler serves the session lifecycle and status endpoints.
type SessionHandler struct {
	manager *risk.StrategyManager
	journal domain.SessionJournal
	logger  *slog.Logger
}

// NewSessionHandler creates a SessionHandler. journal may be nil when no
// database is configured; the journal endpoint then returns 404.
func NewSessionHandler(manager *risk.StrategyManager, journal domain.SessionJournal, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		manager: manager,
		journal: journal,
		logger:  logger,
	}
}

// startSessionRequest is the JSON body for POST /api/sessions. Monetary
// fields are decimal strings.
type startSessionRequest struct {
	SessionID       string               `json:"session_id,omitempty"`
	Instrument      string               `json:"instrument"`
	Allocation      string               `json:"allocation"`
	MaxPositionSize string               `json:"max_position_size"`
	InitialPrice    string               `json:"initial_price"`
	Watchers        []watcherSpecRequest `json:"watchers"`
}

type watcherSpecRequest struct {
	Kind      string `json:"kind"`
	Threshold string `json:"threshold"`
}

// ListSessions returns a snapshot of every live session.
// GET /api/sessions
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.manager.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// StartSession registers a new monitored session.
// POST /api/sessions
func (h *SessionHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	cfg, err := req.toConfig()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.manager.Start(r.Context(), req.SessionID, cfg)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, domain.ErrSessionExists):
		writeError(w, http.StatusConflict, err.Error())
		return
	default:
		logHandler(h.logger, "start_session").Error("session start failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "session start failed")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"session_id": id})
}

// GetSession returns the current snapshot of one session.
// GET /api/sessions/{id}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	status, err := h.manager.Status(id)
	if errors.Is(err, domain.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found: "+id)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "status lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// StopSession requests an orderly stop of one session. Stopping an unknown
// session is a no-op by contract, so the endpoint is idempotent.
// DELETE /api/sessions/{id}
func (h *SessionHandler) StopSession(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	h.manager.Stop(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

// ListJournal returns the persisted lifecycle history of one session.
// GET /api/sessions/{id}/journal
func (h *SessionHandler) ListJournal(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeError(w, http.StatusNotFound, "journal not configured")
		return
	}
	id := pathParam(r, "id")

	entries, err := h.journal.List(r.Context(), id, parseListOpts(r))
	if err != nil {
		logHandler(h.logger, "list_journal").Error("journal query failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "journal query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// toConfig parses the request's decimal strings into a session config.
// Parse failures surface as 400s before the config ever reaches the manager.
func (req startSessionRequest) toConfig() (domain.SessionConfig, error) {
	allocation, err := decimal.NewFromString(req.Allocation)
	if err != nil {
		return domain.SessionConfig{}, errors.New("allocation must be a decimal string")
	}
	maxPos, err := decimal.NewFromString(req.MaxPositionSize)
	if err != nil {
		return domain.SessionConfig{}, errors.New("max_position_size must be a decimal string")
	}
	initialPrice, err := decimal.NewFromString(req.InitialPrice)
	if err != nil {
		return domain.SessionConfig{}, errors.New("initial_price must be a decimal string")
	}

	watchers := make([]domain.WatcherSpec, 0, len(req.Watchers))
	for _, ws := range req.Watchers {
		threshold, err := decimal.NewFromString(ws.Threshold)
		if err != nil {
			return domain.SessionConfig{}, errors.New("watcher threshold must be a decimal string")
		}
		watchers = append(watchers, domain.WatcherSpec{
			Kind:      domain.WatcherKind(ws.Kind),
			Threshold: threshold,
		})
	}

	return domain.SessionConfig{
		Instrument:      req.Instrument,
		Allocation:      allocation,
		MaxPositionSize: maxPos,
		InitialPrice:    initialPrice,
		Watchers:        watchers,
	}, nil
}
