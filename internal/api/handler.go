package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/nidhogg/faculty-map/internal/auth"
	"github.com/nidhogg/faculty-map/internal/gateway"
	"github.com/nidhogg/faculty-map/internal/query"
	"github.com/nidhogg/faculty-map/internal/world"
)

// ChangeFeed returns recently published status changes.
type ChangeFeed interface {
	Recent(ctx context.Context, n int64) ([]world.StatusChange, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	queries     *query.Service
	auth        *auth.Authenticator
	registry    *world.Registry
	clock       *world.WorldClock
	tracker     *world.Tracker
	changes     ChangeFeed
	broadcaster *gateway.Broadcaster
	metrics     http.Handler
	logger      *zap.Logger
}

// NewHandler creates a new API handler. changes, broadcaster and metrics may be nil.
func NewHandler(
	queries *query.Service,
	authn *auth.Authenticator,
	registry *world.Registry,
	clock *world.WorldClock,
	tracker *world.Tracker,
	changes ChangeFeed,
	broadcaster *gateway.Broadcaster,
	metrics http.Handler,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		queries:     queries,
		auth:        authn,
		registry:    registry,
		clock:       clock,
		tracker:     tracker,
		changes:     changes,
		broadcaster: broadcaster,
		metrics:     metrics,
		logger:      logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", h.healthCheck)
	r.Post("/login", h.login)

	r.Get("/agents", h.listAgents)
	r.Get("/agents/search", h.searchAgents)
	r.Post("/agents/update-location", h.updateLocation)
	r.Get("/agents/{id}", h.getAgent)

	// World simulation routes
	r.Get("/world/status", h.worldStatus)
	r.Post("/tick", h.forceTick)
	r.Get("/status-changes", h.recentChanges)
	r.Get("/alerts", h.alertHistory)

	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}
	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type loginRequest struct {
	Role     string `json:"role"`
	Mobile   string `json:"mobile"`
	Password string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.auth.Login(req.Role, req.Mobile, req.Password); err != nil {
		h.logger.Info("login rejected", zap.String("role", req.Role))
		writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	writeMessage(w, http.StatusOK, "Login successful")
}

func (h *Handler) listAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.queries.ListAll())
}

func (h *Handler) getAgent(w http.ResponseWriter, r *http.Request) {
	a, err := h.queries.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeMessage(w, http.StatusNotFound, "Agent not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) searchAgents(w http.ResponseWriter, r *http.Request) {
	m, err := h.queries.FindByName(r.URL.Query().Get("q"))
	switch {
	case errors.Is(err, query.ErrMalformedInput):
		writeMessage(w, http.StatusBadRequest, "Missing search query")
	case errors.Is(err, query.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "No matching teacher found")
	case err != nil:
		writeMessage(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, m)
	}
}

func (h *Handler) updateLocation(w http.ResponseWriter, r *http.Request) {
	var req query.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	ack, err := h.queries.ApplyExternalUpdate(req)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	writeMessage(w, http.StatusOK, ack.Message)
}

func (h *Handler) worldStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"world_time":    h.clock.WorldTime(),
		"speed":         h.clock.Speed(),
		"tick_interval": h.clock.Interval().String(),
		"ticks":         h.clock.Ticks(),
		"agent_count":   h.registry.Len(),
		"by_status":     h.registry.CountByStatus(),
	})
}

func (h *Handler) forceTick(w http.ResponseWriter, r *http.Request) {
	report := h.tracker.Tick(h.clock.WorldTime())
	changes := report.Changes
	if changes == nil {
		changes = []world.StatusChange{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"world_time": report.WorldTime.Format(time.RFC3339),
		"processed":  report.Processed,
		"failed":     report.Failed,
		"changes":    changes,
	})
}

func (h *Handler) recentChanges(w http.ResponseWriter, r *http.Request) {
	if h.changes == nil {
		writeMessage(w, http.StatusServiceUnavailable, "status change feed not configured")
		return
	}
	changes, err := h.changes.Recent(r.Context(), int64(limitParam(r, 50)))
	if err != nil {
		h.logger.Warn("read status changes failed", zap.Error(err))
		writeMessage(w, http.StatusBadGateway, "status change feed unavailable")
		return
	}
	writeJSON(w, http.StatusOK, changes)
}

func (h *Handler) alertHistory(w http.ResponseWriter, r *http.Request) {
	if h.broadcaster == nil {
		writeMessage(w, http.StatusServiceUnavailable, "alerts not configured")
		return
	}
	writeJSON(w, http.StatusOK, h.broadcaster.History(limitParam(r, 0)))
}

func limitParam(r *http.Request, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
