package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"staffing-board/internal/bus"
	"staffing-board/internal/config"
	"staffing-board/internal/kvstore"
	"staffing-board/internal/notify"
	"staffing-board/internal/repo"
	"staffing-board/internal/roster"
	"staffing-board/internal/telemetry"
)

// Deps are the components the API serves.
type Deps struct {
	Repo *repo.Repository
	// Notifier is optional; without it /jobs/{id}/notify answers 503.
	Notifier *notify.Service
	Roster   *roster.Roster
	Logger   *slog.Logger
}

// Server wires HTTP handlers for the staffing board.
type Server struct {
	cfg      config.Config
	repo     *repo.Repository
	bus      *bus.Bus
	notifier *notify.Service
	roster   *roster.Roster
	logger   *slog.Logger
}

// New constructs the API server.
func New(cfg config.Config, d Deps) *Server {
	if d.Logger == nil {
		d.Logger = telemetry.Discard()
	}
	return &Server{
		cfg:      cfg,
		repo:     d.Repo,
		bus:      d.Repo.Bus(),
		notifier: d.Notifier,
		roster:   d.Roster,
		logger:   d.Logger,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Mount("/metrics", telemetry.Handler())
	r.Get("/env-check", s.handleEnvCheck)
	r.Get("/events", s.handleEvents)

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", s.handleListJobs)
		r.Post("/", s.handleCreateJob)
		r.Get("/{id}", s.handleGetJob)
		r.Patch("/{id}", s.handleUpdateJob)
		r.Delete("/{id}", s.handleDeleteJob)
		r.Get("/{id}/deadline", s.handleDeadline)
		r.Post("/{id}/notify", s.handleNotify)
		r.Post("/{id}/test-application", s.handleTestApplication)
		r.Get("/{id}/applications", s.handleJobApplications)
	})
	r.Get("/analytics/completed", s.handleCompletedAnalytics)

	r.Get("/applications", s.handleListApplications)
	r.Post("/applications", s.handleCreateApplication)
	r.Patch("/applications/{id}/status", s.handleUpdateStatus)
	r.Post("/responses", s.handleResponse)

	r.Route("/threads", func(r chi.Router) {
		r.Get("/", s.handleListThreads)
		r.Post("/", s.handleCreateThread)
		r.Get("/{id}", s.handleGetThread)
		r.Post("/{id}/messages", s.handleAppendMessage)
		r.Post("/{id}/read", s.handleMarkRead)
	})

	if s.roster != nil {
		r.Get("/candidates", s.handleListCandidates)
		r.Put("/candidates/{id}", s.handleUpsertCandidate)
		r.Delete("/candidates/{id}", s.handleDeleteCandidate)
		r.Post("/webhook/line", s.handleLineWebhook)
	}
	return r
}

func (s *Server) handleEnvCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Validate())
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repo.ErrInvalidInput), errors.Is(err, repo.ErrInvalidStatus), errors.Is(err, repo.ErrInvalidRole):
		return http.StatusBadRequest
	case errors.Is(err, kvstore.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, notify.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, notify.ErrPushFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusFor(err))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
