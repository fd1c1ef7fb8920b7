package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"staffing-board/internal/models"
	"staffing-board/internal/views"
)

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": s.repo.Jobs.List(r.Context())})
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var in models.JobInput
	if !decodeJSON(w, r, &in) {
		return
	}
	job, err := s.repo.Jobs.Create(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.repo.Jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	var patch models.JobPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	job, ok, err := s.repo.Jobs.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	ok, err := s.repo.Jobs.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeadline(w http.ResponseWriter, r *http.Request) {
	job, ok := s.repo.Jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	deadline, err := views.StartDeadline(job.StartDate, s.cfg.DeadlineBufferDays)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobId":      job.ID,
		"bufferDays": s.cfg.DeadlineBufferDays,
		"deadline":   views.FormatDeadline(deadline, nil),
	})
}

type notifyRequest struct {
	To string `json:"to"`
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	if s.notifier == nil {
		http.Error(w, "no gateway configured", http.StatusServiceUnavailable)
		return
	}
	var req notifyRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	count, err := s.notifier.NotifyJob(r.Context(), chi.URLParam(r, "id"), req.To)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifyCount": count})
}

func (s *Server) handleTestApplication(w http.ResponseWriter, r *http.Request) {
	app, err := s.repo.Applications.CreateTestApplication(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

func (s *Server) handleJobApplications(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.repo.Jobs.Get(r.Context(), id); !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": s.repo.Applications.ForJob(r.Context(), id)})
}

func (s *Server) handleCompletedAnalytics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	asc := q.Get("order") == "asc"
	writeJSON(w, http.StatusOK, views.CompletedAnalytics(s.repo.Jobs.List(r.Context()), q.Get("sort"), asc))
}
