package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"staffing-board/internal/models"
	"staffing-board/internal/views"
)

func (s *Server) handleListApplications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": s.repo.Applications.List(r.Context())})
}

func (s *Server) handleCreateApplication(w http.ResponseWriter, r *http.Request) {
	var in models.ApplicationInput
	if !decodeJSON(w, r, &in) {
		return
	}
	app, err := s.repo.Applications.Create(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

type statusRequest struct {
	Status models.ApplicationStatus `json:"status"`
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	app, ok, err := s.repo.Applications.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		http.Error(w, "application not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

type responseRequest struct {
	JobID         string `json:"jobId"`
	ApplicantName string `json:"applicantName"`
	Apply         bool   `json:"apply"`
}

func (s *Server) handleResponse(w http.ResponseWriter, r *http.Request) {
	var req responseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	app, err := s.repo.Applications.RecordResponse(r.Context(), req.JobID, req.ApplicantName, req.Apply)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	threads := s.repo.Threads.List(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"items":       views.ThreadSummaries(threads, s.repo.Jobs.List(r.Context())),
		"totalUnread": views.TotalUnread(threads),
	})
}

type createThreadRequest struct {
	JobID           string `json:"jobId"`
	CounterpartName string `json:"counterpartName"`
	Tel             string `json:"tel"`
	LineID          string `json:"lineId"`
}

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	var req createThreadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := s.repo.Threads.Create(r.Context(), req.JobID, req.CounterpartName, models.Contact{Tel: req.Tel, LineID: req.LineID})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

type messageView struct {
	models.Message
	Ago string `json:"ago"`
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	view, ok := s.repo.Threads.GetWithMessages(r.Context(), chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "thread not found", http.StatusNotFound)
		return
	}
	now := time.Now()
	msgs := make([]messageView, 0, len(view.Messages))
	for _, m := range view.Messages {
		msgs = append(msgs, messageView{Message: m, Ago: views.FromNowMillis(m.CreatedAt, now)})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"thread":   view.Thread,
		"jobTitle": view.JobTitle,
		"messages": msgs,
	})
}

type messageRequest struct {
	Role models.Role `json:"role"`
	Text string      `json:"text"`
}

func (s *Server) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	msg, ok, err := s.repo.Threads.AppendMessage(r.Context(), chi.URLParam(r, "id"), req.Role, req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		http.Error(w, "thread not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	t, ok, err := s.repo.Threads.MarkRead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		http.Error(w, "thread not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
