package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"staffing-board/internal/gateway"
	"staffing-board/internal/models"
	"staffing-board/internal/roster"
	"staffing-board/internal/views"
)

const maxWebhookBody = 1 << 20

type candidateView struct {
	models.Candidate
	MaskedID string `json:"maskedId"`
	LastSeen string `json:"lastSeen"`
}

func (s *Server) handleListCandidates(w http.ResponseWriter, r *http.Request) {
	trade := r.URL.Query().Get("trade")
	now := time.Now()
	items := []candidateView{}
	for _, c := range s.roster.List(r.Context()) {
		if trade != "" && c.Trade != trade {
			continue
		}
		items = append(items, candidateView{
			Candidate: c,
			MaskedID:  roster.MaskUserID(c.ID),
			LastSeen:  views.LastSeen(c.LastSeenAt, now, nil),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleUpsertCandidate(w http.ResponseWriter, r *http.Request) {
	var c models.Candidate
	if !decodeJSON(w, r, &c) {
		return
	}
	c.ID = chi.URLParam(r, "id")
	saved, err := s.roster.Upsert(r.Context(), c)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDeleteCandidate(w http.ResponseWriter, r *http.Request) {
	ok, err := s.roster.Remove(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		http.Error(w, "candidate not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleLineWebhook applies LINE follow, message and unfollow events. When a
// channel secret is configured the X-Line-Signature header must match.
func (s *Server) handleLineWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	if s.cfg.LineChannelSecret != "" && !gateway.VerifyLineSignature(s.cfg.LineChannelSecret, body, r.Header.Get("X-Line-Signature")) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}
	var payload roster.WebhookBody
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	}
	if len(payload.Events) == 0 {
		writeJSON(w, http.StatusOK, map[string]string{"message": "no events to process"})
		return
	}
	if err := s.roster.HandleEvents(r.Context(), payload.Events); err != nil {
		s.logger.Error("webhook failed", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "events processed"})
}
