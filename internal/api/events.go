package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"staffing-board/internal/bus"
)

const (
	monitorBuffer    = 64
	monitorKeepalive = 15 * time.Second
)

// handleEvents streams every bus envelope as server-sent events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events := make(chan bus.Envelope, monitorBuffer)
	id := s.bus.On(bus.AnyEvent, func(env bus.Envelope) {
		select {
		case events <- env:
		default:
			s.logger.Warn("monitor too slow, dropping event", "type", env.Type, "id", env.ID)
		}
	})
	defer s.bus.Off(bus.AnyEvent, id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	keepalive := time.NewTicker(monitorKeepalive)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case env := <-events:
			data, err := json.Marshal(env)
			if err != nil {
				s.logger.Warn("encode monitor event", "type", env.Type, "err", err)
				continue
			}
			_, _ = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", env.ID, env.Type, data)
			flusher.Flush()
		}
	}
}
