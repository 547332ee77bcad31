package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/procreport/internal/events"
)

const sseKeepAlive = 30 * time.Second

// WithEventBus enables the /api/v1/events stream and publishes option
// changes made through the API.
func WithEventBus(bus *events.Bus) ServerOption {
	return func(s *Server) {
		s.events = bus
	}
}

// handleEvents streams bus events as Server-Sent Events until the client
// goes away or the bus closes. ?type=a,b limits the stream to those types.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		respondError(w, http.StatusNotFound, "event stream is disabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	var types []string
	if raw := r.URL.Query().Get("type"); raw != "" {
		types = strings.Split(raw, ",")
	}
	ch := s.events.Subscribe(types...)
	defer s.events.Unsubscribe(ch)

	// The stream outlives the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	s.logger.Debug("event stream connected", "remote_addr", r.RemoteAddr, "types", types)
	s.writeSSE(w, flusher, "connected", map[string]string{"status": "connected"})

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("event stream disconnected", "remote_addr", r.RemoteAddr)
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case e, ok := <-ch:
			if !ok {
				return
			}
			s.writeSSE(w, flusher, e.Type, e)
		}
	}
}

func (s *Server) writeSSE(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("encoding event", "type", eventType, "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload)
	flusher.Flush()
}
