package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"onionctl/internal/reporting"
	"onionctl/pkg/logging"

	"github.com/go-chi/chi/v5"
)

const eventStreamBuffer = 64

type eventMessage struct {
	Type          reporting.EventType     `json:"type"`
	Source        string                  `json:"source"`
	Severity      reporting.EventSeverity `json:"severity"`
	CorrelationID string                  `json:"correlationId,omitempty"`
	Message       string                  `json:"message"`
	Event         reporting.Event         `json:"event"`
}

func startStream(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering
	fmt.Fprintf(w, "retry: 5000\n\n")
	flusher.Flush()
	return flusher, true
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	bytes, err := json.Marshal(data)
	if err != nil {
		logging.Warn("Server", "Dropping %s stream message: %v", event, err)
		return
	}
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	fmt.Fprintf(w, "data: %s\n\n", bytes)
	flusher.Flush()
}

// handleLogStream makes {name} the active log source and streams its snapshots. The stream
// ends when the client goes away or another caller switches the tail elsewhere.
func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ctx := r.Context()

	snapshots, err := s.facade.SetActiveLog(ctx, name)
	if err != nil {
		writeError(w, err)
		return
	}
	flusher, ok := startStream(w)
	if !ok {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				writeEvent(w, flusher, "closed", map[string]string{"source": name})
				return
			}
			writeEvent(w, flusher, "snapshot", snap)
		}
	}
}

// handleEvents streams every bus event. Slow clients lose events rather than stall the bus.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var filter reporting.EventFilter
	if prefix := r.URL.Query().Get("type"); prefix != "" {
		filter = reporting.FilterByTypePrefix(prefix)
	}
	sub := s.facade.SubscribeChannel(filter, eventStreamBuffer)
	defer s.facade.Unsubscribe(sub)

	flusher, ok := startStream(w)
	if !ok {
		return
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.Channel:
			if !ok {
				return
			}
			writeEvent(w, flusher, string(e.Type()), eventMessage{
				Type:          e.Type(),
				Source:        e.Source(),
				Severity:      e.Severity(),
				CorrelationID: e.CorrelationID(),
				Message:       e.String(),
				Event:         e,
			})
		}
	}
}
