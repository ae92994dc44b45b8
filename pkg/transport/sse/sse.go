// Package sse forwards an eventstream.Store stream over Server-Sent
// Events: each event encodes id, event (type), and data (JSON payload);
// a terminal done or error is always the last frame; resume uses the
// Last-Event-ID header against the Event Store's own afterID cursor.
package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/nstogner/agentcore/pkg/eventstream"
)

// PollInterval is how often Handler checks the store for new events on a
// still-running stream.
const PollInterval = 200 * time.Millisecond

// Handler serves one stream's events over SSE via polling+incremental
// Read(afterID) against the underlying Store.
type Handler struct {
	Store eventstream.Store
}

// NewHandler constructs a Handler over store.
func NewHandler(store eventstream.Store) *Handler {
	return &Handler{Store: store}
}

// ServeHTTP expects the stream id in the "stream_id" path value (set via
// http.ServeMux's "GET /streams/{stream_id}" pattern or equivalent).
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	streamID := r.PathValue("stream_id")
	if streamID == "" {
		http.Error(w, "missing stream_id", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	var afterID int64
	if last := r.Header.Get("Last-Event-ID"); last != "" {
		if v, err := strconv.ParseInt(last, 10, 64); err == nil {
			afterID = v
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			events, err := h.Store.Read(streamID, afterID, 0)
			if err != nil {
				writeFrame(w, 0, eventstream.EventError, map[string]string{"reason": err.Error()})
				flusher.Flush()
				return
			}
			for _, ev := range events {
				writeFrame(w, ev.ID, ev.Type, ev.Payload)
				afterID = ev.ID
				if ev.Type == eventstream.EventDone || ev.Type == eventstream.EventError {
					flusher.Flush()
					return
				}
			}
			if len(events) > 0 {
				flusher.Flush()
			}
		}
	}
}

func writeFrame(w http.ResponseWriter, id int64, eventType eventstream.EventType, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("sse: encoding event payload", "error", err)
		data = []byte("null")
	}
	fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, eventType, data)
}
