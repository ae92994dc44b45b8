package sse

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nstogner/agentcore/pkg/eventstream"
)

func TestHandlerStreamsUntilDone(t *testing.T) {
	store := eventstream.NewMemoryStore(time.Minute)
	defer store.Close()

	store.Append("s1", eventstream.Event{Type: eventstream.EventTextDelta, Payload: map[string]string{"text": "hi"}})
	store.Append("s1", eventstream.Event{Type: eventstream.EventDone})

	req := httptest.NewRequest(http.MethodGet, "/streams/s1", nil)
	req.SetPathValue("stream_id", "s1")
	rec := httptest.NewRecorder()

	NewHandler(store).ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "event: text_delta") {
		t.Fatalf("expected text_delta frame, got %q", body)
	}
	if !strings.Contains(body, "event: done") {
		t.Fatalf("expected terminal done frame, got %q", body)
	}
}

func TestHandlerMissingStreamID(t *testing.T) {
	store := eventstream.NewMemoryStore(time.Minute)
	defer store.Close()

	req := httptest.NewRequest(http.MethodGet, "/streams/", nil)
	rec := httptest.NewRecorder()

	NewHandler(store).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandlerResumesFromLastEventID(t *testing.T) {
	store := eventstream.NewMemoryStore(time.Minute)
	defer store.Close()

	store.Append("s1", eventstream.Event{Type: eventstream.EventTextDelta, Payload: map[string]string{"text": "one"}})
	store.Append("s1", eventstream.Event{Type: eventstream.EventTextDelta, Payload: map[string]string{"text": "two"}})
	store.Append("s1", eventstream.Event{Type: eventstream.EventDone})

	req := httptest.NewRequest(http.MethodGet, "/streams/s1", nil)
	req.SetPathValue("stream_id", "s1")
	req.Header.Set("Last-Event-ID", "1")
	rec := httptest.NewRecorder()

	NewHandler(store).ServeHTTP(rec, req)

	body := rec.Body.String()
	if strings.Contains(body, "\"text\":\"one\"") {
		t.Fatalf("expected resume to skip already-seen event, got %q", body)
	}
	if !strings.Contains(body, "\"text\":\"two\"") {
		t.Fatalf("expected resume to include event after Last-Event-ID, got %q", body)
	}
}
