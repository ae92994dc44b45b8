// Package ws forwards an eventstream.Store stream over a websocket
// connection: a background goroutine pushes new events to the client as
// they're appended, while the connection's read loop accepts user
// messages and hands them to a caller-supplied Send func (typically
// wrapping Agent.StreamMessage).
package ws

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nstogner/agentcore/pkg/eventstream"
)

// PollInterval is how often the writer goroutine checks for new events.
const PollInterval = 500 * time.Millisecond

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SendFunc handles an inbound user message, returning the stream id its
// response events will be published under.
type SendFunc func(r *http.Request, text string) (streamID string, err error)

// Handler upgrades a request to a websocket and bridges it to an
// eventstream.Store-backed Agent: inbound JSON {"content": "..."} messages
// are handed to Send, and outbound Agent events for the active stream are
// pushed to the client as JSON frames.
type Handler struct {
	Store eventstream.Store
	Send  SendFunc
}

// NewHandler constructs a Handler over store, dispatching inbound
// messages through send.
func NewHandler(store eventstream.Store, send SendFunc) *Handler {
	return &Handler{Store: store, Send: send}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws: upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var (
		mu           sync.Mutex
		activeStream string
		lastSentID   int64
	)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer conn.Close()

		ticker := time.NewTicker(PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				mu.Lock()
				streamID := activeStream
				mu.Unlock()
				if streamID == "" {
					continue
				}
				newLastID, err := h.pushNew(conn, streamID, lastSentID)
				if err != nil {
					slog.Error("ws: push failed", "error", err)
					return
				}
				lastSentID = newLastID
			}
		}
	}()

	for {
		var msg struct {
			Content string `json:"content"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Error("ws: read error", "error", err)
			}
			break
		}
		if msg.Content == "" {
			continue
		}

		streamID, err := h.Send(r, msg.Content)
		if err != nil {
			slog.Error("ws: send failed", "error", err)
			continue
		}
		mu.Lock()
		activeStream = streamID
		mu.Unlock()
	}

	close(done)
	wg.Wait()
}

func (h *Handler) pushNew(conn *websocket.Conn, streamID string, afterID int64) (int64, error) {
	events, err := h.Store.Read(streamID, afterID, 0)
	if err != nil {
		return afterID, nil // stream not created yet
	}
	for _, ev := range events {
		if err := conn.WriteJSON(ev); err != nil {
			return afterID, err
		}
		afterID = ev.ID
	}
	return afterID, nil
}
