package sqlite

import (
	"context"
	"os"
	"testing"

	"github.com/nstogner/agentcore/pkg/content"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	tmpFile := t.TempDir() + "/sessions.db"
	s, err := New(tmpFile)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
		os.Remove(tmpFile)
	})
	return s
}

func TestLoadMissingSessionReturnsEmptyConversation(t *testing.T) {
	s := newTestStore(t)
	conv, err := s.Load(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if conv.Len() != 0 {
		t.Fatalf("expected empty conversation, got %d messages", conv.Len())
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := content.Conversation{}
	conv.Append(content.Message{Role: content.RoleUser, Content: []content.Block{content.Text("hi")}})
	conv.Append(content.Message{Role: content.RoleAssistant, Content: []content.Block{content.Text("hello")}})

	if err := s.Save(ctx, "sess-1", conv); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Len() != 2 {
		t.Fatalf("got %d messages, want 2", got.Len())
	}
	if got.Messages[0].Text() != "hi" || got.Messages[1].Text() != "hello" {
		t.Fatalf("round-tripped conversation mismatch: %+v", got.Messages)
	}
}

func TestSaveOverwritesPriorState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := content.Conversation{}
	first.Append(content.Message{Role: content.RoleUser, Content: []content.Block{content.Text("first")}})
	if err := s.Save(ctx, "sess-1", first); err != nil {
		t.Fatal(err)
	}

	second := content.Conversation{}
	second.Append(content.Message{Role: content.RoleUser, Content: []content.Block{content.Text("second")}})
	if err := s.Save(ctx, "sess-1", second); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 1 || got.Messages[0].Text() != "second" {
		t.Fatalf("expected overwrite to win, got %+v", got.Messages)
	}
}

func TestReset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := content.Conversation{}
	conv.Append(content.Message{Role: content.RoleUser, Content: []content.Block{content.Text("hi")}})
	if err := s.Save(ctx, "sess-1", conv); err != nil {
		t.Fatal(err)
	}

	if err := s.Reset(ctx, "sess-1"); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	got, err := s.Load(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 0 {
		t.Fatalf("expected reset session to be empty, got %d messages", got.Len())
	}
}
