package agent

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/nstogner/agentcore/pkg/content"
	"github.com/nstogner/agentcore/pkg/eventstream"
	"github.com/nstogner/agentcore/pkg/llm"
	"github.com/nstogner/agentcore/pkg/toolregistry"
)

// scriptedStream replays a fixed sequence of StreamEvents then a fixed
// final message, letting tests drive the Agent loop deterministically
// without a real provider.
type scriptedStream struct {
	events []llm.StreamEvent
	final  content.Message
	reason string
	err    error
	i      int
}

func (s *scriptedStream) Recv() (llm.StreamEvent, error) {
	if s.i >= len(s.events) {
		return llm.StreamEvent{}, io.EOF
	}
	ev := s.events[s.i]
	s.i++
	return ev, nil
}

func (s *scriptedStream) Final() (content.Message, string, error) {
	return s.final, s.reason, s.err
}

func (s *scriptedStream) Close() error { return nil }

type scriptedProvider struct {
	turns []func() *scriptedStream
	i     int
}

func (p *scriptedProvider) Name() string { return "scripted" }
func (p *scriptedProvider) ListModels(ctx context.Context) ([]llm.Model, error) {
	return nil, nil
}
func (p *scriptedProvider) Stream(ctx context.Context, model, system string, conv content.Conversation, tools []llm.ToolDefinition) (llm.Stream, error) {
	if p.i >= len(p.turns) {
		return nil, llm.NewInternalError("no more scripted turns", nil)
	}
	s := p.turns[p.i]()
	p.i++
	return s, nil
}
func (p *scriptedProvider) Create(ctx context.Context, model, system string, conv content.Conversation, tools []llm.ToolDefinition) (content.Message, string, error) {
	return content.Message{}, "", nil
}
func (p *scriptedProvider) CountTokens(ctx context.Context, model string, conv content.Conversation) (int, error) {
	return 0, nil
}

func waitForStatus(t *testing.T, store eventstream.Store, streamID string) eventstream.Status {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st := store.Status(streamID)
		if st == eventstream.StatusComplete || st == eventstream.StatusFailed {
			return st
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for terminal stream status")
	return eventstream.StatusUnknown
}

func TestStreamMessageEchoTurn(t *testing.T) {
	provider := &scriptedProvider{turns: []func() *scriptedStream{
		func() *scriptedStream {
			return &scriptedStream{
				events: []llm.StreamEvent{{Type: llm.StreamTextDelta, TextDelta: "hello"}},
				final:  content.Message{Role: content.RoleAssistant, Content: []content.Block{content.Text("hello")}},
				reason: "end_turn",
			}
		},
	}}
	store := eventstream.NewMemoryStore(time.Minute)
	defer store.Close()

	a := New(provider, toolregistry.New(), nil, store, nil, nil, Config{Model: "test"})
	err := a.StreamMessage(context.Background(), "s1", []content.Block{content.Text("hi")})
	if err != nil {
		t.Fatal(err)
	}
	if got := store.Status("s1"); got != eventstream.StatusComplete {
		t.Fatalf("expected complete, got %s", got)
	}

	events, err := store.Read("s1", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	foundDelta, foundDone := false, false
	for _, e := range events {
		if e.Type == eventstream.EventTextDelta && e.Payload == "hello" {
			foundDelta = true
		}
		if e.Type == eventstream.EventDone {
			foundDone = true
		}
	}
	if !foundDelta || !foundDone {
		t.Fatalf("expected text_delta and done events, got %+v", events)
	}
}

func TestStreamMessageSingleToolRoundTrip(t *testing.T) {
	toolUse := content.ToolUse("call-1", "echo", map[string]any{"text": "hi"})
	provider := &scriptedProvider{turns: []func() *scriptedStream{
		func() *scriptedStream {
			return &scriptedStream{
				events: []llm.StreamEvent{{Type: llm.StreamToolUse, ToolUse: &toolUse}},
				final:  content.Message{Role: content.RoleAssistant, Content: []content.Block{toolUse}},
				reason: "tool_use",
			}
		},
		func() *scriptedStream {
			return &scriptedStream{
				final:  content.Message{Role: content.RoleAssistant, Content: []content.Block{content.Text("done")}},
				reason: "end_turn",
			}
		},
	}}

	tools := toolregistry.New()
	_ = tools.Register("echo", "", nil, func(_ context.Context, args map[string]any) (string, error) {
		return args["text"].(string), nil
	}, "")

	store := eventstream.NewMemoryStore(time.Minute)
	defer store.Close()
	a := New(provider, tools, nil, store, nil, nil, Config{Model: "test"})

	if err := a.StreamMessage(context.Background(), "s2", []content.Block{content.Text("run echo")}); err != nil {
		t.Fatal(err)
	}

	conv := a.Conversation()
	if err := content.ValidatePairing(conv); err != nil {
		t.Fatalf("resulting conversation violates pairing invariant: %v", err)
	}
	if conv.Messages[len(conv.Messages)-1].Text() != "done" {
		t.Fatalf("expected final assistant text 'done', got conversation %+v", conv)
	}
}

func TestStreamMessageParallelToolsPreserveOrder(t *testing.T) {
	toolA := content.ToolUse("a", "echo", map[string]any{"text": "A"})
	toolB := content.ToolUse("b", "echo", map[string]any{"text": "B"})
	toolC := content.ToolUse("c", "echo", map[string]any{"text": "C"})

	provider := &scriptedProvider{turns: []func() *scriptedStream{
		func() *scriptedStream {
			return &scriptedStream{
				final:  content.Message{Role: content.RoleAssistant, Content: []content.Block{toolA, toolB, toolC}},
				reason: "tool_use",
			}
		},
		func() *scriptedStream {
			return &scriptedStream{
				final:  content.Message{Role: content.RoleAssistant, Content: []content.Block{content.Text("done")}},
				reason: "end_turn",
			}
		},
	}}

	tools := toolregistry.New()
	_ = tools.Register("echo", "", nil, func(_ context.Context, args map[string]any) (string, error) {
		return args["text"].(string), nil
	}, "")

	store := eventstream.NewMemoryStore(time.Minute)
	defer store.Close()
	a := New(provider, tools, nil, store, nil, nil, Config{Model: "test"})

	if err := a.StreamMessage(context.Background(), "s3", []content.Block{content.Text("run all three")}); err != nil {
		t.Fatal(err)
	}

	conv := a.Conversation()
	var toolResultsMsg content.Message
	for _, m := range conv.Messages {
		if len(m.ToolResultIDs()) == 3 {
			toolResultsMsg = m
			break
		}
	}
	want := []string{"a", "b", "c"}
	for i, id := range want {
		if toolResultsMsg.Content[i].ToolResultForID != id {
			t.Fatalf("expected result order %v, got block %d with id %q", want, i, toolResultsMsg.Content[i].ToolResultForID)
		}
	}
}

func TestStreamMessageAuthErrorRewindsLastTurn(t *testing.T) {
	provider := &scriptedProvider{turns: []func() *scriptedStream{
		func() *scriptedStream {
			return &scriptedStream{err: llm.NewAuthError("bad key", nil)}
		},
	}}

	store := eventstream.NewMemoryStore(time.Minute)
	defer store.Close()
	a := New(provider, toolregistry.New(), nil, store, nil, nil, Config{Model: "test"})

	err := a.StreamMessage(context.Background(), "s4", []content.Block{content.Text("hi")})
	if err == nil {
		t.Fatal("expected auth error to propagate")
	}
	if got := store.Status("s4"); got != eventstream.StatusFailed {
		t.Fatalf("expected failed status, got %s", got)
	}
	conv4 := a.Conversation()
	if conv4.Len() != 0 {
		t.Fatalf("expected the triggering user turn to be rewound, got %d messages", conv4.Len())
	}
}
