package openai

import (
	"testing"

	goopenai "github.com/sashabaranov/go-openai"
)

func intPtr(i int) *int { return &i }

func TestToolCallMergerAccumulatesArguments(t *testing.T) {
	m := newToolCallMerger()
	m.add([]goopenai.ToolCall{{Index: intPtr(0), ID: "call_1", Type: goopenai.ToolTypeFunction, Function: goopenai.FunctionCall{Name: "search", Arguments: `{"quer`}}})
	m.add([]goopenai.ToolCall{{Index: intPtr(0), Function: goopenai.FunctionCall{Arguments: `y":"go"`}}})
	m.add([]goopenai.ToolCall{{Index: intPtr(0), Function: goopenai.FunctionCall{Arguments: `}`}}})

	calls := m.calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 merged call, got %d", len(calls))
	}
	if calls[0].Function.Arguments != `{"query":"go"}` {
		t.Fatalf("got %q", calls[0].Function.Arguments)
	}
	if calls[0].ID != "call_1" {
		t.Fatalf("expected id to survive merge, got %q", calls[0].ID)
	}
}

func TestToolCallMergerPreservesIndexOrder(t *testing.T) {
	m := newToolCallMerger()
	m.add([]goopenai.ToolCall{{Index: intPtr(1), ID: "b", Function: goopenai.FunctionCall{Name: "second"}}})
	m.add([]goopenai.ToolCall{{Index: intPtr(0), ID: "a", Function: goopenai.FunctionCall{Name: "first"}}})

	calls := m.calls()
	if len(calls) != 2 || calls[0].ID != "a" || calls[1].ID != "b" {
		t.Fatalf("expected [a, b] order, got %+v", calls)
	}
}
