// Package llm defines the provider-neutral LLM contract: streaming and
// non-streaming completion, offline token counting, and a normalized
// error taxonomy every provider adapter translates into at its own
// boundary.
package llm

import (
	"context"
	"time"

	"github.com/nstogner/agentcore/pkg/content"
)

// StreamEventType enumerates the incremental events a Provider emits while
// streaming a completion.
type StreamEventType string

const (
	StreamTextDelta StreamEventType = "text_delta"
	StreamToolUse   StreamEventType = "tool_use"
	StreamUsage     StreamEventType = "usage"
	// StreamRetry reports that a retryable error forced the provider to
	// re-attempt establishing the stream, so callers can surface it (e.g.
	// as an EventRetry) rather than only ever seeing the eventual outcome.
	StreamRetry StreamEventType = "retry"
)

// StreamEvent is one increment of a streamed completion.
type StreamEvent struct {
	Type StreamEventType

	// TextDelta is set when Type == StreamTextDelta.
	TextDelta string

	// ToolUse is set when Type == StreamToolUse: a complete tool call has
	// been assembled from the stream's deltas.
	ToolUse *content.Block

	// InputTokens/OutputTokens are set when Type == StreamUsage.
	InputTokens  int
	OutputTokens int

	// RetryAttempt/RetryDelay/RetryErr are set when Type == StreamRetry.
	RetryAttempt int
	RetryDelay   time.Duration
	RetryErr     error
}

// Stream is the handle to an in-flight streamed completion.
type Stream interface {
	// Recv returns the next StreamEvent, or io.EOF once the stream is
	// exhausted after the final message is available via Final.
	Recv() (StreamEvent, error)

	// Final blocks until the stream is exhausted and returns the complete
	// assistant message plus the stop reason ("end_turn", "tool_use",
	// "max_tokens").
	Final() (content.Message, string, error)

	// Close releases resources held by the stream.
	Close() error
}

// Model describes one selectable model from a provider.
type Model struct {
	Name         string
	ContextWindow int
}

// Provider is the contract every LLM backend adapter implements.
type Provider interface {
	// Name identifies the provider (e.g. "gemini", "openai").
	Name() string

	// ListModels returns the models this provider currently exposes.
	ListModels(ctx context.Context) ([]Model, error)

	// Stream begins a streamed completion for the given system prompt,
	// conversation, and available tool definitions.
	Stream(ctx context.Context, modelName, systemPrompt string, conversation content.Conversation, tools []ToolDefinition) (Stream, error)

	// Create performs a non-streaming completion, for callers (e.g. the
	// compactor's Phase 2 summarization) that don't need incremental events.
	Create(ctx context.Context, modelName, systemPrompt string, conversation content.Conversation, tools []ToolDefinition) (content.Message, string, error)

	// CountTokens returns an offline (no network round-trip) token count
	// estimate for the given conversation under modelName.
	CountTokens(ctx context.Context, modelName string, conversation content.Conversation) (int, error)
}

// ToolDefinition is the provider-facing shape of a registered tool. It
// mirrors toolregistry.Definition but lives in this package to avoid a
// dependency cycle (toolregistry has no need to know about llm).
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}
