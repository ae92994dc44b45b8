// Package agent implements the Agent core loop: the streaming tool-use
// loop that ties the Token Counter, Compactor, Skill Registry, Tool
// Registry, and an llm.Provider together into a single stream_message
// operation.
//
// A turn streams text, resolves the final message, appends the assistant
// turn, and breaks on a non-tool_use stop reason; otherwise it runs the
// requested tool calls concurrently, reassembles their results in
// original order, and appends them as a new user turn before continuing.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/nstogner/agentcore/pkg/compactor"
	"github.com/nstogner/agentcore/pkg/content"
	"github.com/nstogner/agentcore/pkg/eventstream"
	"github.com/nstogner/agentcore/pkg/llm"
	"github.com/nstogner/agentcore/pkg/skills"
	"github.com/nstogner/agentcore/pkg/tokens"
	"github.com/nstogner/agentcore/pkg/toolregistry"
)

// DefaultMaxToolIterations bounds the tool-call loop so a misbehaving
// model can't loop forever.
const DefaultMaxToolIterations = 25

// iterationCapKind tags the error event emitted when the loop hits
// MaxToolIterations. It is a recoverable outcome, not a stream failure.
const iterationCapKind = "iteration_cap"

// Config configures an Agent.
type Config struct {
	Model             string
	SystemPrompt      string
	MaxToolIterations int
	ContextWindow     int
}

// WithDefaults fills zero-valued fields with package defaults.
func (c Config) WithDefaults() Config {
	if c.MaxToolIterations <= 0 {
		c.MaxToolIterations = DefaultMaxToolIterations
	}
	return c
}

// Agent orchestrates one conversation's tool-use loop against a Provider.
type Agent struct {
	provider  llm.Provider
	tools     *toolregistry.Registry
	skillsReg *skills.Registry
	counter   *tokens.Counter
	estimator *tokens.Estimator
	compactor *compactor.Compactor
	events    eventstream.Store

	cfg Config

	mu           sync.Mutex
	conversation content.Conversation
}

// New constructs an Agent. compactorInst may be nil to disable
// compaction. estimator may be nil; the loop does not consult it, since
// compaction decisions use the provider-reported usage in the Token
// Counter.
func New(provider llm.Provider, tools *toolregistry.Registry, skillsReg *skills.Registry, events eventstream.Store, compactorInst *compactor.Compactor, estimator *tokens.Estimator, cfg Config) *Agent {
	return &Agent{
		provider:  provider,
		tools:     tools,
		skillsReg: skillsReg,
		counter:   tokens.New(),
		estimator: estimator,
		compactor: compactorInst,
		events:    events,
		cfg:       cfg.WithDefaults(),
	}
}

// Conversation returns a snapshot of the current conversation.
func (a *Agent) Conversation() content.Conversation {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conversation.Clone()
}

// LoadConversation replaces the Agent's conversation, e.g. after resuming
// a persisted session.
func (a *Agent) LoadConversation(c content.Conversation) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.conversation = c
}

// StreamMessage appends the given user content blocks and runs the
// tool-use loop to completion, publishing every increment to streamID via
// the Event Store. It returns once the stream reaches a terminal state
// (complete or failed); callers wanting incremental output should read
// concurrently from the Event Store using streamID.
func (a *Agent) StreamMessage(ctx context.Context, streamID string, blocks []content.Block) error {
	a.mu.Lock()
	a.conversation.Append(content.Message{Role: content.RoleUser, Content: blocks})
	a.mu.Unlock()

	if err := a.loop(ctx, streamID); err != nil {
		if a.events != nil {
			_ = a.events.MarkFailed(streamID, err.Error())
		}
		return err
	}
	if a.events == nil {
		return nil
	}
	return a.events.MarkComplete(streamID)
}

// emit is a no-op when the Agent has no Event Store, per the optional
// event_store contract: a subagent created without one still runs its
// tool loop, it just publishes nothing for a caller to observe.
func (a *Agent) emit(streamID string, evType eventstream.EventType, payload any) {
	if a.events == nil {
		return
	}
	if _, err := a.events.Append(streamID, eventstream.Event{Type: evType, Payload: payload}); err != nil {
		slog.Warn("agent: failed to append event", "stream_id", streamID, "type", evType, "error", err)
	}
}

func (a *Agent) systemPrompt() string {
	parts := []string{a.cfg.SystemPrompt}
	if a.skillsReg != nil {
		if phase1 := a.skillsReg.Phase1Catalogue(); phase1 != "" {
			parts = append(parts, phase1)
		}
		if phase2 := a.skillsReg.Phase2Instructions(); phase2 != "" {
			parts = append(parts, phase2)
		}
	}
	return strings.Join(parts, "\n\n")
}

func (a *Agent) toolDefinitions() []llm.ToolDefinition {
	if a.tools == nil {
		return nil
	}
	defs := a.tools.ListDefinitions()
	out := make([]llm.ToolDefinition, 0, len(defs))
	for _, d := range defs {
		out = append(out, llm.ToolDefinition{Name: d.Name, Description: d.Description, Parameters: d.Parameters})
	}
	return out
}

// loop runs the tool-call loop until a non-tool_use stop reason, the
// iteration cap is hit, or an unrecoverable provider error occurs.
func (a *Agent) loop(ctx context.Context, streamID string) error {
	for iteration := 0; ; iteration++ {
		if iteration >= a.cfg.MaxToolIterations {
			note := fmt.Sprintf("Stopped after reaching the maximum of %d tool iterations.", a.cfg.MaxToolIterations)
			a.mu.Lock()
			a.conversation.Append(content.Message{Role: content.RoleAssistant, Content: []content.Block{content.Text(note)}})
			a.mu.Unlock()
			a.emit(streamID, eventstream.EventError, map[string]any{"kind": iterationCapKind, "reason": note})
			a.emit(streamID, eventstream.EventDone, nil)
			return nil
		}

		if a.compactor != nil {
			a.maybeCompact(ctx, streamID)
		}

		a.mu.Lock()
		snapshot := a.conversation.Clone()
		a.mu.Unlock()

		msg, stopReason, err := a.callModel(ctx, streamID, snapshot)
		if err != nil {
			return err
		}

		a.mu.Lock()
		a.conversation.Append(msg)
		a.mu.Unlock()

		if stopReason != "tool_use" {
			a.emit(streamID, eventstream.EventDone, nil)
			return nil
		}

		toolUses := msg.ToolUseBlocks()
		if len(toolUses) == 0 {
			// Provider said tool_use but supplied none; treat as done to
			// avoid looping forever on a malformed response.
			a.emit(streamID, eventstream.EventDone, nil)
			return nil
		}
		if hasText(msg) {
			a.emit(streamID, eventstream.EventPreambleEnd, nil)
		}

		results := a.runTools(ctx, streamID, toolUses)

		a.mu.Lock()
		a.conversation.Append(content.Message{Role: content.RoleUser, Content: results})
		a.mu.Unlock()
	}
}

func hasText(m content.Message) bool {
	for _, b := range m.Content {
		if b.Type == content.BlockText && b.Text != "" {
			return true
		}
	}
	return false
}

// callModel streams one completion, forwarding text deltas and usage as
// events, and applies the provider-error recovery rules from
// _handle_stream_error on failure.
func (a *Agent) callModel(ctx context.Context, streamID string, conversation content.Conversation) (content.Message, string, error) {
	stream, err := a.provider.Stream(ctx, a.cfg.Model, a.systemPrompt(), conversation, a.toolDefinitions())
	if err != nil {
		return a.recoverFromError(streamID, "", err)
	}
	defer stream.Close()

	var partial strings.Builder
	for {
		ev, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return a.recoverFromError(streamID, partial.String(), err)
		}
		switch ev.Type {
		case llm.StreamTextDelta:
			partial.WriteString(ev.TextDelta)
			a.emit(streamID, eventstream.EventTextDelta, ev.TextDelta)
		case llm.StreamToolUse:
			a.emit(streamID, eventstream.EventToolCallStart, map[string]any{
				"id":      ev.ToolUse.ToolUseID,
				"name":    ev.ToolUse.ToolName,
				"summary": toolSummary(ev.ToolUse.ToolName, ev.ToolUse.ToolInput),
			})
		case llm.StreamUsage:
			a.counter.Update(ev.InputTokens, ev.OutputTokens)
			a.emit(streamID, eventstream.EventUsage, map[string]any{"input": ev.InputTokens, "output": ev.OutputTokens})
		case llm.StreamRetry:
			a.emit(streamID, eventstream.EventRetry, map[string]any{
				"attempt":  ev.RetryAttempt,
				"delay_ms": ev.RetryDelay.Milliseconds(),
				"reason":   ev.RetryErr.Error(),
			})
		}
	}

	final, stopReason, err := stream.Final()
	if err != nil {
		return a.recoverFromError(streamID, partial.String(), err)
	}
	return final, stopReason, nil
}

// recoverFromError implements _handle_stream_error's per-kind rules: auth
// errors always pop the last (user) turn; every other llm.Error kind keeps
// any partial assistant text already streamed, or pops if there was none.
// An error that is not an llm.Error always pops. The error is then
// propagated.
func (a *Agent) recoverFromError(streamID, partialText string, err error) (content.Message, string, error) {
	var lerr *llm.Error
	kind := llm.KindInternal
	if errors.As(err, &lerr) {
		kind = lerr.Kind
	}

	a.mu.Lock()
	if lerr != nil && lerr.PreservesPartial() && partialText != "" {
		a.conversation.Append(content.Message{Role: content.RoleAssistant, Content: []content.Block{content.Text(partialText)}})
		slog.Warn("agent: provider stream failed, preserved partial text", "kind", kind, "chars", len(partialText))
	} else {
		a.conversation.PopLast()
		slog.Error("agent: provider stream failed, rewound last turn", "kind", kind, "error", err)
	}
	a.mu.Unlock()

	a.emit(streamID, eventstream.EventError, map[string]any{"kind": string(kind), "reason": err.Error()})
	return content.Message{}, "", err
}

// toolExecResult pairs a tool_use block with its outcome, indexed so
// concurrent execution can be reassembled in original block order.
type toolExecResult struct {
	block content.Block
	text  string
	isErr bool
}

// runTools executes every tool_use block concurrently and reassembles the
// tool_result blocks in the original order, regardless of completion order.
func (a *Agent) runTools(ctx context.Context, streamID string, toolUses []content.Block) []content.Block {
	results := make([]toolExecResult, len(toolUses))

	var wg sync.WaitGroup
	for i, tu := range toolUses {
		wg.Add(1)
		go func(i int, tu content.Block) {
			defer wg.Done()
			text, isErr := a.tools.Execute(ctx, tu.ToolName, tu.ToolInput)
			results[i] = toolExecResult{block: tu, text: text, isErr: isErr}
		}(i, tu)
	}
	wg.Wait()

	out := make([]content.Block, len(results))
	for i, r := range results {
		status := "completed"
		payload := map[string]any{"id": r.block.ToolUseID, "name": r.block.ToolName, "status": status}
		if r.isErr {
			payload["status"] = "failed"
			payload["error"] = r.text
		}
		a.emit(streamID, eventstream.EventToolCallEnd, payload)
		out[i] = content.ToolResult(r.block.ToolUseID, r.text, r.isErr)
	}
	return out
}

func (a *Agent) maybeCompact(ctx context.Context, streamID string) {
	a.mu.Lock()
	snapshot := a.conversation.Clone()
	a.mu.Unlock()

	usageFraction := a.counter.UsageFraction(a.cfg.ContextWindow)
	if !a.compactor.ShouldCompact(snapshot, usageFraction) {
		return
	}

	a.emit(streamID, eventstream.EventCompactStart, map[string]any{"messages": snapshot.Len()})

	truncated := a.compactor.Phase1Truncate(snapshot)
	summarized, err := a.compactor.Phase2Summarize(ctx, a.cfg.Model, truncated)
	if err != nil {
		slog.Warn("agent: phase 2 compaction failed, keeping phase 1 result", "error", err)
		summarized = truncated
	}

	a.mu.Lock()
	a.conversation = summarized
	a.mu.Unlock()

	a.emit(streamID, eventstream.EventCompactEnd, map[string]any{"messages": summarized.Len()})
}

// NewStreamID generates a fresh stream identifier for StreamMessage
// callers that don't have one of their own (e.g. a CLI issuing a single
// request per process invocation).
func NewStreamID() string {
	return uuid.New().String()
}
