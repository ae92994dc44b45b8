// Package compactor implements the two-phase context-window compactor:
// local truncation of old tool results, followed by LLM-driven
// summarization of a safe prefix that never severs a tool_use/tool_result
// pair.
package compactor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nstogner/agentcore/pkg/content"
	"github.com/nstogner/agentcore/pkg/llm"
)

// DefaultThreshold is the fraction of the context window that triggers
// compaction.
const DefaultThreshold = 0.80

// DefaultProtectedTurns is how many of the most recent user/assistant turn
// pairs Phase 1 never truncates.
const DefaultProtectedTurns = 3

// DefaultMinMessages is the shortest conversation ShouldCompact will report
// as worth compacting; Phase1Truncate and Phase2Summarize themselves do not
// check it.
const DefaultMinMessages = 10

// TruncationSentinel replaces an old tool_result's text in Phase 1.
const TruncationSentinel = "[compacted tool result]"

// Config parameterizes a Compactor.
type Config struct {
	Threshold      float64
	ProtectedTurns int
	MinMessages    int
	// CompactionModel is used for the Phase 2 summarization call. If
	// empty, the model passed to Compact is reused.
	CompactionModel string
}

// WithDefaults fills any zero fields with the package defaults.
func (c Config) WithDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.ProtectedTurns <= 0 {
		c.ProtectedTurns = DefaultProtectedTurns
	}
	if c.MinMessages <= 0 {
		c.MinMessages = DefaultMinMessages
	}
	return c
}

// Compactor holds the provider used for Phase 2 summarization.
type Compactor struct {
	provider llm.Provider
	cfg      Config
}

// New constructs a Compactor.
func New(provider llm.Provider, cfg Config) *Compactor {
	return &Compactor{provider: provider, cfg: cfg.WithDefaults()}
}

// ShouldCompact reports whether usageFraction (from tokens.Counter.
// UsageFraction, or an offline estimate) has crossed the configured
// threshold, and whether the conversation is even long enough to bother.
func (c *Compactor) ShouldCompact(conversation content.Conversation, usageFraction float64) bool {
	if conversation.Len() < c.cfg.MinMessages {
		return false
	}
	return usageFraction >= c.cfg.Threshold
}

// Phase1Truncate replaces tool_result text outside the last ProtectedTurns
// user/assistant turn pairs with TruncationSentinel. It never touches
// ToolUseID/ToolName/ToolInput/IsError, and never removes or reorders
// messages, so invariant 1 (pairing) and invariant 2 (strict alternation)
// are trivially preserved — this phase can only ever shrink text.
func (c *Compactor) Phase1Truncate(conversation content.Conversation) content.Conversation {
	out := conversation.Clone()

	protectedFrom := len(out.Messages) - 2*c.cfg.ProtectedTurns
	if protectedFrom < 0 {
		protectedFrom = 0
	}

	for i := 0; i < protectedFrom; i++ {
		msg := &out.Messages[i]
		if msg.Role != content.RoleUser {
			continue
		}
		for j := range msg.Content {
			b := &msg.Content[j]
			if b.Type == content.BlockToolResult && b.ToolResultText != TruncationSentinel {
				b.ToolResultText = TruncationSentinel
			}
		}
	}
	return out
}

// Phase2Summarize finds a safe split point in the first half of the
// conversation, asks the model to summarize everything before it, and
// replaces that prefix with a synthetic user/assistant turn pair carrying
// the summary — preserving strict user/assistant alternation, since the
// kept tail always begins on a user turn. The kept suffix — including the
// last ProtectedTurns turns — is returned byte-identical to the input
// (invariant 3).
func (c *Compactor) Phase2Summarize(ctx context.Context, modelName string, conversation content.Conversation) (content.Conversation, error) {
	splitIdx := safeSplitPoint(conversation, c.cfg.ProtectedTurns)
	if splitIdx <= 1 {
		// Not enough safely-summarizable history; leave as-is.
		return conversation, nil
	}

	head := conversation.Messages[:splitIdx]
	tail := conversation.Messages[splitIdx:]

	summary, err := c.summarize(ctx, modelName, head)
	if err != nil {
		return content.Conversation{}, fmt.Errorf("compactor: phase 2 summarization: %w", err)
	}

	out := content.Conversation{
		Messages: make([]content.Message, 0, 2+len(tail)),
	}
	out.Messages = append(out.Messages,
		content.Message{
			Role:    content.RoleUser,
			Content: []content.Block{content.Text("Summarize the conversation so far.")},
		},
		content.Message{
			Role:    content.RoleAssistant,
			Content: []content.Block{content.Text(summary)},
		},
	)
	out.Messages = append(out.Messages, tail...)

	if err := content.ValidatePairing(out); err != nil {
		return content.Conversation{}, fmt.Errorf("compactor: phase 2 produced an invalid conversation: %w", err)
	}
	return out, nil
}

// safeSplitPoint returns the largest even index <= len/2 (rounded to a
// user-turn boundary) that leaves at least the last protectedTurns
// user/assistant turn pairs after it, such that the message at that index
// is not itself a tool_result reply to a tool_use in the message being cut
// away — mirroring compaction.go's "never split in the middle of a
// tool_call/tool_result pair" search, adapted from a flat entry list to
// paired messages.
func safeSplitPoint(conversation content.Conversation, protectedTurns int) int {
	n := len(conversation.Messages)
	idx := n / 2
	if limit := n - 2*protectedTurns; idx > limit {
		idx = limit
	}
	if idx%2 != 0 {
		idx--
	}
	for idx > 0 {
		msg := conversation.Messages[idx]
		if len(msg.ToolResultIDs()) > 0 {
			idx -= 2
			continue
		}
		break
	}
	if idx < 0 {
		return 0
	}
	return idx
}

func (c *Compactor) summarize(ctx context.Context, modelName string, head []content.Message) (string, error) {
	model := c.cfg.CompactionModel
	if model == "" {
		model = modelName
	}

	var b strings.Builder
	b.WriteString("You are summarizing a conversation history for context compaction. " +
		"Create a dense, comprehensive summary of the following conversation that preserves:\n" +
		"- Key decisions and outcomes\n" +
		"- Important code/files that were created or modified\n" +
		"- Current state of any ongoing tasks\n" +
		"- Any instructions or preferences the user expressed\n\n" +
		"Be thorough but concise. This summary will replace the original messages.\n\n" +
		"CONVERSATION TO SUMMARIZE:\n")
	for _, m := range head {
		for _, blk := range m.Content {
			switch blk.Type {
			case content.BlockText:
				fmt.Fprintf(&b, "[%s] %s\n", m.Role, blk.Text)
			case content.BlockToolUse:
				fmt.Fprintf(&b, "[%s] called tool %s\n", m.Role, blk.ToolName)
			case content.BlockToolResult:
				fmt.Fprintf(&b, "[%s] tool result: %s\n", m.Role, blk.ToolResultText)
			}
		}
	}

	prompt := content.Conversation{Messages: []content.Message{
		{Role: content.RoleUser, Content: []content.Block{content.Text(b.String())}},
	}}

	slog.Info("compactor: running phase 2 summarization", "model", model, "head_messages", len(head))
	msg, _, err := c.provider.Create(ctx, model, "You are a conversation summarizer.", prompt, nil)
	if err != nil {
		return "", err
	}
	summary := msg.Text()
	if summary == "" {
		return "", fmt.Errorf("model returned an empty compaction summary")
	}
	return summary, nil
}
