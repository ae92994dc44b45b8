package openai

import (
	"sort"

	goopenai "github.com/sashabaranov/go-openai"
)

// toolCallMerger accumulates streamed tool-call deltas by index, since the
// OpenAI streaming API sends a tool call's id/name once and its arguments
// in fragments across multiple chunks. Grounded on the shape of
// go-go-golems-geppetto's ToolCallMerger (engine_openai.go), reimplemented
// directly against go-openai's delta type.
type toolCallMerger struct {
	byIndex map[int]*goopenai.ToolCall
}

func newToolCallMerger() *toolCallMerger {
	return &toolCallMerger{byIndex: make(map[int]*goopenai.ToolCall)}
}

func (m *toolCallMerger) add(deltas []goopenai.ToolCall) {
	for _, d := range deltas {
		idx := 0
		if d.Index != nil {
			idx = *d.Index
		}
		existing, ok := m.byIndex[idx]
		if !ok {
			cp := d
			m.byIndex[idx] = &cp
			continue
		}
		if d.ID != "" {
			existing.ID = d.ID
		}
		if d.Type != "" {
			existing.Type = d.Type
		}
		if d.Function.Name != "" {
			existing.Function.Name = d.Function.Name
		}
		existing.Function.Arguments += d.Function.Arguments
	}
}

func (m *toolCallMerger) calls() []goopenai.ToolCall {
	indices := make([]int, 0, len(m.byIndex))
	for idx := range m.byIndex {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	out := make([]goopenai.ToolCall, 0, len(indices))
	for _, idx := range indices {
		out = append(out, *m.byIndex[idx])
	}
	return out
}
