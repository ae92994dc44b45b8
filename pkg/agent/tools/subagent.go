// Package tools provides the create_subagent and memory tool handlers,
// registered against a toolregistry.Registry the way any other built-in
// tool is.
package tools

import (
	"context"
	"fmt"

	"github.com/nstogner/agentcore/pkg/agent"
	"github.com/nstogner/agentcore/pkg/content"
	"github.com/nstogner/agentcore/pkg/llm"
	"github.com/nstogner/agentcore/pkg/skills"
	"github.com/nstogner/agentcore/pkg/toolregistry"
)

// SubagentSystemPrompt is the system prompt given to every child agent.
const SubagentSystemPrompt = `You are a subagent responsible for completing an assigned task.

Rules:
- Focus on completing the task you were given.
- Once finished, provide a concise summary of the result.
- Use the tools available to you to complete the task.`

// SubagentParams describes create_subagent's single argument, reflected
// into a JSON Schema via toolregistry.ParamsSchema.
type SubagentParams struct {
	Task string `json:"task" jsonschema:"required,description=The task to delegate to the subagent."`
}

// RegisterSubagent registers create_subagent against parent, wiring a
// fresh child Agent per invocation. The child shares the parent's
// Provider and, via registry.Clone, the parent's tool handler closures
// (and therefore its Sandbox) — but never the parent's own
// create_subagent tool, preventing unbounded recursive spawning. The
// child is also given no Event Store: its progress is not meant to be
// observed independently, only its final text result matters to the
// caller.
func RegisterSubagent(parent *toolregistry.Registry, provider llm.Provider, parentSkills *skills.Registry, model string, maxToolIterations int) error {
	handler := func(ctx context.Context, args map[string]any) (string, error) {
		task, _ := args["task"].(string)
		if task == "" {
			return "", fmt.Errorf("create_subagent: task is required")
		}

		childTools := parent.Clone("create_subagent")

		var childSkills *skills.Registry
		if parentSkills != nil {
			childSkills = parentSkills.Clone()
		}

		child := agent.New(provider, childTools, childSkills, nil, nil, nil, agent.Config{
			Model:             model,
			SystemPrompt:      SubagentSystemPrompt,
			MaxToolIterations: maxToolIterations,
		})

		streamID := agent.NewStreamID()
		if err := child.StreamMessage(ctx, streamID, []content.Block{content.Text(task)}); err != nil {
			return "", fmt.Errorf("subagent failed: %w", err)
		}

		conv := child.Conversation()
		last, ok := conv.Last()
		if !ok {
			return "", fmt.Errorf("subagent produced no response")
		}
		return last.Text(), nil
	}

	return parent.Register(
		"create_subagent",
		"Delegate an independent task to a subagent and return its final text result.",
		toolregistry.ParamsSchema(SubagentParams{}),
		handler,
		"",
	)
}
