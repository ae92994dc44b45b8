// Command agentctl is a demo CLI that wires an Agent end-to-end against
// stdin/stdout: a terminal chat loop, not a service.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nstogner/agentcore/pkg/agent"
	"github.com/nstogner/agentcore/pkg/agent/tools"
	"github.com/nstogner/agentcore/pkg/compactor"
	"github.com/nstogner/agentcore/pkg/content"
	"github.com/nstogner/agentcore/pkg/eventstream"
	"github.com/nstogner/agentcore/pkg/llm"
	"github.com/nstogner/agentcore/pkg/llm/gemini"
	"github.com/nstogner/agentcore/pkg/llm/openai"
	"github.com/nstogner/agentcore/pkg/sandbox"
	"github.com/nstogner/agentcore/pkg/skills"
	"github.com/nstogner/agentcore/pkg/tokens"
	"github.com/nstogner/agentcore/pkg/toolregistry"
)

const eventTTL = 10 * time.Minute

func main() {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))

	ctx := context.Background()

	provider, model, err := newProvider(ctx)
	if err != nil {
		slog.Error("failed to initialize provider", "error", err)
		os.Exit(1)
	}

	wd, _ := os.Getwd()
	sb, err := sandbox.NewLocal(wd + "/sandbox")
	if err != nil {
		slog.Error("failed to initialize sandbox", "error", err)
		os.Exit(1)
	}

	registry := toolregistry.New(toolregistry.WithLockProvider(toolregistry.NewKeyedLock()))
	if err := tools.RegisterMemory(registry, sb); err != nil {
		slog.Error("failed to register memory tool", "error", err)
		os.Exit(1)
	}

	events := eventstream.NewMemoryStore(eventTTL)

	if err := tools.RegisterSubagent(registry, provider, nil, model, agent.DefaultMaxToolIterations); err != nil {
		slog.Error("failed to register create_subagent tool", "error", err)
		os.Exit(1)
	}

	skillsReg := skills.New()
	estimator := tokens.NewEstimator()
	compactorInst := compactor.New(provider, compactor.Config{}.WithDefaults())

	a := agent.New(provider, registry, skillsReg, events, compactorInst, estimator, agent.Config{
		Model:         model,
		SystemPrompt:  "You are a helpful autonomous coding assistant with access to a sandbox and persistent memory.",
		ContextWindow: 200_000,
	})

	fmt.Println("agentctl ready. Type a message and press enter (Ctrl-D to quit).")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		streamID := agent.NewStreamID()
		done := make(chan struct{})
		go printEvents(events, streamID, done)

		if err := a.StreamMessage(ctx, streamID, []content.Block{content.Text(line)}); err != nil {
			slog.Error("stream_message failed", "error", err)
		}
		<-done
	}
}

// printEvents polls the event store and prints text deltas to stdout as
// they arrive, closing done once the stream reaches a terminal state.
func printEvents(events eventstream.Store, streamID string, done chan<- struct{}) {
	defer close(done)
	var afterID int64
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		evs, err := events.Read(streamID, afterID, 0)
		if err != nil {
			// The stream does not exist until the Agent emits its first
			// event; keep polling.
			continue
		}
		for _, ev := range evs {
			afterID = ev.ID
			switch ev.Type {
			case eventstream.EventTextDelta:
				if text, ok := ev.Payload.(string); ok {
					fmt.Print(text)
				}
			case eventstream.EventDone:
				fmt.Println()
				return
			case eventstream.EventError:
				fmt.Println()
				return
			}
		}
	}
}

// newProvider selects Gemini or OpenAI based on which API key is set in
// the environment, returning the provider along with the model id to use.
func newProvider(ctx context.Context) (llm.Provider, string, error) {
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		p, err := gemini.New(ctx, apiKey)
		if err != nil {
			return nil, "", fmt.Errorf("initializing gemini provider: %w", err)
		}
		model := os.Getenv("AGENTCTL_MODEL")
		if model == "" {
			model = "gemini-2.0-flash"
		}
		return p, model, nil
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		model := os.Getenv("AGENTCTL_MODEL")
		if model == "" {
			model = "gpt-4o"
		}
		return openai.New(apiKey), model, nil
	}
	return nil, "", fmt.Errorf("set GEMINI_API_KEY or OPENAI_API_KEY")
}
