// Package openai adapts sashabaranov/go-openai to the llm.Provider
// contract. Grounded on go-go-golems-geppetto's engine_openai.go for the
// general shape of streaming + tool-call-delta accumulation + usage/
// stop-reason extraction, reworked against pkg/content instead of
// geppetto's turns/events abstractions.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/nstogner/agentcore/pkg/content"
	"github.com/nstogner/agentcore/pkg/llm"
	"github.com/nstogner/agentcore/pkg/tokens"
)

// Provider implements llm.Provider using the OpenAI chat completions API.
type Provider struct {
	client *goopenai.Client
}

var _ llm.Provider = (*Provider)(nil)

// New creates an OpenAI provider backed by apiKey.
func New(apiKey string) *Provider {
	return &Provider{client: goopenai.NewClient(apiKey)}
}

// NewWithBaseURL supports OpenAI-compatible endpoints (Azure, local
// proxies), matching the flexibility geppetto's settings.StepSettings
// exposes via ApiType/BaseURL.
func NewWithBaseURL(apiKey, baseURL string) *Provider {
	cfg := goopenai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &Provider{client: goopenai.NewClientWithConfig(cfg)}
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return "openai" }

// ListModels implements llm.Provider.
func (p *Provider) ListModels(ctx context.Context) ([]llm.Model, error) {
	list, err := p.client.ListModels(ctx)
	if err != nil {
		return nil, translateErr(err)
	}
	out := make([]llm.Model, 0, len(list.Models))
	for _, m := range list.Models {
		out = append(out, llm.Model{Name: m.ID})
	}
	return out, nil
}

// Stream implements llm.Provider.
func (p *Provider) Stream(ctx context.Context, modelName, systemPrompt string, conversation content.Conversation, tools []llm.ToolDefinition) (llm.Stream, error) {
	slog.Debug("openai stream", "model", modelName, "messages", conversation.Len(), "tools", len(tools))

	req := goopenai.ChatCompletionRequest{
		Model:    modelName,
		Messages: toOpenAIMessages(systemPrompt, conversation),
		Tools:    toOpenAITools(tools),
		Stream:   true,
		StreamOptions: &goopenai.StreamOptions{
			IncludeUsage: true,
		},
	}

	s := &stream{events: make(chan llm.StreamEvent, 8), done: make(chan struct{})}
	go s.connectAndConsume(ctx, p.client, req)
	return s, nil
}

// Create implements llm.Provider without streaming, for callers that only
// need the final message.
func (p *Provider) Create(ctx context.Context, modelName, systemPrompt string, conversation content.Conversation, tools []llm.ToolDefinition) (content.Message, string, error) {
	req := goopenai.ChatCompletionRequest{
		Model:    modelName,
		Messages: toOpenAIMessages(systemPrompt, conversation),
		Tools:    toOpenAITools(tools),
	}
	var resp goopenai.ChatCompletionResponse
	err := llm.WithRetry(ctx, llm.DefaultRetryConfig(), func(ctx context.Context) error {
		r, err := p.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return translateErr(err)
		}
		resp = r
		return nil
	})
	if err != nil {
		return content.Message{}, "", err
	}
	if len(resp.Choices) == 0 {
		return content.Message{}, "", llm.NewInternalError("empty choices in response", nil)
	}
	choice := resp.Choices[0]
	msg := fromOpenAIMessage(choice.Message)
	reason := stopReasonFrom(string(choice.FinishReason))
	return msg, reason, nil
}

// CountTokens implements llm.Provider. The OpenAI API has no offline
// counting endpoint, and token counting must never require a network
// round trip, so this delegates to the shared tiktoken-backed estimator
// instead.
func (p *Provider) CountTokens(ctx context.Context, modelName string, conversation content.Conversation) (int, error) {
	est := tokens.NewEstimator()
	total := 0
	for _, m := range conversation.Messages {
		for _, b := range m.Content {
			total += est.Count(b.Text) + est.Count(b.ToolResultText)
		}
	}
	return total, nil
}

func toOpenAITools(defs []llm.ToolDefinition) []goopenai.Tool {
	if len(defs) == 0 {
		return nil
	}
	out := make([]goopenai.Tool, 0, len(defs))
	for _, d := range defs {
		out = append(out, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}
	return out
}

func toOpenAIMessages(systemPrompt string, conversation content.Conversation) []goopenai.ChatCompletionMessage {
	var out []goopenai.ChatCompletionMessage
	if systemPrompt != "" {
		out = append(out, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	for _, msg := range conversation.Messages {
		role := goopenai.ChatMessageRoleUser
		if msg.Role == content.RoleAssistant {
			role = goopenai.ChatMessageRoleAssistant
		}

		var text string
		var toolCalls []goopenai.ToolCall
		for _, b := range msg.Content {
			switch b.Type {
			case content.BlockText:
				text += b.Text
			case content.BlockToolUse:
				args, _ := json.Marshal(b.ToolInput)
				toolCalls = append(toolCalls, goopenai.ToolCall{
					ID:   b.ToolUseID,
					Type: goopenai.ToolTypeFunction,
					Function: goopenai.FunctionCall{
						Name:      b.ToolName,
						Arguments: string(args),
					},
				})
			case content.BlockToolResult:
				// Tool results become their own "tool" role message,
				// emitted separately below since OpenAI requires one
				// message per tool_call_id rather than a batched block.
			}
		}

		if len(toolCalls) > 0 {
			out = append(out, goopenai.ChatCompletionMessage{Role: role, Content: text, ToolCalls: toolCalls})
			continue
		}

		toolResults := false
		for _, b := range msg.Content {
			if b.Type == content.BlockToolResult {
				toolResults = true
				out = append(out, goopenai.ChatCompletionMessage{
					Role:       goopenai.ChatMessageRoleTool,
					Content:    b.ToolResultText,
					ToolCallID: b.ToolResultForID,
				})
			}
		}
		if toolResults {
			continue
		}

		if text != "" {
			out = append(out, goopenai.ChatCompletionMessage{Role: role, Content: text})
		}
	}
	return out
}

func fromOpenAIMessage(m goopenai.ChatCompletionMessage) content.Message {
	var blocks []content.Block
	if m.Content != "" {
		blocks = append(blocks, content.Text(m.Content))
	}
	for _, tc := range m.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		blocks = append(blocks, content.ToolUse(tc.ID, tc.Function.Name, args))
	}
	return content.Message{Role: content.RoleAssistant, Content: blocks}
}

func stopReasonFrom(finish string) string {
	switch finish {
	case "tool_calls":
		return "tool_use"
	case "length":
		return "max_tokens"
	default:
		return "end_turn"
	}
}

// stream implements llm.Stream over an OpenAI SSE stream, merging
// tool-call deltas by index the way toolCallMerger does in
// engine_openai.go.
type stream struct {
	events chan llm.StreamEvent
	done   chan struct{}

	final      content.Message
	stopReason string
	err        error
}

// connectAndConsume retries the initial CreateChatCompletionStream call
// with exponential backoff: unlike gemini's lazily-evaluated iterator,
// this connect call is a single synchronous round trip that either fully
// succeeds or fails before any output exists, so a failure here is
// always safe to retry from scratch.
func (s *stream) connectAndConsume(ctx context.Context, client *goopenai.Client, req goopenai.ChatCompletionRequest) {
	var upstream *goopenai.ChatCompletionStream
	cfg := llm.DefaultRetryConfig()
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		s.events <- llm.StreamEvent{Type: llm.StreamRetry, RetryAttempt: attempt, RetryDelay: delay, RetryErr: err}
	}

	err := llm.WithRetry(ctx, cfg, func(ctx context.Context) error {
		up, err := client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			return translateErr(err)
		}
		upstream = up
		return nil
	})
	if err != nil {
		s.err = err
		close(s.events)
		close(s.done)
		return
	}

	s.consume(upstream)
}

func (s *stream) consume(upstream *goopenai.ChatCompletionStream) {
	defer close(s.events)
	defer close(s.done)
	defer upstream.Close()

	var text string
	merger := newToolCallMerger()
	var inputTokens, outputTokens int
	finish := ""

	for {
		resp, err := upstream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.err = translateErr(err)
			return
		}
		if resp.Usage != nil {
			inputTokens = resp.Usage.PromptTokens
			outputTokens = resp.Usage.CompletionTokens
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		if choice.FinishReason != "" {
			finish = string(choice.FinishReason)
		}
		if choice.Delta.Content != "" {
			text += choice.Delta.Content
			s.events <- llm.StreamEvent{Type: llm.StreamTextDelta, TextDelta: choice.Delta.Content}
		}
		if len(choice.Delta.ToolCalls) > 0 {
			merger.add(choice.Delta.ToolCalls)
		}
	}

	s.events <- llm.StreamEvent{Type: llm.StreamUsage, InputTokens: inputTokens, OutputTokens: outputTokens}

	var blocks []content.Block
	if text != "" {
		blocks = append(blocks, content.Text(text))
	}
	for _, tc := range merger.calls() {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		block := content.ToolUse(tc.ID, tc.Function.Name, args)
		blocks = append(blocks, block)
		s.events <- llm.StreamEvent{Type: llm.StreamToolUse, ToolUse: &block}
	}

	s.stopReason = stopReasonFrom(finish)
	if s.stopReason == "end_turn" && len(merger.calls()) > 0 {
		s.stopReason = "tool_use"
	}
	s.final = content.Message{Role: content.RoleAssistant, Content: blocks}
}

func (s *stream) Recv() (llm.StreamEvent, error) {
	ev, ok := <-s.events
	if !ok {
		return llm.StreamEvent{}, io.EOF
	}
	return ev, nil
}

func (s *stream) Final() (content.Message, string, error) {
	<-s.done
	if s.err != nil {
		return content.Message{}, "", s.err
	}
	return s.final, s.stopReason, nil
}

func (s *stream) Close() error { return nil }

// translateErr maps go-openai's error shapes into the normalized
// llm.Error taxonomy.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 401, 403:
			return llm.NewAuthError(apiErr.Message, err)
		case 429:
			return llm.NewRateLimitError(apiErr.Message, err)
		case 408, 504:
			return llm.NewTimeoutError(apiErr.Message, err)
		case 400, 404, 422:
			return llm.NewBadRequestError(apiErr.Message, err)
		default:
			if apiErr.HTTPStatusCode >= 500 {
				return llm.NewInternalError(apiErr.Message, err)
			}
		}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return llm.NewConnectionError(reqErr.Error(), err)
	}
	return llm.NewConnectionError(err.Error(), err)
}
