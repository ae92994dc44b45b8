// Package gemini adapts Google's Gen AI SDK to the llm.Provider contract:
// message conversion and function-call accumulation, with tool
// declarations sourced dynamically from the Tool Registry rather than a
// fixed list. ThoughtSignature values are not carried between turns.
package gemini

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/google/uuid"
	"github.com/nstogner/agentcore/pkg/content"
	"github.com/nstogner/agentcore/pkg/llm"
)

// Provider implements llm.Provider using the Google Gen AI SDK.
type Provider struct {
	client *genai.Client
}

var _ llm.Provider = (*Provider)(nil)

// New creates a Gemini provider backed by apiKey.
func New(ctx context.Context, apiKey string) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("gemini: creating client: %w", err)
	}
	return &Provider{client: client}, nil
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return "gemini" }

// ListModels implements llm.Provider.
func (p *Provider) ListModels(ctx context.Context) ([]llm.Model, error) {
	var models []llm.Model
	for m, err := range p.client.Models.All(ctx) {
		if err != nil {
			return nil, translateErr(err)
		}
		supportsGenerate := false
		if !strings.Contains(strings.ToLower(m.Name), "gemma") {
			for _, action := range m.SupportedActions {
				if action == "generateContent" {
					supportsGenerate = true
					break
				}
			}
		}
		if !supportsGenerate {
			continue
		}
		models = append(models, llm.Model{Name: m.Name, ContextWindow: int(m.InputTokenLimit)})
	}
	return models, nil
}

// Stream implements llm.Provider.
func (p *Provider) Stream(ctx context.Context, modelName, systemPrompt string, conversation content.Conversation, tools []llm.ToolDefinition) (llm.Stream, error) {
	slog.Debug("gemini stream", "model", modelName, "messages", len(conversation.Messages), "tools", len(tools))

	contents, systemInstruction := toGenaiContents(systemPrompt, conversation)
	config := &genai.GenerateContentConfig{
		Tools:             toGenaiTools(tools),
		SystemInstruction: systemInstruction,
	}

	streamCtx, cancel := context.WithCancel(ctx)
	s := &stream{
		events: make(chan llm.StreamEvent, 8),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go s.connectAndConsume(streamCtx, p.client, modelName, contents, config)
	return s, nil
}

// Create implements llm.Provider as a non-streaming convenience wrapper
// around Stream, for callers that only need the final message (e.g. the
// compactor's Phase 2 summarization).
func (p *Provider) Create(ctx context.Context, modelName, systemPrompt string, conversation content.Conversation, tools []llm.ToolDefinition) (content.Message, string, error) {
	s, err := p.Stream(ctx, modelName, systemPrompt, conversation, tools)
	if err != nil {
		return content.Message{}, "", err
	}
	defer s.Close()
	for {
		if _, err := s.Recv(); err == io.EOF {
			break
		} else if err != nil {
			return content.Message{}, "", err
		}
	}
	return s.Final()
}

// CountTokens implements llm.Provider using the SDK's own count endpoint.
// This is a network round trip to the Gemini API, not an offline estimate.
func (p *Provider) CountTokens(ctx context.Context, modelName string, conversation content.Conversation) (int, error) {
	contents, _ := toGenaiContents("", conversation)
	resp, err := p.client.Models.CountTokens(ctx, modelName, contents, nil)
	if err != nil {
		return 0, translateErr(err)
	}
	return int(resp.TotalTokens), nil
}

func toGenaiTools(defs []llm.ToolDefinition) []*genai.Tool {
	if len(defs) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, d := range defs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  toGenaiSchema(d.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// toGenaiContents converts a provider-neutral conversation into genai's
// wire shape, keyed by tool_use_id -> tool name so tool_result blocks (which
// only carry the id) can be re-attached to their function name.
func toGenaiContents(systemPrompt string, conversation content.Conversation) ([]*genai.Content, *genai.Content) {
	var systemInstruction *genai.Content
	if systemPrompt != "" {
		systemInstruction = &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}}
	}

	toolNameByID := make(map[string]string)
	var contents []*genai.Content
	for _, msg := range conversation.Messages {
		var parts []*genai.Part
		for _, b := range msg.Content {
			switch b.Type {
			case content.BlockText:
				parts = append(parts, &genai.Part{Text: b.Text})
			case content.BlockToolUse:
				toolNameByID[b.ToolUseID] = b.ToolName
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					Name: b.ToolName,
					Args: b.ToolInput,
					ID:   b.ToolUseID,
				}})
			case content.BlockToolResult:
				name := toolNameByID[b.ToolResultForID]
				parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					Name:     name,
					ID:       b.ToolResultForID,
					Response: map[string]any{"result": b.ToolResultText, "is_error": b.IsError},
				}})
			case content.BlockImage:
				parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: b.MediaType, Data: b.Data}})
			case content.BlockDocument:
				parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: b.MediaType, Data: b.Data}})
			}
		}
		if len(parts) == 0 {
			continue
		}
		role := "user"
		if msg.Role == content.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return contents, systemInstruction
}

// stream implements llm.Stream over a genai streaming iterator, fanning
// text deltas and completed tool calls out through a channel while
// accumulating the full message for Final.
type stream struct {
	events chan llm.StreamEvent
	done   chan struct{}
	cancel context.CancelFunc

	final      content.Message
	stopReason string
	err        error

	everReceived bool
}

// connectAndConsume opens the stream and retries the connection with
// exponential backoff on a retryable error, as long as nothing has been
// delivered to the caller yet. A retryable error after the first chunk
// arrives is not retried here (that would double up already-forwarded
// output); the caller's own recovery rules take over instead.
func (s *stream) connectAndConsume(ctx context.Context, client *genai.Client, modelName string, contents []*genai.Content, config *genai.GenerateContentConfig) {
	defer close(s.events)
	defer close(s.done)

	cfg := llm.DefaultRetryConfig()
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		s.events <- llm.StreamEvent{Type: llm.StreamRetry, RetryAttempt: attempt, RetryDelay: delay, RetryErr: err}
	}

	err := llm.WithRetry(ctx, cfg, func(ctx context.Context) error {
		iter := client.Models.GenerateContentStream(ctx, modelName, contents, config)
		return s.consumeAttempt(iter)
	})
	if err != nil && s.err == nil {
		s.err = err
	}
}

// consumeAttempt ranges over one streaming attempt. It returns a
// retryable error only if no chunk has ever been received across any
// attempt; once something has been delivered, a later failure is
// recorded on s.err directly and reported as success to the retry loop
// so it doesn't re-issue the request.
func (s *stream) consumeAttempt(iter func(yield func(*genai.GenerateContentResponse, error) bool)) error {
	var fullText strings.Builder
	var toolUses []content.Block
	var inputTokens, outputTokens int

	for resp, err := range iter {
		if err != nil {
			translated := translateErr(err)
			if s.everReceived {
				s.err = translated
				return nil
			}
			return translated
		}
		if resp == nil {
			continue
		}
		s.everReceived = true
		if resp.UsageMetadata != nil {
			inputTokens = int(resp.UsageMetadata.PromptTokenCount)
			outputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		}
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if part.Text != "" {
					fullText.WriteString(part.Text)
					s.events <- llm.StreamEvent{Type: llm.StreamTextDelta, TextDelta: part.Text}
				}
				if part.FunctionCall != nil {
					fc := part.FunctionCall
					id := fc.ID
					if id == "" {
						id = "call-" + uuid.New().String()
					}
					block := content.ToolUse(id, fc.Name, fc.Args)
					toolUses = append(toolUses, block)
					s.events <- llm.StreamEvent{Type: llm.StreamToolUse, ToolUse: &block}
				}
			}
		}
	}

	s.events <- llm.StreamEvent{Type: llm.StreamUsage, InputTokens: inputTokens, OutputTokens: outputTokens}

	var blocks []content.Block
	if fullText.Len() > 0 {
		blocks = append(blocks, content.Text(fullText.String()))
	}
	blocks = append(blocks, toolUses...)

	s.stopReason = "end_turn"
	if len(toolUses) > 0 {
		s.stopReason = "tool_use"
	}
	s.final = content.Message{Role: content.RoleAssistant, Content: blocks}
	return nil
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

func (s *stream) Close() error {
	s.cancel()
	return nil
}

// translateErr maps genai SDK errors into the normalized llm.Error
// taxonomy. The genai client surfaces most failures as *genai.APIError
// carrying an HTTP status code.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	if ok := asAPIError(err, &apiErr); ok {
		switch apiErr.Code {
		case 401, 403:
			return llm.NewAuthError(apiErr.Message, err)
		case 429:
			return llm.NewRateLimitError(apiErr.Message, err)
		case 408, 504:
			return llm.NewTimeoutError(apiErr.Message, err)
		case 400, 404, 422:
			return llm.NewBadRequestError(apiErr.Message, err)
		default:
			if apiErr.Code >= 500 {
				return llm.NewInternalError(apiErr.Message, err)
			}
		}
	}
	return llm.NewConnectionError(err.Error(), err)
}

func asAPIError(err error, target *genai.APIError) bool {
	if ae, ok := err.(genai.APIError); ok {
		*target = ae
		return true
	}
	return false
}
