// Package anthropic implements provider.Provider (C1) against Anthropic's
// Messages streaming API.
package anthropic

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/sven-run/sven/internal/provider"
	"github.com/sven-run/sven/pkg/models"
)

// contextWindows holds the known prompt-token ceiling per model family;
// unlisted models fall back to provider.DefaultContextWindow.
var contextWindows = map[string]int{
	"claude-sonnet-4-20250514":   200_000,
	"claude-opus-4-20250514":     200_000,
	"claude-3-5-sonnet-20241022": 200_000,
	"claude-3-haiku-20240307":    200_000,
}

// Config configures a Provider.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Provider drives Anthropic's Messages streaming API behind the C1
// contract: Complete returns a lazy channel of provider.ResponseEvent,
// converted from Anthropic's content-block SSE events.
type Provider struct {
	client anthropicsdk.Client
	model  string
}

// New builds a Provider. It never contacts the network; the API key is
// validated lazily on the first Complete call, matching the SDK's own
// lazy-client convention.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Provider{client: anthropicsdk.NewClient(opts...), model: model}, nil
}

func (p *Provider) Name() string      { return "anthropic" }
func (p *Provider) ModelName() string { return p.model }

func (p *Provider) ContextWindow() int {
	if n, ok := contextWindows[p.model]; ok {
		return n
	}
	return provider.DefaultContextWindow
}

func (p *Provider) InputModalities() []provider.Modality {
	return []provider.Modality{provider.ModalityText, provider.ModalityImage}
}

// Complete streams a completion for req. The model call itself runs on its
// own goroutine; the returned channel is closed once the SSE stream yields
// message_stop, an error, or ctx is done.
func (p *Provider) Complete(ctx context.Context, req *provider.CompletionRequest) (<-chan provider.ResponseEvent, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	out := make(chan provider.ResponseEvent, 16)
	stream := p.client.Messages.NewStreaming(ctx, params)

	go func() {
		defer close(out)
		p.pump(stream, out)
	}()
	return out, nil
}

func (p *Provider) buildParams(req *provider.CompletionRequest) (anthropicsdk.MessageNewParams, error) {
	var system string
	msgs := make([]anthropicsdk.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == models.RoleSystem {
			system = m.Text()
			continue
		}
		converted, err := convertMessage(m)
		if err != nil {
			return anthropicsdk.MessageNewParams{}, err
		}
		msgs = append(msgs, converted)
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(p.model),
		Messages:  msgs,
		MaxTokens: 8192,
	}
	if system != "" {
		params.System = []anthropicsdk.TextBlockParam{{Type: "text", Text: system}}
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}
	return params, nil
}

func convertMessage(m models.Message) (anthropicsdk.MessageParam, error) {
	role := anthropicsdk.MessageParamRoleUser
	if m.Role == models.RoleAssistant {
		role = anthropicsdk.MessageParamRoleAssistant
	}

	switch {
	case m.Call != nil:
		var input any
		if err := json.Unmarshal([]byte(orEmptyObject(m.Call.Args)), &input); err != nil {
			input = map[string]any{}
		}
		block := anthropicsdk.NewToolUseBlock(m.Call.ID, input, m.Call.Name)
		return anthropicsdk.NewAssistantMessage(block), nil
	case m.Result != nil:
		block := anthropicsdk.NewToolResultBlock(m.Result.CallID, partsToString(m.Result.Parts), false)
		return anthropicsdk.NewUserMessage(block), nil
	default:
		blocks := make([]anthropicsdk.ContentBlockParamUnion, 0, len(m.Parts))
		for _, part := range m.Parts {
			switch part.Type {
			case models.PartText:
				blocks = append(blocks, anthropicsdk.NewTextBlock(part.Text))
			case models.PartImage:
				blocks = append(blocks, anthropicsdk.NewImageBlockBase64(part.Mime, base64.StdEncoding.EncodeToString(part.Data)))
			}
		}
		if role == anthropicsdk.MessageParamRoleAssistant {
			return anthropicsdk.NewAssistantMessage(blocks...), nil
		}
		return anthropicsdk.NewUserMessage(blocks...), nil
	}
}

func convertTools(schemas []models.ToolSchema) []anthropicsdk.ToolUnionParam {
	out := make([]anthropicsdk.ToolUnionParam, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, anthropicsdk.ToolUnionParam{
			OfTool: &anthropicsdk.ToolParam{
				Name:        s.Name,
				Description: anthropicsdk.String(s.Description),
				InputSchema: anthropicsdk.ToolInputSchemaParam{
					Properties: s.Parameters["properties"],
				},
			},
		})
	}
	return out
}

// pump converts Anthropic's content-block SSE stream into our
// index-keyed ResponseEvent union (§4.1, §9: accumulating tool-call
// arguments by index).
func (p *Provider) pump(stream *anthropicsdk.MessageStream, out chan<- provider.ResponseEvent) {
	var toolIndex int
	var toolOpen bool
	var inputTokens, outputTokens int

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			inputTokens = int(ms.Message.Usage.InputTokens)
		case "content_block_start":
			cb := event.AsContentBlockStart()
			if cb.ContentBlock.Type == "tool_use" {
				tu := cb.ContentBlock.AsToolUse()
				toolOpen = true
				out <- provider.ToolCallEvent(provider.ToolCallDelta{
					Index: toolIndex,
					ID:    tu.ID,
					Name:  tu.Name,
				})
			}
		case "content_block_delta":
			cb := event.AsContentBlockDelta()
			switch cb.Delta.Type {
			case "text_delta":
				if cb.Delta.Text != "" {
					out <- provider.TextDeltaEvent(cb.Delta.Text)
				}
			case "thinking_delta":
				if cb.Delta.Thinking != "" {
					out <- provider.ThinkingDeltaEvent(cb.Delta.Thinking)
				}
			case "input_json_delta":
				if cb.Delta.PartialJSON != "" {
					out <- provider.ToolCallEvent(provider.ToolCallDelta{
						Index:     toolIndex,
						Arguments: cb.Delta.PartialJSON,
					})
				}
			}
		case "content_block_stop":
			if toolOpen {
				toolIndex++
				toolOpen = false
			}
		case "message_delta":
			md := event.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				outputTokens = int(md.Usage.OutputTokens)
			}
		case "message_stop":
			out <- provider.UsageEvent(provider.Usage{Input: inputTokens, Output: outputTokens})
			out <- provider.DoneEvent()
			return
		}
	}
	if err := stream.Err(); err != nil {
		out <- provider.ErrorEvent(fmt.Errorf("anthropic stream: %w", err))
		out <- provider.DoneEvent()
	}
}

func orEmptyObject(s string) string {
	if s == "" {
		return "{}"
	}
	return s
}

func partsToString(parts []models.ContentPart) string {
	var s string
	for _, p := range parts {
		if p.Type == models.PartText {
			s += p.Text
		}
	}
	return s
}

