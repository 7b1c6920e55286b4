// Package openai implements provider.Provider (C1) against OpenAI's chat
// completions streaming API via sashabaranov/go-openai. Exercising a
// second concrete provider alongside anthropic lets the agent turn engine
// and §4.1 image-stripping logic run against genuinely different
// tool-schema and modality shapes.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	openaisdk "github.com/sashabaranov/go-openai"

	"github.com/sven-run/sven/internal/provider"
	"github.com/sven-run/sven/pkg/models"
)

var contextWindows = map[string]int{
	"gpt-4o":      128_000,
	"gpt-4o-mini": 128_000,
	"gpt-4-turbo": 128_000,
}

// Config configures a Provider.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Provider drives OpenAI's chat-completion streaming API behind the C1
// contract.
type Provider struct {
	client *openaisdk.Client
	model  string
}

// New builds a Provider.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o"
	}
	clientCfg := openaisdk.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Provider{client: openaisdk.NewClientWithConfig(clientCfg), model: model}, nil
}

func (p *Provider) Name() string      { return "openai" }
func (p *Provider) ModelName() string { return p.model }

func (p *Provider) ContextWindow() int {
	if n, ok := contextWindows[p.model]; ok {
		return n
	}
	return provider.DefaultContextWindow
}

// InputModalities reports vision support for gpt-4o, gpt-4o-mini and
// gpt-4-turbo; other models
// are treated as text-only so §4.1 stripping exercises a genuinely
// different modality set than the Anthropic provider.
func (p *Provider) InputModalities() []provider.Modality {
	switch p.model {
	case "gpt-4o", "gpt-4o-mini", "gpt-4-turbo":
		return []provider.Modality{provider.ModalityText, provider.ModalityImage}
	default:
		return []provider.Modality{provider.ModalityText}
	}
}

func (p *Provider) Complete(ctx context.Context, req *provider.CompletionRequest) (<-chan provider.ResponseEvent, error) {
	chatReq := openaisdk.ChatCompletionRequest{
		Model:    p.model,
		Messages: convertMessages(req.Messages),
		Stream:   true,
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertTools(req.Tools)
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	out := make(chan provider.ResponseEvent, 16)
	go func() {
		defer close(out)
		defer stream.Close()
		pump(stream, out)
	}()
	return out, nil
}

func pump(stream *openaisdk.ChatCompletionStream, out chan<- provider.ResponseEvent) {
	var usage provider.Usage
	for {
		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				out <- provider.UsageEvent(usage)
				out <- provider.DoneEvent()
				return
			}
			out <- provider.ErrorEvent(fmt.Errorf("openai stream: %w", err))
			out <- provider.DoneEvent()
			return
		}
		if resp.Usage != nil {
			usage = provider.Usage{Input: resp.Usage.PromptTokens, Output: resp.Usage.CompletionTokens}
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta
		if delta.Content != "" {
			out <- provider.TextDeltaEvent(delta.Content)
		}
		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			out <- provider.ToolCallEvent(provider.ToolCallDelta{
				Index:     index,
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
	}
}

func convertMessages(msgs []models.Message) []openaisdk.ChatCompletionMessage {
	out := make([]openaisdk.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		switch {
		case m.Call != nil:
			out = append(out, openaisdk.ChatCompletionMessage{
				Role: openaisdk.ChatMessageRoleAssistant,
				ToolCalls: []openaisdk.ToolCall{{
					ID:   m.Call.ID,
					Type: openaisdk.ToolTypeFunction,
					Function: openaisdk.FunctionCall{
						Name:      m.Call.Name,
						Arguments: orEmptyObject(m.Call.Args),
					},
				}},
			})
		case m.Result != nil:
			out = append(out, openaisdk.ChatCompletionMessage{
				Role:       openaisdk.ChatMessageRoleTool,
				ToolCallID: m.Result.CallID,
				Content:    partsToText(m.Result.Parts),
			})
		default:
			out = append(out, openaisdk.ChatCompletionMessage{
				Role:         roleName(m.Role),
				Content:      m.Text(),
				MultiContent: convertParts(m.Parts),
			})
		}
	}
	return out
}

func convertParts(parts []models.ContentPart) []openaisdk.ChatMessagePart {
	hasImage := false
	for _, p := range parts {
		if p.Type == models.PartImage {
			hasImage = true
			break
		}
	}
	if !hasImage {
		return nil
	}
	out := make([]openaisdk.ChatMessagePart, 0, len(parts))
	for _, p := range parts {
		switch p.Type {
		case models.PartText:
			out = append(out, openaisdk.ChatMessagePart{Type: openaisdk.ChatMessagePartTypeText, Text: p.Text})
		case models.PartImage:
			out = append(out, openaisdk.ChatMessagePart{
				Type:     openaisdk.ChatMessagePartTypeImageURL,
				ImageURL: &openaisdk.ChatMessageImageURL{URL: dataURL(p.Mime, p.Data)},
			})
		}
	}
	return out
}

func convertTools(schemas []models.ToolSchema) []openaisdk.Tool {
	out := make([]openaisdk.Tool, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, openaisdk.Tool{
			Type: openaisdk.ToolTypeFunction,
			Function: &openaisdk.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		})
	}
	return out
}

func roleName(r models.Role) string {
	switch r {
	case models.RoleSystem:
		return openaisdk.ChatMessageRoleSystem
	case models.RoleAssistant:
		return openaisdk.ChatMessageRoleAssistant
	default:
		return openaisdk.ChatMessageRoleUser
	}
}

func orEmptyObject(s string) string {
	if s == "" {
		return "{}"
	}
	return s
}

func partsToText(parts []models.ContentPart) string {
	var s string
	for _, p := range parts {
		if p.Type == models.PartText {
			s += p.Text
		}
	}
	return s
}

func dataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
