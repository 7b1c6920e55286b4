// Package models provides the wire-level data shapes shared across the
// agent, tool, and session packages.
package models

import (
	"strings"
	"time"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType discriminates the union held by a ContentPart.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
)

// ContentPart is one element of an ordered, mixed text/image content
// sequence.
type ContentPart struct {
	Type PartType `json:"type"`
	Text string   `json:"text,omitempty"`
	Data []byte   `json:"data,omitempty"`
	Mime string   `json:"mime,omitempty"`
}

// TextPart builds a text content part.
func TextPart(s string) ContentPart { return ContentPart{Type: PartText, Text: s} }

// ImagePart builds an image content part.
func ImagePart(data []byte, mime string) ContentPart {
	return ContentPart{Type: PartImage, Data: data, Mime: mime}
}

// ToolCall represents a model's request to execute a tool. Args is the raw
// accumulated JSON-argument string; ID is assigned by the provider.
type ToolCall struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Args string `json:"args"`
}

// ToolResult is the payload a RoleTool Message carries, answering a prior
// ToolCall by id.
type ToolResult struct {
	CallID string        `json:"call_id"`
	Parts  []ContentPart `json:"parts"`
}

// Message is a single tagged entry in a Session's history. Exactly one of
// Parts, Call, or Result is populated for a given Role:
//   - RoleSystem / RoleUser: Parts.
//   - RoleAssistant: Parts for spoken text, or Call for a tool invocation —
//     never both; a round that speaks and calls tools produces two
//     Messages, text first (§4.4).
//   - RoleTool: Result, answering a previously emitted ToolCall.ID.
type Message struct {
	Role      Role          `json:"role"`
	Parts     []ContentPart `json:"parts,omitempty"`
	Call      *ToolCall     `json:"call,omitempty"`
	Result    *ToolResult   `json:"result,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// NewSystemMessage builds a system prompt message.
func NewSystemMessage(text string) Message {
	return Message{Role: RoleSystem, Parts: []ContentPart{TextPart(text)}, CreatedAt: time.Now()}
}

// NewUserMessage builds a plain-text user message.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Parts: []ContentPart{TextPart(text)}, CreatedAt: time.Now()}
}

// NewAssistantText builds an assistant text message.
func NewAssistantText(text string) Message {
	return Message{Role: RoleAssistant, Parts: []ContentPart{TextPart(text)}, CreatedAt: time.Now()}
}

// NewAssistantToolCall builds an assistant message carrying a tool call.
func NewAssistantToolCall(call ToolCall) Message {
	return Message{Role: RoleAssistant, Call: &call, CreatedAt: time.Now()}
}

// NewToolResultMessage builds a tool-role message answering callID.
func NewToolResultMessage(callID string, parts []ContentPart) Message {
	return Message{Role: RoleTool, Result: &ToolResult{CallID: callID, Parts: parts}, CreatedAt: time.Now()}
}

// Text concatenates the Text parts of m, in order. Returns "" for messages
// that carry a Call or Result instead of Parts.
func (m Message) Text() string {
	if len(m.Parts) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// HasImage reports whether m carries at least one PartImage part.
func (m Message) HasImage() bool {
	for _, p := range m.Parts {
		if p.Type == PartImage {
			return true
		}
	}
	return false
}

// StripImages returns m with every PartImage replaced by placeholder text
// (§4.1). A ContentParts message that collapses to a single text part after
// stripping is returned with that lone part, matching the spec's "collapse
// back to plain text" rule at the encoding layer.
func (m Message) StripImages(placeholder string) Message {
	if m.Result != nil {
		r := *m.Result
		r.Parts = stripParts(r.Parts, placeholder)
		out := m
		out.Result = &r
		return out
	}
	if len(m.Parts) == 0 {
		return m
	}
	out := m
	out.Parts = stripParts(m.Parts, placeholder)
	return out
}

func stripParts(parts []ContentPart, placeholder string) []ContentPart {
	hasImage := false
	for _, p := range parts {
		if p.Type == PartImage {
			hasImage = true
			break
		}
	}
	if !hasImage {
		return parts
	}
	out := make([]ContentPart, len(parts))
	for i, p := range parts {
		if p.Type == PartImage {
			out[i] = TextPart(placeholder)
		} else {
			out[i] = p
		}
	}
	return out
}

// ApproxTokens implements the §3 approximate token heuristic:
// ceil(len/4), minimum 1, over the textual rendering of the message.
func (m Message) ApproxTokens() int {
	n := 0
	switch {
	case m.Call != nil:
		n = len(m.Call.Name) + len(m.Call.Args)
	case m.Result != nil:
		for _, p := range m.Result.Parts {
			n += len(p.Text)
		}
	default:
		n = len(m.Text())
	}
	return ApproxTokensFromChars(n)
}

// ApproxTokensFromChars is the shared ⌈n/4⌉-minimum-1 heuristic (§3, §9:
// "replace with a real tokenizer when available").
func ApproxTokensFromChars(n int) int {
	if n <= 0 {
		return 1
	}
	t := (n + 3) / 4
	if t < 1 {
		return 1
	}
	return t
}

// ToolSchema describes a tool's name, description, and JSON Schema
// parameters object as advertised to a model provider.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ApprovalPolicy is the decision an approval check produces for a tool
// invocation.
type ApprovalPolicy string

const (
	PolicyAuto ApprovalPolicy = "auto"
	PolicyAsk  ApprovalPolicy = "ask"
	PolicyDeny ApprovalPolicy = "deny"
)

// AgentMode gates which tools a registry advertises to the model, ordered
// by increasing capability: Research < Plan < Agent.
type AgentMode string

const (
	ModeResearch AgentMode = "research"
	ModePlan     AgentMode = "plan"
	ModeAgent    AgentMode = "agent"
)

var modeRank = map[AgentMode]int{ModeResearch: 0, ModePlan: 1, ModeAgent: 2}

// IsDowngradeFrom reports whether target is a same-or-lower capability mode
// than from, per the Research < Plan < Agent ordering.
func (target AgentMode) IsDowngradeFrom(from AgentMode) bool {
	return modeRank[target] <= modeRank[from]
}

// RuntimeContext carries read-only values inherited by sub-agents: project
// root, pre-formatted notes, and system-prompt overrides. Never mutated
// after Agent construction.
type RuntimeContext struct {
	ProjectRoot          string
	GitNote              string
	CINote               string
	ProjectContextDoc    string
	AppendSystemPrompt   string
	SystemPromptOverride string
}

// TodoStatus is the lifecycle state of a single todo item.
type TodoStatus string

const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoCompleted  TodoStatus = "completed"
	TodoCancelled  TodoStatus = "cancelled"
)

// Todo is one entry of the todo-write tool's list.
type Todo struct {
	ID      string     `json:"id"`
	Content string     `json:"content"`
	Status  TodoStatus `json:"status"`
}
