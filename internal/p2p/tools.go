package p2p

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sven-run/sven/internal/p2p/identity"
	"github.com/sven-run/sven/internal/p2p/protocol"
	"github.com/sven-run/sven/internal/tool"
	"github.com/sven-run/sven/pkg/models"
)

// ListPeersTool implements the roster's "list-peers" tool (§4.7): returns
// a snapshot of every peer the roster has seen announced.
type ListPeersTool struct {
	Node *Node
}

func (ListPeersTool) Name() string                        { return "list_peers" }
func (ListPeersTool) Description() string                 { return "List peers known to this node's roster." }
func (ListPeersTool) Parameters() map[string]any           { return nil }
func (ListPeersTool) DefaultPolicy() models.ApprovalPolicy { return models.PolicyAuto }
func (ListPeersTool) Modes() []models.AgentMode            { return nil }
func (ListPeersTool) OutputCategory() tool.OutputCategory  { return tool.CategoryText }

func (t ListPeersTool) Execute(context.Context, models.ToolCall) tool.Output {
	if t.Node.cfg.Roster == nil {
		return tool.Text("no roster configured")
	}
	snapshot := t.Node.cfg.Roster.Snapshot()
	if len(snapshot) == 0 {
		return tool.Text("no peers known")
	}
	var out string
	for _, p := range snapshot {
		status := "offline"
		if p.Online {
			status = "online"
		}
		out += fmt.Sprintf("%s (%s) [%s] last seen %s\n", p.Card.DisplayName, p.Card.PeerID, status, p.LastSeen.Format("2006-01-02T15:04:05Z07:00"))
	}
	return tool.Text(out)
}

// DelegateToPeerTool implements the roster's "delegate" tool (§4.7): sends
// a Task to a named peer over an existing connection and awaits its
// TaskResult. Distinct from internal/delegate's local sub-agent tool,
// which never leaves the process.
type DelegateToPeerTool struct {
	Node *Node
}

func (DelegateToPeerTool) Name() string { return "delegate_to_peer" }
func (DelegateToPeerTool) Description() string {
	return "Delegate a task to a named, already-connected peer and await its result."
}
func (DelegateToPeerTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"peer_id": map[string]any{"type": "string"},
			"prompt":  map[string]any{"type": "string"},
			"mode": map[string]any{
				"type": "string",
				"enum": []any{"research", "plan", "agent"},
			},
		},
		"required": []any{"peer_id", "prompt"},
	}
}
func (DelegateToPeerTool) DefaultPolicy() models.ApprovalPolicy { return models.PolicyAsk }
func (DelegateToPeerTool) Modes() []models.AgentMode            { return []models.AgentMode{models.ModeAgent} }
func (DelegateToPeerTool) OutputCategory() tool.OutputCategory  { return tool.CategoryText }

type delegateToPeerArgs struct {
	PeerID string `json:"peer_id"`
	Prompt string `json:"prompt"`
	Mode   string `json:"mode"`
}

func (t DelegateToPeerTool) Execute(ctx context.Context, call models.ToolCall) tool.Output {
	var args delegateToPeerArgs
	raw := call.Args
	if raw == "" {
		raw = "{}"
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return tool.Errorf("invalid arguments: %s", err)
	}
	if args.PeerID == "" || args.Prompt == "" {
		return tool.Error("delegate_to_peer requires peer_id and prompt")
	}

	t.Node.mu.Lock()
	conn, ok := t.Node.outbound[identity.PeerID(args.PeerID)]
	t.Node.mu.Unlock()
	if !ok {
		return tool.Errorf("no open connection to peer %s", args.PeerID)
	}

	payload := []protocol.ContentBlock{protocol.TextBlock(args.Prompt)}
	if args.Mode != "" {
		payload = append(payload, protocol.JSONBlock(map[string]string{"mode": args.Mode}))
	}
	task := protocol.NewTaskRequest("", args.Prompt, payload)
	result, err := t.Node.SendTask(ctx, conn, task)
	if err != nil {
		return tool.Errorf("delegate_to_peer failed: %s", err)
	}
	if result.IsError() {
		return tool.Error(result.Status.Reason)
	}
	return tool.Text(result.Text())
}
