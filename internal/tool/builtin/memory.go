package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sven-run/sven/internal/tool"
	"github.com/sven-run/sven/pkg/models"
)

// Memory implements the "update memory" tool: a persistent JSON key-value
// store under the operator's config directory (§4.2).
type Memory struct {
	// Path is the backing JSON file. Defaults to
	// "<UserConfigDir>/sven/memory.json" when empty.
	Path string

	mu sync.Mutex
}

func (*Memory) Name() string { return "update_memory" }
func (*Memory) Description() string {
	return "Read or write a persistent key-value memory store."
}
func (*Memory) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{"type": "string", "enum": []any{"set", "get", "delete", "list"}},
			"key":       map[string]any{"type": "string"},
			"value":     map[string]any{"type": "string"},
		},
		"required": []any{"operation"},
	}
}
func (*Memory) DefaultPolicy() models.ApprovalPolicy { return models.PolicyAuto }
func (*Memory) Modes() []models.AgentMode            { return nil }
func (*Memory) OutputCategory() tool.OutputCategory  { return tool.CategoryText }

func (m *Memory) path() (string, error) {
	if m.Path != "" {
		return m.Path, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "sven", "memory.json"), nil
}

func (m *Memory) load() (map[string]string, error) {
	p, err := m.path()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	store := map[string]string{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return store, nil
	}
	if err := json.Unmarshal(data, &store); err != nil {
		return nil, err
	}
	return store, nil
}

func (m *Memory) save(store map[string]string) error {
	p, err := m.path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o600)
}

func (m *Memory) Execute(_ context.Context, call models.ToolCall) tool.Output {
	var in struct {
		Operation string `json:"operation"`
		Key       string `json:"key"`
		Value     string `json:"value"`
	}
	if err := decodeArgs(call.Args, &in); err != nil {
		return tool.Errorf("invalid arguments: %s", err)
	}
	if out, bad := requireString(in.Operation, "operation"); bad {
		return out
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	store, err := m.load()
	if err != nil {
		return tool.Errorf("load memory store: %s", err)
	}

	switch in.Operation {
	case "set":
		if out, bad := requireString(in.Key, "key"); bad {
			return out
		}
		store[in.Key] = in.Value
		if err := m.save(store); err != nil {
			return tool.Errorf("save memory store: %s", err)
		}
		return tool.Text(fmt.Sprintf("set %s", in.Key))

	case "get":
		if out, bad := requireString(in.Key, "key"); bad {
			return out
		}
		v, ok := store[in.Key]
		if !ok {
			return tool.Errorf("no such key: %s", in.Key)
		}
		return tool.Text(v)

	case "delete":
		if out, bad := requireString(in.Key, "key"); bad {
			return out
		}
		if _, ok := store[in.Key]; !ok {
			return tool.Errorf("no such key: %s", in.Key)
		}
		delete(store, in.Key)
		if err := m.save(store); err != nil {
			return tool.Errorf("save memory store: %s", err)
		}
		return tool.Text(fmt.Sprintf("deleted %s", in.Key))

	case "list":
		keys := make([]string, 0, len(store))
		for k := range store {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(keys) == 0 {
			return tool.Text("(empty)")
		}
		return tool.Text(strings.Join(keys, "\n"))

	default:
		return tool.Errorf("unknown operation: %s", in.Operation)
	}
}
