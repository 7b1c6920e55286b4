package tool

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sven-run/sven/pkg/models"
)

// Registry holds the set of tools available to an Agent. Tools are
// registered by name (last write wins) and looked up by name; registration
// is expected to happen once at bootstrap and the registry treated as
// immutable afterward (§3: "created by bootstrap, immutable after
// registration"), though the map itself stays safe for concurrent reads
// throughout a running Agent's lifetime.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds t to the registry, replacing any existing tool of the same
// name. It also compiles t's parameter schema for argument validation; a
// tool whose schema fails to compile is still registered (validation is
// skipped for it, not fatal to bootstrap).
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t

	compiled, err := compileSchema(t.Name(), t.Parameters())
	if err != nil {
		if r.schemas != nil {
			delete(r.schemas, t.Name())
		}
		return
	}
	if r.schemas == nil {
		r.schemas = make(map[string]*jsonschema.Schema)
	}
	r.schemas[t.Name()] = compiled
}

func compileSchema(name string, params map[string]any) (*jsonschema.Schema, error) {
	if len(params) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	url := "mem://tool/" + name + ".json"
	if err := compiler.AddResource(url, strings.NewReader(string(raw))); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}

// Get returns the tool registered under name, if any.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// SchemasForMode returns the ToolSchema of every registered tool available
// in mode, sorted by name (§4.2: "schemas_for_mode(mode)→sorted-by-name
// list").
func (r *Registry) SchemasForMode(mode models.AgentMode) []models.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.ToolSchema, 0, len(r.tools))
	for _, t := range r.tools {
		if !SupportsMode(t, mode) {
			continue
		}
		out = append(out, models.ToolSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute dispatches call to its named tool. It never returns a Go error:
// an unknown tool, a schema-invalid argument payload, or a tool-internal
// failure all surface as an Output with IsError set (§4.2).
func (r *Registry) Execute(ctx context.Context, call models.ToolCall) Output {
	r.mu.RLock()
	t, ok := r.tools[call.Name]
	schema := r.schemas[call.Name]
	r.mu.RUnlock()

	if !ok {
		return Error("unknown tool: " + call.Name)
	}

	if schema != nil {
		if out, bad := validateArgs(schema, call.Name, call.Args); bad {
			return out
		}
	}
	if raw := strings.TrimSpace(call.Args); raw != "" && !json.Valid([]byte(raw)) {
		call.Args = "{}"
	}

	return t.Execute(ctx, call)
}

func validateArgs(schema *jsonschema.Schema, name, args string) (Output, bool) {
	raw := strings.TrimSpace(args)
	if raw == "" {
		raw = "{}"
	}
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		// Malformed JSON is not a validation failure per §4.4's edge
		// case ("malformed arg JSON -> empty object passed to tool");
		// schema validation is skipped and the tool sees {}.
		return Output{}, false
	}
	if err := schema.Validate(decoded); err != nil {
		return Errorf("invalid arguments for %s: %s", name, err), true
	}
	return Output{}, false
}

// Clone returns a new Registry holding every tool of r except those named
// in exclude. delegate.Tool uses it to build a sub-agent's registry: the
// parent's delegation tool is left out, and delegate.Tool then registers a
// fresh one that shares the chain's depth counter.
func (r *Registry) Clone(exclude ...string) *Registry {
	skip := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		skip[name] = true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := NewRegistry()
	for name, t := range r.tools {
		if skip[name] {
			continue
		}
		out.Register(t)
	}
	return out
}

// AllNames returns every registered tool name, for diagnostics.
func (r *Registry) AllNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
