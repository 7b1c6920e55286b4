// Package config loads the operator's on-disk YAML configuration for
// serve_node (sven serve-node --config), the same "one YAML file with a generated JSON
// Schema for validation" shape the teacher uses for its own config, just
// scoped to a single node instead of a whole gateway.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

// Config is the persisted shape of a node's operator-tunable settings.
// Command-line flags always take precedence over a loaded Config; see
// cmd/sven's use of cobra's Flags().Changed to decide which wins.
type Config struct {
	Provider string `yaml:"provider" jsonschema:"enum=anthropic,enum=openai,enum=mock,description=model provider backend"`
	Model    string `yaml:"model,omitempty" jsonschema:"description=model identifier override"`
	BaseURL  string `yaml:"base_url,omitempty" jsonschema:"description=override the provider's default API base URL"`

	WorkingDir  string `yaml:"working_dir,omitempty" jsonschema:"description=project root the file tools operate against"`
	BraveAPIKey string `yaml:"brave_api_key,omitempty" jsonschema:"description=API key gating the web_search tool"`

	GDBPath            string        `yaml:"gdb_path,omitempty" jsonschema:"description=gdb executable to spawn for the debugger tool group"`
	GDBCommandTimeout  time.Duration `yaml:"gdb_command_timeout,omitempty" jsonschema:"description=max duration for one GDB/MI command"`

	P2P P2PConfig `yaml:"p2p,omitempty"`

	ApprovalAutoApprove []string `yaml:"approval_auto_approve,omitempty" jsonschema:"description=glob patterns auto-approved without an Ask prompt"`
	ApprovalDeny        []string `yaml:"approval_deny,omitempty" jsonschema:"description=glob patterns always denied regardless of mode"`
}

// P2PConfig is the YAML shape of the optional fabric settings.
type P2PConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Role        string   `yaml:"role,omitempty" jsonschema:"enum=agent,enum=relay"`
	ListenAddr  string   `yaml:"listen_addr,omitempty"`
	Rooms       []string `yaml:"rooms,omitempty"`
	DisplayName string   `yaml:"display_name,omitempty"`
}

// Load reads and parses a Config from path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

var (
	schemaOnce sync.Once
	schemaJSON []byte
	schemaErr  error
)

// JSONSchema returns the generated JSON Schema for Config, e.g. for an
// editor's YAML language-server integration or a `sven config-schema`
// invocation.
func JSONSchema() ([]byte, error) {
	schemaOnce.Do(func() {
		r := &jsonschema.Reflector{FieldNameTag: "yaml"}
		schema := r.Reflect(&Config{})
		schemaJSON, schemaErr = json.MarshalIndent(schema, "", "  ")
	})
	return schemaJSON, schemaErr
}
