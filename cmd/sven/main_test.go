package main

import "testing"

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{
		"run-headless", "serve-node", "pair", "revoke",
		"regenerate-token", "list-peers",
	}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestDefaultProviderProfileFallsBackToMock(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	if got := defaultProviderProfile(); got.Name != "mock" {
		t.Fatalf("expected mock provider with no API keys set, got %q", got.Name)
	}
}
