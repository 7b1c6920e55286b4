// Command sven-relay runs a relay-only P2P fabric node (§4.7): it
// publishes only its own listen address through the git-backed discovery
// provider and never serves an agent. It does not forward traffic between
// other peers.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sven-run/sven/internal/p2p"
	"github.com/sven-run/sven/internal/p2p/discovery"
	"github.com/sven-run/sven/internal/p2p/identity"
	"github.com/sven-run/sven/internal/p2p/roster"
)

func main() {
	var (
		listen     = flag.String("listen", ":4001", "TCP listen address")
		repo       = flag.String("repo", "", "path to the git repository used for peer discovery")
		keyPath    = flag.String("identity-file", "", "relay keypair file (default: <repo>/.relay-server-key)")
	)
	flag.Parse()

	if *repo == "" {
		fmt.Fprintln(os.Stderr, "sven-relay: --repo is required")
		os.Exit(1)
	}
	if *keyPath == "" {
		*keyPath = filepath.Join(*repo, ".relay-server-key")
	}

	if err := run(*listen, *repo, *keyPath); err != nil {
		fmt.Fprintln(os.Stderr, "sven-relay:", err)
		os.Exit(1)
	}
}

func run(listen, repo, keyPath string) error {
	id, err := identity.LoadOrCreate(keyPath)
	if err != nil {
		return fmt.Errorf("load relay identity: %w", err)
	}

	disc := discovery.NewGitProvider(repo)

	node := p2p.NewNode(p2p.Config{
		Role:       p2p.RoleRelay,
		ListenAddr: listen,
		Identity:   id,
		Discovery:  disc,
		Allowlist:  nil, // any peer may connect; with no OnTask handler it never executes tools
		Roster:     roster.NewRoster(),
		Card:       roster.AgentCard{PeerID: id.PeerID(), DisplayName: "sven-relay"},
		Logger:     slog.Default().With("component", "relay"),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("sven-relay: listening", "addr", listen, "peer_id", id.PeerID())
	return node.Serve(ctx)
}
