// Command sven is the CLI surface the component design leaves unspecified
// beyond its six verbs (§6): run-headless, serve-node, pair, revoke,
// regenerate-token, and list-peers. Every verb is a thin wrapper over
// internal/bootstrap and the packages it wires together; no business logic
// lives here.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/sven-run/sven/internal/agent"
	"github.com/sven-run/sven/internal/bootstrap"
	"github.com/sven-run/sven/internal/config"
	"github.com/sven-run/sven/internal/controlplane"
	"github.com/sven-run/sven/internal/observability"
	"github.com/sven-run/sven/internal/p2p"
	"github.com/sven-run/sven/internal/p2p/identity"
	"github.com/sven-run/sven/internal/p2p/pairing"
	"github.com/sven-run/sven/internal/p2p/roster"
	"github.com/sven-run/sven/pkg/models"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "sven",
		Short:   "Sven: a multi-mode AI coding agent with an optional P2P fabric",
		Version: fmt.Sprintf("%s (%s)", version, commit),
	}
	root.AddCommand(
		buildRunHeadlessCmd(),
		buildServeNodeCmd(),
		buildPairCmd(),
		buildRevokeCmd(),
		buildRegenerateTokenCmd(),
		buildListPeersCmd(),
		buildConfigSchemaCmd(),
	)
	return root
}

func configDir() (string, error) { return bootstrap.DefaultConfigDir() }

func defaultProviderProfile() bootstrap.ProviderProfile {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return bootstrap.ProviderProfile{Name: "anthropic", APIKey: key, Model: os.Getenv("SVEN_MODEL")}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return bootstrap.ProviderProfile{Name: "openai", APIKey: key, Model: os.Getenv("SVEN_MODEL")}
	}
	return bootstrap.ProviderProfile{Name: "mock"}
}

// buildRunHeadlessCmd implements run_headless(workflow): a single prompt
// driven to completion with no interactive approval channel, every Ask
// tool call auto-approved (§4.4's "headless" run mode).
func buildRunHeadlessCmd() *cobra.Command {
	var (
		prompt     string
		mode       string
		workingDir string
	)

	cmd := &cobra.Command{
		Use:   "run-headless",
		Short: "Run one prompt to completion with no interactive approval",
		RunE: func(cmd *cobra.Command, args []string) error {
			if prompt == "" {
				return fmt.Errorf("sven: run-headless requires --prompt")
			}
			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			if workingDir != "" {
				wd = workingDir
			}

			node, err := bootstrap.Build(bootstrap.Profile{
				Provider:   defaultProviderProfile(),
				WorkingDir: wd,
				Runtime:    models.RuntimeContext{ProjectRoot: wd},
				Logger:     slog.Default(),
			})
			if err != nil {
				return err
			}

			agentMode := models.AgentMode(mode)
			switch agentMode {
			case models.ModeResearch, models.ModePlan, models.ModeAgent:
			case "":
				agentMode = models.ModeAgent
			default:
				return fmt.Errorf("sven: unknown mode %q", mode)
			}

			ag := node.NewAgent(agentMode, agent.AutoApprover{})
			sink := agent.NewCallbackSink(func(_ context.Context, e agent.Event) {
				switch e.Kind {
				case agent.EventTextDelta:
					fmt.Print(e.Text)
				case agent.EventToolCallStarted:
					fmt.Fprintf(os.Stderr, "\n[tool] %s\n", e.ToolName)
				case agent.EventError:
					fmt.Fprintf(os.Stderr, "\n[error] %s\n", e.Err)
				}
			})

			_, err = ag.Submit(cmd.Context(), prompt, sink)
			fmt.Println()
			return err
		},
	}

	cmd.Flags().StringVar(&prompt, "prompt", "", "the task to run")
	cmd.Flags().StringVar(&mode, "mode", "agent", "agent mode: research, plan, or agent")
	cmd.Flags().StringVar(&workingDir, "working-dir", "", "project root for file tools (default: cwd)")
	return cmd
}

// buildServeNodeCmd implements serve_node(config): starts the control
// plane's HTTPS/WebSocket listener and, when configured, the P2P fabric
// (§4.7, §4.8).
func buildServeNodeCmd() *cobra.Command {
	var (
		listenAddr string
		p2pListen  string
		role       string
		tokenPath  string
		allowPath  string
		identPath  string
		displayName string
		traceExport bool
		configPath  string
	)

	cmd := &cobra.Command{
		Use:   "serve-node",
		Short: "Serve the control plane, optionally joining the P2P fabric",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := configDir()
			if err != nil {
				return err
			}
			if tokenPath == "" {
				tokenPath = filepath.Join(dir, "token.yaml")
			}
			if allowPath == "" {
				allowPath = filepath.Join(dir, "authorized_peers.yaml")
			}
			if identPath == "" {
				identPath = filepath.Join(dir, "identity")
			}

			verifier, err := ensureToken(tokenPath)
			if err != nil {
				return err
			}

			profile := bootstrap.Profile{
				Provider: defaultProviderProfile(),
				Logger:   slog.Default(),
			}
			if configPath != "" {
				fileCfg, err := config.Load(configPath)
				if err != nil {
					return err
				}
				applyFileConfig(cmd, fileCfg, &profile, &listenAddr, &p2pListen, &role, &displayName)
			}
			if p2pListen != "" {
				profile.P2P = bootstrap.PeerProfile{
					Enabled:       true,
					Role:          p2p.Role(role),
					ListenAddr:    p2pListen,
					IdentityPath:  identPath,
					AllowlistPath: allowPath,
					DisplayName:   displayName,
				}
			}

			profile.Metrics = observability.NewMetrics()
			tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{Export: traceExport})
			defer shutdownTracer(context.Background())
			profile.Tracer = tracer

			node, err := bootstrap.Build(profile)
			if err != nil {
				return err
			}

			store := controlplane.NewStore(node.NewControlPlaneFactory())

			certPath := filepath.Join(dir, "tls", "gateway-cert.pem")
			keyPath := filepath.Join(dir, "tls", "gateway-key.pem")
			cert, err := controlplane.LoadOrGenerateCert(certPath, keyPath, "localhost")
			if err != nil {
				return fmt.Errorf("sven: load/generate TLS certificate: %w", err)
			}
			slog.Info("sven: TLS certificate fingerprint (pin this)", "sha256", controlplane.CertFingerprint(cert))
			var liveCert atomic.Pointer[tls.Certificate]
			liveCert.Store(&cert)

			maintenance := cron.New()
			maintenance.AddFunc("@daily", func() {
				renewed, err := controlplane.LoadOrGenerateCert(certPath, keyPath, "localhost")
				if err != nil {
					slog.Warn("sven: TLS certificate renewal check failed", "error", err)
					return
				}
				if fp := controlplane.CertFingerprint(renewed); fp != controlplane.CertFingerprint(*liveCert.Load()) {
					liveCert.Store(&renewed)
					slog.Info("sven: TLS certificate renewed", "sha256", fp)
				}
			})
			maintenance.AddFunc("@hourly", func() {
				pruned, err := store.PruneApprovals(cmd.Context(), 24*time.Hour)
				if err != nil {
					slog.Warn("sven: approval-request pruning failed", "error", err)
					return
				}
				if pruned > 0 {
					slog.Info("sven: pruned expired approval requests", "count", pruned)
				}
			})
			if node.P2PNode != nil {
				maintenance.AddFunc("@every 10m", func() {
					node.P2PNode.SweepIdlePeers(30 * time.Minute)
				})
			}
			maintenance.Start()
			defer maintenance.Stop()

			mux := http.NewServeMux()
			handler := &controlplane.WebSocketHandler{Store: store, Logger: slog.Default()}
			mw := &controlplane.Middleware{Verifier: verifier, Limiter: controlplane.NewFailedAuthLimiter()}
			mux.Handle("/ws", mw.Wrap(handler))
			mux.Handle("/metrics", promhttp.Handler())

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			errCh := make(chan error, 2)
			go func() {
				srv := &http.Server{
					Addr:    listenAddr,
					Handler: mux,
					TLSConfig: &tls.Config{
						MinVersion: tls.VersionTLS13,
						GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
							return liveCert.Load(), nil
						},
					},
				}
				go func() {
					<-ctx.Done()
					srv.Close()
				}()
				slog.Info("sven: control plane listening", "addr", listenAddr)
				errCh <- srv.ListenAndServeTLS("", "")
			}()

			if node.P2PNode != nil {
				if allow := node.P2PNode.Allowlist(); allow != nil {
					if err := roster.WatchFile(ctx, allowPath, allow, slog.Default()); err != nil {
						slog.Warn("sven: allowlist hot-reload disabled", "error", err)
					}
				}
				go func() {
					slog.Info("sven: p2p fabric listening", "addr", p2pListen)
					errCh <- node.P2PNode.Serve(ctx)
				}()
			}

			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", ":8443", "control plane listen address")
	cmd.Flags().StringVar(&p2pListen, "p2p-listen", "", "P2P fabric listen address (empty disables the fabric)")
	cmd.Flags().StringVar(&role, "p2p-role", "agent", "P2P role: agent or relay")
	cmd.Flags().StringVar(&tokenPath, "token-file", "", "bearer token digest file (default: config dir)")
	cmd.Flags().StringVar(&allowPath, "allowlist-file", "", "authorized peers file (default: config dir)")
	cmd.Flags().StringVar(&identPath, "identity-file", "", "identity keypair file (default: config dir)")
	cmd.Flags().StringVar(&displayName, "display-name", "sven-node", "this node's AgentCard display name")
	cmd.Flags().BoolVar(&traceExport, "trace", false, "export spans to stdout for local debugging")
	cmd.Flags().StringVar(&configPath, "config", "", "YAML config file providing defaults for flags not explicitly set")
	return cmd
}

// applyFileConfig merges fileCfg into profile and the serve-node flag
// variables, but only for flags the operator did not explicitly pass —
// cobra's Changed() keeps an explicit --listen or --p2p-listen winning
// over whatever a config file says, matching config.Config's doc comment
// ("Command-line flags always take precedence over a loaded Config").
func applyFileConfig(cmd *cobra.Command, fileCfg *config.Config, profile *bootstrap.Profile, listenAddr, p2pListen, role, displayName *string) {
	if fileCfg.Provider != "" {
		profile.Provider = bootstrap.ProviderProfile{
			Name:    fileCfg.Provider,
			Model:   fileCfg.Model,
			BaseURL: fileCfg.BaseURL,
			APIKey:  profile.Provider.APIKey,
		}
	}
	if fileCfg.WorkingDir != "" {
		profile.WorkingDir = fileCfg.WorkingDir
		profile.Runtime.ProjectRoot = fileCfg.WorkingDir
	}
	if fileCfg.BraveAPIKey != "" {
		profile.BraveAPIKey = fileCfg.BraveAPIKey
	}
	if fileCfg.GDBPath != "" {
		profile.GDB.GDBPath = fileCfg.GDBPath
	}
	if fileCfg.GDBCommandTimeout != 0 {
		profile.GDB.CommandTimeout = fileCfg.GDBCommandTimeout
	}
	if fileCfg.ApprovalAutoApprove != nil {
		profile.Approval.AutoApprove = fileCfg.ApprovalAutoApprove
	}
	if fileCfg.ApprovalDeny != nil {
		profile.Approval.Deny = fileCfg.ApprovalDeny
	}

	if fileCfg.P2P.Enabled {
		if !cmd.Flags().Changed("p2p-listen") && fileCfg.P2P.ListenAddr != "" {
			*p2pListen = fileCfg.P2P.ListenAddr
		}
		if !cmd.Flags().Changed("p2p-role") && fileCfg.P2P.Role != "" {
			*role = fileCfg.P2P.Role
		}
		if !cmd.Flags().Changed("display-name") && fileCfg.P2P.DisplayName != "" {
			*displayName = fileCfg.P2P.DisplayName
		}
	}
}

// buildConfigSchemaCmd prints the JSON Schema for the YAML shape --config
// accepts, for an editor's language-server integration.
func buildConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config-schema",
		Short: "Print the JSON Schema for a serve-node --config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := config.JSONSchema()
			if err != nil {
				return err
			}
			fmt.Println(string(schema))
			return nil
		},
	}
}

// ensureToken loads an existing token digest or, on first run, generates
// one, persists its digest, and prints the raw token once (§4.8: "shown
// once at generation").
func ensureToken(path string) (*controlplane.TokenVerifier, error) {
	if v, err := controlplane.LoadTokenVerifier(path); err == nil {
		return v, nil
	}
	token, err := controlplane.GenerateToken()
	if err != nil {
		return nil, err
	}
	if err := controlplane.PersistTokenHash(path, token); err != nil {
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "sven: generated control-plane bearer token (shown once): %s\n", token)
	return controlplane.LoadTokenVerifier(path)
}

// buildPairCmd implements pair(uri, label?): parses a sven:// pairing URI,
// prints its fingerprint for the operator to visually confirm against the
// peer's own printout, and on confirmation adds it to the local allowlist
// as an operator (§4.7 "Pairing").
func buildPairCmd() *cobra.Command {
	var (
		label     string
		allowPath string
		yes       bool
	)

	cmd := &cobra.Command{
		Use:   "pair <sven-uri>",
		Short: "Pair with a peer via its sven:// URI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uri, err := pairing.Parse(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("peer fingerprint: %s\nconfirm this matches the peer's own printout before continuing.\n", uri.Fingerprint())
			if !yes {
				fmt.Print("proceed? [y/N] ")
				var answer string
				fmt.Scanln(&answer)
				if answer != "y" && answer != "Y" {
					return fmt.Errorf("sven: pairing aborted")
				}
			}

			path, err := resolveAllowlistPath(allowPath)
			if err != nil {
				return err
			}
			allow, err := roster.LoadAllowlist(path)
			if err != nil {
				return err
			}
			if label == "" {
				label = string(uri.PeerID)
			}
			if err := allow.Add(uri.PeerID, roster.RoleOperator, label); err != nil {
				return err
			}
			if err := allow.Save(path); err != nil {
				return err
			}
			fmt.Printf("paired with %s as operator %q\n", uri.PeerID, label)
			return nil
		},
	}

	cmd.Flags().StringVar(&label, "label", "", "human label for this peer (default: its peer id)")
	cmd.Flags().StringVar(&allowPath, "allowlist-file", "", "authorized peers file (default: config dir)")
	cmd.Flags().BoolVar(&yes, "yes", false, "skip the fingerprint confirmation prompt")
	return cmd
}

// buildRevokeCmd implements revoke(peer_id): removes a peer from the
// allowlist, taking effect immediately on its next connection attempt.
func buildRevokeCmd() *cobra.Command {
	var allowPath string
	cmd := &cobra.Command{
		Use:   "revoke <peer-id>",
		Short: "Revoke a peer's authorization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveAllowlistPath(allowPath)
			if err != nil {
				return err
			}
			allow, err := roster.LoadAllowlist(path)
			if err != nil {
				return err
			}
			allow.Remove(identity.PeerID(args[0]))
			if err := allow.Save(path); err != nil {
				return err
			}
			fmt.Printf("revoked %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&allowPath, "allowlist-file", "", "authorized peers file (default: config dir)")
	return cmd
}

// buildRegenerateTokenCmd implements regenerate_token(): invalidates the
// current control-plane bearer token and prints the replacement once.
func buildRegenerateTokenCmd() *cobra.Command {
	var tokenPath string
	cmd := &cobra.Command{
		Use:   "regenerate-token",
		Short: "Generate a new control-plane bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := tokenPath
			if path == "" {
				dir, err := configDir()
				if err != nil {
					return err
				}
				path = filepath.Join(dir, "token.yaml")
			}
			token, err := controlplane.GenerateToken()
			if err != nil {
				return err
			}
			if err := controlplane.PersistTokenHash(path, token); err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&tokenPath, "token-file", "", "bearer token digest file (default: config dir)")
	return cmd
}

// buildListPeersCmd implements list_peers(): the locally persisted
// allowlist is the only peer information that survives without a running
// node, so this lists it directly rather than querying a live roster.
func buildListPeersCmd() *cobra.Command {
	var allowPath string
	cmd := &cobra.Command{
		Use:   "list-peers",
		Short: "List authorized peers",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveAllowlistPath(allowPath)
			if err != nil {
				return err
			}
			allow, err := roster.LoadAllowlist(path)
			if err != nil {
				return err
			}
			for _, role := range []roster.Role{roster.RoleOperator, roster.RoleObserver} {
				for _, entry := range allow.PeersWithRole(role) {
					fmt.Printf("%s\t%s\t%s\n", role, entry.ID, entry.Label)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&allowPath, "allowlist-file", "", "authorized peers file (default: config dir)")
	return cmd
}

func resolveAllowlistPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "authorized_peers.yaml"), nil
}
