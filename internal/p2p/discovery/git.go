package discovery

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sven-run/sven/internal/p2p/identity"
)

// GitProvider implements Provider on top of a bare or working git
// repository, storing each record as the content of a ref rather than a
// commit: relay addresses under refs/relay/server/<content-hash>, peers
// under refs/peers/<room>/<peer-id> (§4.7).
type GitProvider struct {
	repoDir string
}

// NewGitProvider returns a GitProvider operating against the git repository
// rooted at repoDir (a clone or bare repo the operator has push access to).
func NewGitProvider(repoDir string) *GitProvider {
	return &GitProvider{repoDir: repoDir}
}

func (g *GitProvider) git(args ...string) (string, error) {
	cmd := exec.CommandContext(context.Background(), "git", args...)
	cmd.Dir = g.repoDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("discovery: git %s: %w: %s", strings.Join(args, " "), err, stderr.String())
	}
	return stdout.String(), nil
}

// hashObject stores content as a git blob and returns its OID.
func (g *GitProvider) hashObject(content string) (string, error) {
	cmd := exec.CommandContext(context.Background(), "git", "hash-object", "-w", "--stdin")
	cmd.Dir = g.repoDir
	cmd.Stdin = strings.NewReader(content)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("discovery: git hash-object: %w: %s", err, stderr.String())
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (g *GitProvider) updateRef(ref, content string) error {
	oid, err := g.hashObject(content)
	if err != nil {
		return err
	}
	_, err = g.git("update-ref", ref, oid)
	return err
}

func (g *GitProvider) deleteRef(ref string) error {
	_, err := g.git("update-ref", "-d", ref)
	return err
}

func (g *GitProvider) readRef(ref string) (string, bool, error) {
	out, err := g.git("cat-file", "-p", ref)
	if err != nil {
		if strings.Contains(err.Error(), "Not a valid object name") || strings.Contains(err.Error(), "does not exist") {
			return "", false, nil
		}
		return "", false, err
	}
	return out, true, nil
}

func (g *GitProvider) listRefs(prefix string) ([]string, error) {
	out, err := g.git("for-each-ref", "--format=%(refname)", prefix)
	if err != nil {
		return nil, err
	}
	var refs []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			refs = append(refs, line)
		}
	}
	return refs, nil
}

const relayRefPrefix = "refs/relay/server"

func peerRefPrefix(room string) string { return "refs/peers/" + room }

func (g *GitProvider) PublishRelayAddrs(addrs []string) error {
	for _, addr := range addrs {
		if err := g.updateRef(relayRefPrefix+"/"+addrKey(addr), addr); err != nil {
			return err
		}
	}
	return nil
}

func (g *GitProvider) FetchRelayAddrs() ([]string, error) {
	refs, err := g.listRefs(relayRefPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		content, ok, err := g.readRef(ref)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, content)
		}
	}
	return out, nil
}

func (g *GitProvider) DeleteRelayAddrs(addrs []string) error {
	for _, addr := range addrs {
		if err := g.deleteRef(relayRefPrefix + "/" + addrKey(addr)); err != nil {
			return err
		}
	}
	return nil
}

func (g *GitProvider) PublishPeer(room string, peer identity.PeerID, relayAddr string) error {
	return g.updateRef(peerRefPrefix(room)+"/"+string(peer), relayAddr)
}

func (g *GitProvider) FetchPeers(room string) ([]PeerRecord, error) {
	prefix := peerRefPrefix(room)
	refs, err := g.listRefs(prefix)
	if err != nil {
		return nil, err
	}
	out := make([]PeerRecord, 0, len(refs))
	for _, ref := range refs {
		peerID := strings.TrimPrefix(ref, prefix+"/")
		content, ok, err := g.readRef(ref)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, PeerRecord{Room: room, PeerID: identity.PeerID(peerID), RelayAddr: content})
		}
	}
	return out, nil
}

func (g *GitProvider) DeletePeer(room string, peer identity.PeerID) error {
	return g.deleteRef(peerRefPrefix(room) + "/" + string(peer))
}
