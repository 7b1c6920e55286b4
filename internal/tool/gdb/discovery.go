package gdb

import (
	"bufio"
	"context"
	"net"
	"os"
	"regexp"
	"time"
)

// netDialer is a thin wrapper so probeExisting can be swapped out in tests.
type netDialer struct{}

func (netDialer) canConnect(ctx context.Context, addr string) bool {
	d := net.Dialer{Timeout: 500 * time.Millisecond}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// targetRemoteRe matches a ".gdbinit" hint of the form
// "target remote localhost:2331" or "target extended-remote :3333".
var targetRemoteRe = regexp.MustCompile(`target\s+(?:extended-)?remote\s+(\S+)`)

// gdbinitHint scans a .gdbinit file (if present) for a "target remote
// <addr>" line, letting gdb_start_server discover the address an
// externally-managed server is expected to listen on.
func gdbinitHint(path string) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if m := targetRemoteRe.FindStringSubmatch(scanner.Text()); m != nil {
			addr := m[1]
			if addr[0] == ':' {
				addr = "localhost" + addr
			}
			return addr, true
		}
	}
	return "", false
}
