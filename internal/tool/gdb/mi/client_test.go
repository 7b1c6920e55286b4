package mi

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// fakeGDB writes a small shell script that mimics enough of gdb-multiarch's
// MI3 behavior for Client's unit tests: it prints a ready prompt, then for
// each line read from stdin echoes a canned response depending on the
// command, without ever touching a real gdb binary.
func fakeGDB(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-gdb.sh")
	script := `#!/bin/sh
echo '(gdb)'
while IFS= read -r line; do
  case "$line" in
    *"target remote"*)
      echo '~"Remote debugging using localhost:2331\n"'
      echo '^done'
      echo '(gdb)'
      ;;
    *"-exec-interrupt"*)
      echo '^done'
      echo '*stopped,reason="signal-received",frame={addr="0x08000100",func="main",file="main.c",line="10"}'
      echo '(gdb)'
      ;;
    *"info registers"*)
      echo '~"r0             0x0                 0\n"'
      echo '^done'
      echo '(gdb)'
      ;;
    *"-gdb-exit"*)
      echo '^exit'
      exit 0
      ;;
    *)
      echo '^done'
      echo '(gdb)'
      ;;
  esac
done
`
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake gdb: %v", err)
	}
	return path
}

func TestClientAwaitReadyAndCommand(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := New(ctx, fakeGDB(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.AwaitReady(ctx); err != nil {
		t.Fatalf("AwaitReady: %v", err)
	}

	res, err := c.RawConsoleCmdForOutput(ctx, "info registers", 40, 2*time.Second)
	if err != nil {
		t.Fatalf("RawConsoleCmdForOutput: %v", err)
	}
	if len(res.Lines) == 0 {
		t.Fatalf("expected console output, got none")
	}

	c.Quit()
	if err := c.Wait(2 * time.Second); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestClientInterruptReportsStopped(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := New(ctx, fakeGDB(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.AwaitReady(ctx); err != nil {
		t.Fatalf("AwaitReady: %v", err)
	}

	if _, err := c.RawCmd(ctx, "-exec-interrupt", 2*time.Second); err != nil {
		t.Fatalf("RawCmd: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Status().Kind == Stopped {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	st := c.Status()
	if st.Kind != Stopped {
		t.Fatalf("expected Stopped, got %v", st)
	}
	if st.Stopped.Function != "main" || st.Stopped.Line != 10 {
		t.Fatalf("unexpected stopped info: %+v", st.Stopped)
	}

	c.Quit()
}
