package worker

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testInvoker() *Invoker {
	return NewInvoker(zerolog.New(os.Stderr), 0)
}

// shell wraps a shell script as a worker command so the full protocol
// (stdin JSON, stdout JSON, stderr diagnostics, exit code) can be exercised
// against real subprocesses.
func shell(script string) Command {
	return Command{Name: "sh", Args: []string{"-c", script}}
}

func TestInvoke_Success(t *testing.T) {
	out, err := testInvoker().Invoke(context.Background(),
		shell(`cat >/dev/null; echo '{"documents":[{"document_type":"血常规","data":{}}]}'`),
		map[string]any{"file_paths": []string{"/tmp/a.png"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed struct {
		Documents []struct {
			DocumentType string `json:"document_type"`
		} `json:"documents"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		t.Fatalf("output not parseable: %v", err)
	}
	if len(parsed.Documents) != 1 || parsed.Documents[0].DocumentType != "血常规" {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestInvoke_PassesInputOnStdin(t *testing.T) {
	// The worker echoes its stdin back, proving the payload arrived and the
	// stream was closed (cat terminates).
	out, err := testInvoker().Invoke(context.Background(), shell("cat"),
		map[string]any{"text": "吞咽困难"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var echoed map[string]string
	if err := json.Unmarshal(out, &echoed); err != nil {
		t.Fatalf("echoed input not parseable: %v", err)
	}
	if echoed["text"] != "吞咽困难" {
		t.Errorf("expected input round-trip, got %v", echoed)
	}
}

func TestInvoke_NonZeroExit(t *testing.T) {
	_, err := testInvoker().Invoke(context.Background(),
		shell(`cat >/dev/null; echo "model unavailable" >&2; exit 3`), map[string]any{})
	if err == nil {
		t.Fatal("expected error")
	}

	we, ok := AsError(err)
	if !ok {
		t.Fatalf("expected *worker.Error, got %T", err)
	}
	if we.Kind != KindFailed {
		t.Errorf("expected KindFailed, got %s", we.Kind)
	}
	if we.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", we.ExitCode)
	}
	if !strings.Contains(we.Stderr, "model unavailable") {
		t.Errorf("expected captured stderr, got %q", we.Stderr)
	}
}

func TestInvoke_MalformedOutput(t *testing.T) {
	_, err := testInvoker().Invoke(context.Background(),
		shell(`cat >/dev/null; printf '{"documents": [truncat'`), map[string]any{})
	if err == nil {
		t.Fatal("expected error")
	}

	we, ok := AsError(err)
	if !ok {
		t.Fatalf("expected *worker.Error, got %T", err)
	}
	if we.Kind != KindMalformedOutput {
		t.Errorf("expected KindMalformedOutput, got %s", we.Kind)
	}
	if !strings.Contains(string(we.RawOutput), "truncat") {
		t.Errorf("expected raw output preserved, got %q", we.RawOutput)
	}
}

func TestInvoke_SpawnFailure(t *testing.T) {
	_, err := testInvoker().Invoke(context.Background(),
		Command{Name: "/nonexistent/recognizer-binary"}, map[string]any{})
	if err == nil {
		t.Fatal("expected error")
	}

	we, ok := AsError(err)
	if !ok {
		t.Fatalf("expected *worker.Error, got %T", err)
	}
	if we.Kind != KindUnavailable {
		t.Errorf("expected KindUnavailable, got %s", we.Kind)
	}
}

func TestInvoke_LargeOutputDoesNotDeadlock(t *testing.T) {
	// Well past the 64 KiB pipe buffer; hangs here mean the streams were
	// not drained while waiting.
	script := `cat >/dev/null; printf '{"blob":"'; i=0; while [ $i -lt 3000 ]; do printf 'xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx'; i=$((i+1)); done; printf '"}'`

	done := make(chan struct{})
	var out []byte
	var err error
	go func() {
		out, err = testInvoker().Invoke(context.Background(), shell(script), map[string]any{})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("invocation deadlocked on large output")
	}

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) < 90000 {
		t.Errorf("expected ~96KB output, got %d bytes", len(out))
	}
}

func TestInvoke_Timeout(t *testing.T) {
	inv := NewInvoker(zerolog.New(os.Stderr), 100*time.Millisecond)
	_, err := inv.Invoke(context.Background(), shell("sleep 10"), map[string]any{})
	if err == nil {
		t.Fatal("expected error for timed-out worker")
	}
	if _, ok := AsError(err); !ok {
		t.Fatalf("expected *worker.Error, got %T", err)
	}
}

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand("python3 image_recognition_service.py", "backend")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Name != "python3" {
		t.Errorf("expected name python3, got %s", cmd.Name)
	}
	if len(cmd.Args) != 1 || cmd.Args[0] != "image_recognition_service.py" {
		t.Errorf("unexpected args: %v", cmd.Args)
	}
	if cmd.Dir != "backend" {
		t.Errorf("expected dir backend, got %s", cmd.Dir)
	}

	if _, err := ParseCommand("  ", ""); err == nil {
		t.Error("expected error for empty command line")
	}
}
