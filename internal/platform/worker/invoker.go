// Package worker spawns out-of-process document workers and speaks the
// JSON-over-stdio protocol: one JSON document written to the worker's stdin,
// stdin closed, one JSON document expected on stdout before exit, diagnostics
// on stderr. The recognizer and the report generator are both driven through
// this package.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Kind classifies an invocation failure.
type Kind string

const (
	// KindUnavailable means the worker process could not be spawned at all
	// (executable missing, permission denied).
	KindUnavailable Kind = "worker_unavailable"

	// KindFailed means the worker exited non-zero. Stdout must not be
	// parsed in this case; Stderr carries the diagnostic text.
	KindFailed Kind = "worker_failed"

	// KindMalformedOutput means the worker exited zero but its stdout was
	// not valid JSON. RawOutput carries the captured bytes for diagnosis.
	KindMalformedOutput Kind = "malformed_worker_output"
)

// Error is the typed invocation failure surfaced to callers. It always
// carries enough captured text to reproduce the failure.
type Error struct {
	Kind      Kind
	ExitCode  int
	Stderr    string
	RawOutput []byte
	cause     error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindUnavailable:
		return fmt.Sprintf("worker unavailable: %v", e.cause)
	case KindFailed:
		return fmt.Sprintf("worker exited with code %d: %s", e.ExitCode, strings.TrimSpace(e.Stderr))
	case KindMalformedOutput:
		return fmt.Sprintf("worker output is not valid JSON: %q", truncate(string(e.RawOutput), 256))
	default:
		return fmt.Sprintf("worker error: %v", e.cause)
	}
}

func (e *Error) Unwrap() error { return e.cause }

// AsError extracts a *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var we *Error
	ok := errors.As(err, &we)
	return we, ok
}

// Command describes how to spawn one worker.
type Command struct {
	Name string
	Args []string
	Dir  string
}

// ParseCommand splits a configured command line ("python3 main.py") into a
// Command rooted at dir.
func ParseCommand(cmdline, dir string) (Command, error) {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return Command{}, errors.New("empty worker command")
	}
	return Command{Name: fields[0], Args: fields[1:], Dir: dir}, nil
}

// Invoker runs workers one invocation at a time. It holds no per-invocation
// state; retry policy belongs to callers, who know whether the input
// referenced resources (temp files) that must be re-staged first.
type Invoker struct {
	logger  zerolog.Logger
	timeout time.Duration // 0 means wait for exit indefinitely
}

func NewInvoker(logger zerolog.Logger, timeout time.Duration) *Invoker {
	return &Invoker{logger: logger, timeout: timeout}
}

// Invoke spawns cmd, writes payload as JSON to its stdin, closes stdin, and
// waits for exit while both output streams are drained continuously into
// separate buffers (draining after exit would deadlock on full pipes).
// On exit 0 with valid JSON on stdout it returns the raw stdout bytes;
// every other combination returns a *Error per the taxonomy above.
func (inv *Invoker) Invoke(ctx context.Context, cmd Command, payload any) ([]byte, error) {
	input, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal worker input: %w", err)
	}

	if inv.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.timeout)
		defer cancel()
	}

	proc := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	proc.Dir = cmd.Dir
	proc.Stdin = bytes.NewReader(input)

	// os/exec copies into these buffers from dedicated goroutines while the
	// process runs, which keeps both pipes drained for the lifetime of the
	// worker.
	var stdout, stderr bytes.Buffer
	proc.Stdout = &stdout
	proc.Stderr = &stderr

	start := time.Now()
	if err := proc.Start(); err != nil {
		inv.logger.Error().Err(err).Str("worker", cmd.Name).Msg("failed to spawn worker")
		return nil, &Error{Kind: KindUnavailable, cause: err}
	}

	waitErr := proc.Wait()
	elapsed := time.Since(start)

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			inv.logger.Error().
				Str("worker", cmd.Name).
				Int("exit_code", exitErr.ExitCode()).
				Dur("elapsed", elapsed).
				Str("stderr", truncate(stderr.String(), 2048)).
				Msg("worker failed")
			return nil, &Error{
				Kind:     KindFailed,
				ExitCode: exitErr.ExitCode(),
				Stderr:   stderr.String(),
				cause:    waitErr,
			}
		}
		return nil, &Error{Kind: KindUnavailable, Stderr: stderr.String(), cause: waitErr}
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if !json.Valid(out) {
		inv.logger.Error().
			Str("worker", cmd.Name).
			Str("raw_output", truncate(string(out), 2048)).
			Msg("worker produced malformed output")
		return nil, &Error{Kind: KindMalformedOutput, RawOutput: stdout.Bytes()}
	}

	inv.logger.Debug().
		Str("worker", cmd.Name).
		Dur("elapsed", elapsed).
		Int("output_bytes", len(out)).
		Msg("worker completed")

	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
