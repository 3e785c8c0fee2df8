// Package runner executes collaborator control tools and reports their
// output, exit status and availability. A tool that is missing from every
// search path entry, or that exceeds the invocation timeout, is reported as
// unavailable rather than as an error.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// DefaultTimeout bounds a single control tool invocation.
const DefaultTimeout = 10 * time.Second

// DefaultSearchPath is the fixed, ordered set of directories searched for
// collaborator control tools.
var DefaultSearchPath = []string{
	"/usr/local/sbin",
	"/usr/local/bin",
	"/usr/sbin",
	"/usr/bin",
	"/sbin",
	"/bin",
}

// Result is the outcome of one control tool invocation.
type Result struct {
	Output   []byte
	Stderr   []byte
	ExitCode int
	// Available is false when the tool was not found on the search path or
	// did not answer within the timeout.
	Available bool
}

// spawnFunc runs the resolved executable; tests replace it to observe
// whether a spawn was attempted.
type spawnFunc func(ctx context.Context, path string, args ...string) (stdout, stderr []byte, exitCode int, err error)

// Runner locates and executes control tools.
type Runner struct {
	SearchPath []string
	Timeout    time.Duration

	spawn spawnFunc
}

// New returns a Runner with the default search path and timeout.
func New() *Runner {
	return &Runner{
		SearchPath: DefaultSearchPath,
		Timeout:    DefaultTimeout,
		spawn:      spawnCommand,
	}
}

// Lookup resolves tool against the search path. It returns the first path
// that is a regular executable file, or false when no entry matches. This
// answers "installed" checks without spawning anything.
func (r *Runner) Lookup(tool string) (string, bool) {
	for _, dir := range r.SearchPath {
		path := filepath.Join(dir, tool)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if info.Mode()&0o111 == 0 {
			continue
		}
		return path, true
	}
	return "", false
}

// Run executes tool with args under the configured timeout. A missing tool
// or a timeout yields Available=false and no error. A non-zero exit is not
// an error either: the exit code and any partial output are preserved for
// the caller to interpret.
func (r *Runner) Run(ctx context.Context, tool string, args ...string) (Result, error) {
	path, ok := r.Lookup(tool)
	if !ok {
		return Result{}, nil
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout, stderr, exitCode, err := r.spawn(runCtx, path, args...)
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		slog.Warn("control tool timed out", "tool", tool, "timeout", timeout)
		return Result{Output: stdout, Stderr: stderr}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("run %s: %w", tool, err)
	}

	return Result{Output: stdout, Stderr: stderr, ExitCode: exitCode, Available: true}, nil
}

func spawnCommand(ctx context.Context, path string, args ...string) ([]byte, []byte, int, error) {
	cmd := exec.CommandContext(ctx, path, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.Bytes(), stderr.Bytes(), exitErr.ExitCode(), nil
		}
		return stdout.Bytes(), stderr.Bytes(), 0, err
	}
	return stdout.Bytes(), stderr.Bytes(), 0, nil
}
