// Package sandbox defines the narrow seam to the container runtime that
// executes agent code. The runtime itself is an external collaborator.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Result is the typed outcome of one agent session.
type Result struct {
	Output   string
	Duration time.Duration
}

// Runner starts sandboxed agent sessions. ContextMode is "group" to share
// the tenant's running conversation or "isolated" for a fresh one.
type Runner interface {
	StartSession(ctx context.Context, tenantFolder, prompt, contextMode string) (Result, error)
}

// ExecRunner launches sessions through the sandbox CLI with a bounded
// timeout. Cancellation kills the process; there is no stdout scraping
// beyond capturing the final output.
type ExecRunner struct {
	Binary  string
	Timeout time.Duration
}

// NewExecRunner creates a runner for the given sandbox binary.
func NewExecRunner(binary string, timeout time.Duration) *ExecRunner {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &ExecRunner{Binary: binary, Timeout: timeout}
}

// StartSession runs one session to completion or timeout.
func (r *ExecRunner) StartSession(ctx context.Context, tenantFolder, prompt, contextMode string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, r.Binary,
		"--tenant", tenantFolder,
		"--context", contextMode,
	)
	cmd.Stdin = strings.NewReader(prompt)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	res := Result{Output: out.String(), Duration: time.Since(start)}
	if ctx.Err() == context.DeadlineExceeded {
		return res, fmt.Errorf("sandbox session timed out after %s", r.Timeout)
	}
	if err != nil {
		return res, fmt.Errorf("sandbox session: %w", err)
	}
	return res, nil
}
