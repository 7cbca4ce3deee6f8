package compiler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultProcessTimeout bounds one external optimizer invocation
const DefaultProcessTimeout = 30 * time.Second

// ProcessCompiler runs an external optimizer binary. The compile options are
// written to stdin as JSON and a {modules, diagnostics} JSON document is read
// back from stdout.
type ProcessCompiler struct {
	binPath string
	args    []string
	timeout time.Duration
}

// NewProcessCompiler locates the optimizer binary. name may be a bare command
// looked up in PATH or an explicit path.
func NewProcessCompiler(name string, timeout time.Duration, args ...string) (*ProcessCompiler, error) {
	if name == "" {
		return nil, fmt.Errorf("optimizer binary not configured")
	}

	binPath, err := exec.LookPath(name)
	if err != nil {
		if _, statErr := os.Stat(name); statErr != nil {
			return nil, fmt.Errorf("optimizer binary %q not found in PATH: %w", name, err)
		}
		binPath = name
	}

	if timeout <= 0 {
		timeout = DefaultProcessTimeout
	}

	return &ProcessCompiler{
		binPath: binPath,
		args:    args,
		timeout: timeout,
	}, nil
}

// Compile invokes the optimizer once
func (p *ProcessCompiler) Compile(ctx context.Context, opts CompileOptions) (*Result, error) {
	payload, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal compile options: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, p.binPath, p.args...) //nolint:gosec // binPath is resolved in NewProcessCompiler
	cmd.Stdin = bytes.NewReader(payload)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("optimizer timed out after %s", p.timeout)
	}
	if runErr != nil {
		errMsg := strings.TrimSpace(stderr.String())
		if errMsg == "" {
			errMsg = runErr.Error()
		}
		return nil, fmt.Errorf("optimizer failed: %s", errMsg)
	}

	if stderr.Len() > 0 {
		log.Debug().Str("stderr", strings.TrimSpace(stderr.String())).Msg("Optimizer wrote to stderr")
	}

	var result Result
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResult, err)
	}
	return &result, nil
}
