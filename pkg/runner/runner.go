package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/northcutted/chart-scan/pkg/types"
)

// Default per-invocation timeouts for external tools.
const (
	TimeoutRender = 2 * time.Minute
	TimeoutScan   = 10 * time.Minute
)

// lookupTool resolves the path to an external tool binary on PATH.
// Tests replace it to simulate missing tools.
var lookupTool = exec.LookPath

// Renderer turns an application identifier and version into manifest text.
type Renderer interface {
	Name() string
	IsAvailable() bool
	Render(ctx context.Context, app, version string) (string, error)
}

// Scanner runs an external vulnerability scanner against one image and
// returns its raw match records.
type Scanner interface {
	Name() string
	IsAvailable() bool
	Scan(ctx context.Context, image string) ([]types.Match, error)
}

// Supported scanner names.
const (
	ScannerGrype = "grype"
	ScannerTrivy = "trivy"
)

// NewScanner returns the scanner registered under name. An empty name
// selects grype.
func NewScanner(name string) (Scanner, error) {
	switch strings.ToLower(name) {
	case "", ScannerGrype:
		return &GrypeRunner{}, nil
	case ScannerTrivy:
		return &TrivyRunner{}, nil
	default:
		return nil, fmt.Errorf("unknown scanner %q (supported: %s, %s)", name, ScannerGrype, ScannerTrivy)
	}
}

// runCommand executes a command and returns its stdout. On failure the
// returned error carries the exit code and captured stderr.
func runCommand(cmd *exec.Cmd) ([]byte, error) {
	slog.Debug("running command", "cmd", cmd.String())

	output, err := cmd.Output()
	if err != nil {
		var stderr []byte
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			stderr = exitErr.Stderr
			return nil, fmt.Errorf("command failed (exit code %d): %w\nStderr: %s", exitErr.ExitCode(), err, strings.TrimSpace(string(stderr)))
		}
		return nil, fmt.Errorf("command failed: %w", err)
	}

	slog.Debug("command output", "cmd", cmd.Path, "bytes", len(output))
	return output, nil
}

// binary resolves an external tool once. After the first call it is only
// read, so a runner may serve concurrent scans.
type binary struct {
	once sync.Once
	path string
	err  error
}

// resolve returns the preset path or looks the tool up on PATH. A failed
// lookup is remembered too.
func (b *binary) resolve(tool string) (string, error) {
	b.once.Do(func() {
		if b.path != "" {
			return
		}
		path, err := lookupTool(tool)
		if err != nil {
			b.err = fmt.Errorf("%s not found: %w", tool, err)
			return
		}
		b.path = path
	})
	return b.path, b.err
}

func timeoutOr(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
