package runner

import (
	"context"
	"os/exec"
	"time"

	scanerr "github.com/northcutted/chart-scan/pkg/errors"
)

// HelmRenderer runs 'helm template --version <version> <chart>'
type HelmRenderer struct {
	bin     binary
	Timeout time.Duration
	// ExtraArgs are appended before the chart, e.g. --repo or -f values.yaml.
	ExtraArgs []string
}

// Name returns the display name for this renderer.
func (r *HelmRenderer) Name() string { return "helm" }

// IsAvailable checks whether the helm binary is installed.
func (r *HelmRenderer) IsAvailable() bool {
	_, err := r.bin.resolve("helm")
	return err == nil
}

// Render returns the manifest text for chart at version. Any failure is a
// render error.
func (r *HelmRenderer) Render(ctx context.Context, chart, version string) (string, error) {
	path, err := r.bin.resolve("helm")
	if err != nil {
		return "", scanerr.WithHint(scanerr.NewRenderError("helm template", err), "install helm and make sure it is on PATH")
	}

	runCtx, cancel := context.WithTimeout(ctx, timeoutOr(r.Timeout, TimeoutRender))
	defer cancel()

	args := []string{"template", "--version", version}
	args = append(args, r.ExtraArgs...)
	args = append(args, chart)
	cmd := exec.CommandContext(runCtx, path, args...)
	output, err := runCommand(cmd)
	if err != nil {
		return "", scanerr.NewRenderError("helm template", err)
	}
	return string(output), nil
}
