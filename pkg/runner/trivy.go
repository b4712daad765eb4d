package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/northcutted/chart-scan/pkg/types"
)

// TrivyRunner runs 'trivy image --quiet --format json <image>'
type TrivyRunner struct {
	bin     binary
	Timeout time.Duration
}

// Name returns the display name for this runner.
func (r *TrivyRunner) Name() string { return ScannerTrivy }

// IsAvailable checks whether the trivy binary is installed.
func (r *TrivyRunner) IsAvailable() bool {
	_, err := r.bin.resolve(ScannerTrivy)
	return err == nil
}

// Scan executes trivy against a single image and parses the JSON report.
func (r *TrivyRunner) Scan(ctx context.Context, image string) ([]types.Match, error) {
	path, err := r.bin.resolve(ScannerTrivy)
	if err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithTimeout(ctx, timeoutOr(r.Timeout, TimeoutScan))
	defer cancel()
	cmd := exec.CommandContext(runCtx, path, "image", "--quiet", "--format", "json", image)
	output, err := runCommand(cmd)
	if err != nil {
		return nil, err
	}

	return parseTrivyOutput(output)
}

// parseTrivyOutput flattens Results[].Vulnerabilities[] in report order.
func parseTrivyOutput(output []byte) ([]types.Match, error) {
	var report struct {
		Results []struct {
			Target          string `json:"Target"`
			Vulnerabilities []struct {
				VulnerabilityID  string `json:"VulnerabilityID"`
				PkgName          string `json:"PkgName"`
				InstalledVersion string `json:"InstalledVersion"`
				Severity         string `json:"Severity"`
			} `json:"Vulnerabilities"`
		} `json:"Results"`
	}

	if err := json.Unmarshal(output, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trivy output: %w", err)
	}

	var matches []types.Match
	for _, result := range report.Results {
		for _, v := range result.Vulnerabilities {
			matches = append(matches, types.Match{
				Component:       v.PkgName,
				Version:         v.InstalledVersion,
				VulnerabilityID: v.VulnerabilityID,
				RawSeverity:     v.Severity,
			})
		}
	}
	if matches == nil {
		matches = make([]types.Match, 0)
	}

	return matches, nil
}
