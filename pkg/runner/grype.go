package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/northcutted/chart-scan/pkg/types"
)

// GrypeRunner runs 'grype <image> -o json'
type GrypeRunner struct {
	bin     binary
	Timeout time.Duration
}

// Name returns the display name for this runner.
func (r *GrypeRunner) Name() string { return ScannerGrype }

// IsAvailable checks whether the grype binary is installed.
func (r *GrypeRunner) IsAvailable() bool {
	_, err := r.bin.resolve(ScannerGrype)
	return err == nil
}

// Scan executes 'grype <image> -o json' and parses the result.
// The provided context is used as the parent for the command timeout.
func (r *GrypeRunner) Scan(ctx context.Context, image string) ([]types.Match, error) {
	path, err := r.bin.resolve(ScannerGrype)
	if err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithTimeout(ctx, timeoutOr(r.Timeout, TimeoutScan))
	defer cancel()
	cmd := exec.CommandContext(runCtx, path, image, "-o", "json")
	output, err := runCommand(cmd)
	if err != nil {
		return nil, err
	}

	return parseGrypeOutput(output)
}

// parseGrypeOutput parses JSON output from 'grype <image> -o json'
// into raw matches, preserving grype's match order.
func parseGrypeOutput(output []byte) ([]types.Match, error) {
	var grypeOutput struct {
		Matches []struct {
			Vulnerability struct {
				ID       string `json:"id"`
				Severity string `json:"severity"`
			} `json:"vulnerability"`
			Artifact struct {
				Name    string `json:"name"`
				Version string `json:"version"`
			} `json:"artifact"`
		} `json:"matches"`
	}

	if err := json.Unmarshal(output, &grypeOutput); err != nil {
		return nil, fmt.Errorf("failed to unmarshal grype output: %w", err)
	}

	matches := make([]types.Match, 0, len(grypeOutput.Matches))
	for _, match := range grypeOutput.Matches {
		matches = append(matches, types.Match{
			Component:       match.Artifact.Name,
			Version:         match.Artifact.Version,
			VulnerabilityID: match.Vulnerability.ID,
			RawSeverity:     match.Vulnerability.Severity,
		})
	}

	return matches, nil
}
