package cmd

import (
	"fmt"
	"strings"

	"github.com/northcutted/chart-scan/pkg/runner"
)

// checkToolStatus returns a string indicating the status of required tools.
func checkToolStatus() string {
	var status strings.Builder
	status.WriteString("\nPrerequisites:\n")

	helm := &runner.HelmRenderer{}
	if helm.IsAvailable() {
		status.WriteString("  [OK] helm\n")
	} else {
		status.WriteString("  [MISSING] helm (required to render charts)\n")
	}

	for _, name := range []string{runner.ScannerGrype, runner.ScannerTrivy} {
		s, err := runner.NewScanner(name)
		if err != nil {
			continue
		}
		if s.IsAvailable() {
			fmt.Fprintf(&status, "  [OK] %s\n", name)
		} else {
			fmt.Fprintf(&status, "  [MISSING] %s (needed with --scanner %s)\n", name, name)
		}
	}
	return status.String()
}
