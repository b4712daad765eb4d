package cmd

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/northcutted/chart-scan/pkg/analysis"
	"github.com/northcutted/chart-scan/pkg/types"
)

// printImages lists the images discovered in the rendered chart.
func printImages(w io.Writer, chart string, images []types.ImageReference) {
	fmt.Fprintf(w, "Images found in %s:\n", chart)
	for _, image := range images {
		fmt.Fprintf(w, "- %s\n", image)
	}
}

// topFindings is how many findings the summary lists by name.
const topFindings = 5

// printSummary writes the end-of-run tallies. A run where every image
// failed is reported as such, never as clean.
func printSummary(w io.Writer, res analysis.Result) {
	s := res.Summary
	fmt.Fprintf(w, "\nSummary: %d images, %d scanned, %d failed, %d findings at or above %s\n",
		s.Images, s.Scanned, s.Failed, s.Findings, res.Threshold)

	if len(res.Findings) > 0 {
		counts := analysis.Counts(res.Findings)
		var parts []string
		for i := len(types.Severities) - 1; i >= 0; i-- {
			sev := types.Severities[i]
			if sev < res.Threshold {
				continue
			}
			parts = append(parts, fmt.Sprintf("%s: %d", sev, counts[sev]))
		}
		fmt.Fprintf(w, "  %s\n", strings.Join(parts, " | "))

		top := slices.Clone(res.Findings)
		types.SortBySeverity(top)
		fmt.Fprintln(w, "  Most severe findings:")
		for _, f := range top[:min(len(top), topFindings)] {
			fmt.Fprintf(w, "  - %s %s in %s (%s)\n", f.Severity, f.VulnerabilityID, f.Component, f.Image)
		}
	}

	if s.Failed > 0 {
		fmt.Fprintln(w, "  Images that failed to scan:")
		for _, image := range s.FailedImages {
			fmt.Fprintf(w, "  - %s\n", image)
		}
	}
}

// noReportReason explains why no report file was written.
func noReportReason(res analysis.Result) string {
	s := res.Summary
	switch s.Status() {
	case types.StatusNoImages:
		return "No images found; nothing was scanned and no report was written."
	case types.StatusAllFailed:
		return fmt.Sprintf("No report written: all %d images failed to scan, so the result is unknown, not clean.", s.Images)
	case types.StatusPartialFailure:
		return fmt.Sprintf("No vulnerabilities found with severity level %s or higher in the %d images scanned; %d images failed to scan.",
			res.Threshold, s.Scanned, s.Failed)
	default:
		return fmt.Sprintf("No vulnerabilities found with severity level %s or higher.", res.Threshold)
	}
}
