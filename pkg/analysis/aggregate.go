package analysis

import "github.com/northcutted/chart-scan/pkg/types"

// DefaultThreshold is the minimum severity reported when none is configured.
const DefaultThreshold = types.Medium

// Result is the filtered finding list of a run plus its tallies.
type Result struct {
	Threshold types.Severity
	Findings  []types.Finding
	Summary   types.Summary
}

// ReportNeeded reports whether any finding survived the threshold.
func (r Result) ReportNeeded() bool {
	return len(r.Findings) > 0
}

// Aggregate flattens the successful outcomes in slot order, keeps findings
// at or above threshold in their original order, and tallies failures.
func Aggregate(outcomes []types.ScanOutcome, threshold types.Severity) Result {
	res := Result{
		Threshold: threshold,
		Findings:  make([]types.Finding, 0),
		Summary:   types.Summary{Images: len(outcomes)},
	}

	for _, o := range outcomes {
		if o.Failed() {
			res.Summary.Failed++
			res.Summary.FailedImages = append(res.Summary.FailedImages, o.Image)
			continue
		}
		res.Summary.Scanned++
		for _, f := range o.Findings {
			if !f.Severity.AtLeast(threshold) {
				res.Summary.BelowThreshold++
				continue
			}
			res.Findings = append(res.Findings, f)
		}
	}
	res.Summary.Findings = len(res.Findings)

	return res
}

// Counts returns the number of findings per severity.
func Counts(findings []types.Finding) map[types.Severity]int {
	counts := make(map[types.Severity]int, len(types.Severities))
	for _, f := range findings {
		counts[f.Severity]++
	}
	return counts
}

// Highest returns the most severe level present and false if findings is
// empty.
func Highest(findings []types.Finding) (types.Severity, bool) {
	if len(findings) == 0 {
		return types.Negligible, false
	}
	highest := findings[0].Severity
	for _, f := range findings[1:] {
		if f.Severity > highest {
			highest = f.Severity
		}
	}
	return highest, true
}
