package runner

import (
	"context"
	"fmt"

	scanerr "github.com/northcutted/chart-scan/pkg/errors"
	"github.com/northcutted/chart-scan/pkg/types"
)

// Adapter normalises one Scanner's output into findings. It holds no
// mutable state, so a single Adapter may serve concurrent calls as long as
// the Scanner does.
type Adapter struct {
	scanner Scanner
}

// NewAdapter wraps scanner.
func NewAdapter(scanner Scanner) *Adapter {
	return &Adapter{scanner: scanner}
}

// ScanImage scans one image. Scanner failures, including panics, come back
// as the failure variant of the outcome; ScanImage itself never fails.
func (a *Adapter) ScanImage(ctx context.Context, image types.ImageReference) (outcome types.ScanOutcome) {
	op := a.scanner.Name() + " scan"
	defer func() {
		if r := recover(); r != nil {
			outcome = types.Failed(image, scanerr.NewScanError(op, string(image), fmt.Errorf("scanner panic: %v", r)))
		}
	}()

	matches, err := a.scanner.Scan(ctx, string(image))
	if err != nil {
		return types.Failed(image, scanerr.NewScanError(op, string(image), err))
	}

	findings := make([]types.Finding, 0, len(matches))
	for _, m := range matches {
		findings = append(findings, types.Finding{
			Image:           image,
			Component:       m.Component,
			Version:         m.Version,
			VulnerabilityID: m.VulnerabilityID,
			Severity:        types.ParseSeverity(m.RawSeverity),
		})
	}
	return types.Succeeded(image, findings)
}
