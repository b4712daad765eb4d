package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northcutted/chart-scan/pkg/types"
)

func TestAggregate_ThresholdFilter(t *testing.T) {
	outcomes := []types.ScanOutcome{
		types.Succeeded("app:1.0", []types.Finding{
			finding("app:1.0", "openssl", "CVE-2023-0001", types.Critical),
			finding("app:1.0", "libc", "CVE-2023-0002", types.Low),
		}),
	}

	res := Aggregate(outcomes, types.Medium)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, "CVE-2023-0001", res.Findings[0].VulnerabilityID)
	assert.True(t, res.ReportNeeded())
	assert.Equal(t, 1, res.Summary.BelowThreshold)
	assert.Equal(t, types.StatusFindings, res.Summary.Status())
}

func TestAggregate_EveryThreshold(t *testing.T) {
	var all []types.Finding
	for _, s := range types.Severities {
		all = append(all, finding("a:1", "pkg", s.String(), s))
	}
	outcomes := []types.ScanOutcome{types.Succeeded("a:1", all)}

	for _, threshold := range types.Severities {
		res := Aggregate(outcomes, threshold)
		for _, f := range res.Findings {
			assert.True(t, f.Severity >= threshold, "%v below %v", f.Severity, threshold)
		}
		assert.Len(t, res.Findings, int(types.Critical-threshold)+1)
	}
}

func TestAggregate_PartialFailure(t *testing.T) {
	images := []types.ImageReference{"a:1", "b:1"}
	scan := fakeScan(
		map[types.ImageReference][]types.Finding{
			"b:1": {
				finding("b:1", "zlib", "CVE-2024-1", types.High),
				finding("b:1", "bash", "CVE-2024-2", types.Negligible),
			},
		},
		map[types.ImageReference]error{"a:1": errors.New("scanner exited 1")},
	)

	res := Aggregate(ScanAll(context.Background(), images, scan, Options{}), types.Medium)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, types.ImageReference("b:1"), res.Findings[0].Image)
	assert.Equal(t, types.High, res.Findings[0].Severity)
	assert.Equal(t, 1, res.Summary.Failed)
	assert.Equal(t, []types.ImageReference{"a:1"}, res.Summary.FailedImages)
	assert.Equal(t, types.StatusPartialFailure, res.Summary.Status())
	for _, f := range res.Findings {
		assert.NotEqual(t, types.ImageReference("a:1"), f.Image)
	}
}

func TestAggregate_OrderAndDeterminism(t *testing.T) {
	outcomes := []types.ScanOutcome{
		types.Succeeded("a:1", []types.Finding{
			finding("a:1", "x", "CVE-3", types.Medium),
			finding("a:1", "y", "CVE-1", types.Critical),
		}),
		types.Failed("b:1", errors.New("nope")),
		types.Succeeded("c:1", []types.Finding{
			finding("c:1", "z", "CVE-2", types.High),
		}),
	}

	first := Aggregate(outcomes, types.Medium)
	ids := make([]string, 0, len(first.Findings))
	for _, f := range first.Findings {
		ids = append(ids, f.VulnerabilityID)
	}
	assert.Equal(t, []string{"CVE-3", "CVE-1", "CVE-2"}, ids)

	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Aggregate(outcomes, types.Medium))
	}
}

func TestAggregate_NoReport(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []types.ScanOutcome
		status   types.Status
	}{
		{"no images", nil, types.StatusNoImages},
		{"all below threshold", []types.ScanOutcome{
			types.Succeeded("a:1", []types.Finding{finding("a:1", "x", "CVE-1", types.Low)}),
		}, types.StatusClean},
		{"all failed", []types.ScanOutcome{
			types.Failed("a:1", errors.New("x")),
			types.Failed("b:1", errors.New("y")),
		}, types.StatusAllFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Aggregate(tt.outcomes, DefaultThreshold)
			assert.False(t, res.ReportNeeded())
			assert.NotNil(t, res.Findings)
			assert.Equal(t, tt.status, res.Summary.Status())
		})
	}
}

func TestCountsAndHighest(t *testing.T) {
	findings := []types.Finding{
		finding("a:1", "x", "CVE-1", types.High),
		finding("a:1", "y", "CVE-2", types.High),
		finding("a:1", "z", "CVE-3", types.Critical),
	}
	counts := Counts(findings)
	assert.Equal(t, 2, counts[types.High])
	assert.Equal(t, 1, counts[types.Critical])
	assert.Equal(t, 0, counts[types.Low])

	h, ok := Highest(findings)
	assert.True(t, ok)
	assert.Equal(t, types.Critical, h)

	_, ok = Highest(nil)
	assert.False(t, ok)
}
