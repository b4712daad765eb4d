package store

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northcutted/chart-scan/pkg/analysis"
	"github.com/northcutted/chart-scan/pkg/types"
)

func sampleOutcomes() []types.ScanOutcome {
	return []types.ScanOutcome{
		types.Failed("a:1", errors.New("scanner exited 1")),
		types.Succeeded("b:1", []types.Finding{
			{Image: "b:1", Component: "zlib", Version: "1.2", VulnerabilityID: "CVE-2024-1", Severity: types.High},
			{Image: "b:1", Component: "bash", VulnerabilityID: "CVE-2024-2", Severity: types.Negligible},
		}),
	}
}

func TestRunComplete(t *testing.T) {
	start := time.Now()
	run := NewRun("nginx", "15.0.0", "grype", start)
	assert.NotEqual(t, uuid.Nil, run.ID)

	outcomes := sampleOutcomes()
	res := analysis.Aggregate(outcomes, types.Medium)
	run.Complete(res, outcomes, "out/report.csv", start.Add(time.Minute))

	assert.Equal(t, types.StatusPartialFailure, run.Status)
	assert.Equal(t, types.Medium, run.Threshold)
	assert.Len(t, run.Findings, 1)
	require.Len(t, run.Failures, 1)
	assert.Equal(t, types.ImageReference("a:1"), run.Failures[0].Image)
	assert.Contains(t, run.Failures[0].Error, "scanner exited 1")
}

func TestFindingsInsert(t *testing.T) {
	id := uuid.New()
	findings := []types.Finding{
		{Image: "b:1", Component: "zlib", Version: "1.2", VulnerabilityID: "CVE-1", Severity: types.High},
		{Image: "b:1", Component: "bash", VulnerabilityID: "CVE-2", Severity: types.Critical},
	}

	sql, args := findingsInsert(id, 100, findings)
	assert.Contains(t, sql, "INSERT INTO scan_findings")
	assert.Contains(t, sql, "($1, $2, $3, $4, $5, $6, $7), ($8, $9, $10, $11, $12, $13, $14)")
	require.Len(t, args, 14)
	assert.Equal(t, id, args[0])
	assert.Equal(t, 100, args[1])
	assert.Equal(t, 101, args[8])
	assert.Equal(t, "High", args[6])
	assert.Nil(t, args[11].(*string))
}

func TestRecordRun_Postgres(t *testing.T) {
	url := os.Getenv("CHART_SCAN_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CHART_SCAN_TEST_DATABASE_URL not set, skipping postgres test")
	}

	ctx := context.Background()
	st, err := Open(ctx, url)
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.Ping(ctx))
	require.NoError(t, st.EnsureSchema(ctx))

	outcomes := sampleOutcomes()
	run := NewRun("nginx", "15.0.0", "grype", time.Now())
	run.Complete(analysis.Aggregate(outcomes, types.Medium), outcomes, "", time.Now())
	require.NoError(t, st.RecordRun(ctx, run))

	var status string
	var findings int
	err = st.Pool.QueryRow(ctx, `SELECT status, findings FROM scan_runs WHERE id=$1`, run.ID).Scan(&status, &findings)
	require.NoError(t, err)
	assert.Equal(t, "partial-failure", status)
	assert.Equal(t, 1, findings)

	var failures int
	err = st.Pool.QueryRow(ctx, `SELECT count(*) FROM scan_failures WHERE run_id=$1`, run.ID).Scan(&failures)
	require.NoError(t, err)
	assert.Equal(t, 1, failures)
	assert.True(t, strings.HasPrefix(run.Failures[0].Error, "scanner exited"))
}
