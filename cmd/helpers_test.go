// Shared fakes and helpers for the cmd tests.
//
// Globals mutated: stdout (via captureOutput), newRenderer, newScanner,
// newPublisher and now (via useFakes). Every test restores them.
package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/northcutted/chart-scan/pkg/config"
	"github.com/northcutted/chart-scan/pkg/report"
	"github.com/northcutted/chart-scan/pkg/runner"
	"github.com/northcutted/chart-scan/pkg/types"
)

// Helper to capture stdout
func captureOutput(f func()) string {
	old := stdout
	var buf bytes.Buffer
	stdout = &buf
	defer func() { stdout = old }()

	f()
	return buf.String()
}

type fakeRenderer struct {
	manifest string
	err      error
}

func (r *fakeRenderer) Name() string      { return "fake-helm" }
func (r *fakeRenderer) IsAvailable() bool { return true }
func (r *fakeRenderer) Render(ctx context.Context, chart, version string) (string, error) {
	return r.manifest, r.err
}

// fakeScanner answers from fixed tables and is safe for concurrent use.
type fakeScanner struct {
	matches  map[string][]types.Match
	failures map[string]error
}

func (s *fakeScanner) Name() string      { return "fake" }
func (s *fakeScanner) IsAvailable() bool { return true }
func (s *fakeScanner) Scan(ctx context.Context, image string) ([]types.Match, error) {
	if err, ok := s.failures[image]; ok {
		return nil, err
	}
	return s.matches[image], nil
}

type fakeUploader struct {
	keys []string
}

func (u *fakeUploader) Upload(ctx context.Context, filePath string, format report.Format) (string, error) {
	u.keys = append(u.keys, filePath)
	return "reports/" + filePath, nil
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)

// useFakes installs the fakes and isolates the test from any config or
// .env file and from the caller's environment.
func useFakes(t *testing.T, r runner.Renderer, s runner.Scanner) {
	t.Helper()
	t.Chdir(t.TempDir())
	for _, key := range []string{
		"CHART_SCAN_THRESHOLD", "CHART_SCAN_CONCURRENCY", "CHART_SCAN_SCANNER",
		"CHART_SCAN_FORMAT", "CHART_SCAN_OUTPUT_DIR", "CHART_SCAN_FAIL_ON",
		"DATABASE_URL", "REPORTS_BUCKET", "S3_ENDPOINT",
	} {
		t.Setenv(key, "")
	}

	oldRenderer, oldScanner, oldPublisher, oldNow := newRenderer, newScanner, newPublisher, now
	t.Cleanup(func() {
		newRenderer, newScanner, newPublisher, now = oldRenderer, oldScanner, oldPublisher, oldNow
	})

	newRenderer = func(*config.Config) runner.Renderer { return r }
	newScanner = func(*config.Config) (runner.Scanner, error) { return s, nil }
	newPublisher = func(*config.Config) (uploader, error) {
		return nil, errors.New("uploads are not configured in tests")
	}
	now = func() time.Time { return fixedNow }
}

// execute runs a fresh root command with args and returns what it printed.
func execute(args ...string) (string, error) {
	return executeContext(context.Background(), args...)
}

func executeContext(ctx context.Context, args ...string) (string, error) {
	var err error
	out := captureOutput(func() {
		cmd := newRootCmd()
		// A nil slice would make cobra fall back to os.Args.
		cmd.SetArgs(append([]string{}, args...))
		cmd.SetOut(io.Discard)
		cmd.SetErr(io.Discard)
		err = cmd.ExecuteContext(ctx)
	})
	return out, err
}

const twoImageManifest = `---
apiVersion: apps/v1
kind: Deployment
spec:
  template:
    spec:
      containers:
        - name: web
          image: "b:1"
        - name: sidecar
          image: a:1
`

// twoImageScanner fails a:1 and finds one High and one Negligible
// vulnerability in b:1.
func twoImageScanner() *fakeScanner {
	return &fakeScanner{
		matches: map[string][]types.Match{
			"b:1": {
				{Component: "zlib", Version: "1.2", VulnerabilityID: "CVE-2024-1", RawSeverity: "High"},
				{Component: "bash", Version: "5.1", VulnerabilityID: "CVE-2024-2", RawSeverity: "Negligible"},
			},
		},
		failures: map[string]error{
			"a:1": errors.New("image pull failed"),
		},
	}
}

func TestCheckToolStatus(t *testing.T) {
	status := checkToolStatus()
	if !strings.Contains(status, "Prerequisites:") {
		t.Errorf("expected prerequisites header, got:\n%s", status)
	}
	for _, tool := range []string{"helm", "grype", "trivy"} {
		if !strings.Contains(status, tool) {
			t.Errorf("expected %q in tool status output", tool)
		}
	}
}
