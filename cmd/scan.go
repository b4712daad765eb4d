package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/northcutted/chart-scan/pkg/analysis"
	"github.com/northcutted/chart-scan/pkg/config"
	scanerr "github.com/northcutted/chart-scan/pkg/errors"
	"github.com/northcutted/chart-scan/pkg/extractor"
	"github.com/northcutted/chart-scan/pkg/report"
	"github.com/northcutted/chart-scan/pkg/runner"
	"github.com/northcutted/chart-scan/pkg/store"
	"github.com/northcutted/chart-scan/pkg/types"
)

// Collaborators of a run. Tests replace them with fakes.
var (
	newRenderer = func(cfg *config.Config) runner.Renderer {
		return &runner.HelmRenderer{ExtraArgs: cfg.Helm.TemplateArgs()}
	}
	newScanner = func(cfg *config.Config) (runner.Scanner, error) {
		s, err := runner.NewScanner(cfg.Scanner)
		if err != nil {
			return nil, err
		}
		switch r := s.(type) {
		case *runner.GrypeRunner:
			r.Timeout = cfg.ScanTimeout
		case *runner.TrivyRunner:
			r.Timeout = cfg.ScanTimeout
		}
		return s, nil
	}
	newPublisher = func(cfg *config.Config) (uploader, error) {
		u := cfg.Upload
		return report.NewPublisher(report.PublisherOptions{
			Endpoint:  u.Endpoint,
			AccessKey: u.AccessKey,
			SecretKey: u.SecretKey,
			UseSSL:    u.UseSSL,
			Region:    u.Region,
			Bucket:    u.Bucket,
			Prefix:    u.Prefix,
		})
	}
	now = time.Now
)

type uploader interface {
	Upload(ctx context.Context, filePath string, format report.Format) (string, error)
}

// resolveConfig merges defaults, the config file, the environment and the
// flags that were set explicitly, in increasing order of precedence.
func resolveConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	config.LoadDotEnv()

	path := opts.configFile
	if path == "" {
		if _, err := os.Stat(config.DefaultFile); err == nil {
			path = config.DefaultFile
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("threshold") {
		s, err := types.ParseThreshold(opts.threshold)
		if err != nil {
			return nil, fmt.Errorf("--threshold: %w", err)
		}
		cfg.Threshold = s
	}
	if flags.Changed("fail-on") {
		cfg.FailOn = opts.failOn
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency = opts.concurrency
	}
	if flags.Changed("scanner") {
		cfg.Scanner = opts.scanner
	}
	if flags.Changed("format") {
		cfg.Format = opts.format
	}
	if flags.Changed("output-dir") {
		cfg.OutputDir = opts.outputDir
	}
	if flags.Changed("repo") {
		cfg.Helm.Repo = opts.helmRepo
	}
	if flags.Changed("values") {
		cfg.Helm.Values = opts.helmValues
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runScan(cmd *cobra.Command, opts *options, chart, version string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := resolveConfig(cmd, opts)
	if err != nil {
		return scanerr.NewConfigError("load config", err)
	}
	format, err := report.ParseFormat(cfg.Format)
	if err != nil {
		return scanerr.NewConfigError("report format", err)
	}
	failOn, gated, err := cfg.FailOnLevel()
	if err != nil {
		return scanerr.NewConfigError("fail-on", err)
	}

	scanner, err := newScanner(cfg)
	if err != nil {
		return scanerr.NewConfigError("select scanner", err)
	}
	if !scanner.IsAvailable() {
		slog.Warn("scanner not found on PATH, every image scan will fail", "scanner", scanner.Name())
	}

	run := store.NewRun(chart, version, scanner.Name(), now())
	label := chart + " " + version

	slog.Debug("rendering chart", "chart", chart, "version", version)
	manifest, err := newRenderer(cfg).Render(ctx, chart, version)
	if err != nil {
		return err
	}

	images := extractor.Extract(manifest)
	for _, w := range extractor.Lint(images) {
		slog.Warn("suspicious image reference", "image", w.Image, "reason", w.Reason)
	}

	if len(images) == 0 {
		fmt.Fprintf(stdout, "No images found in %s.\n", label)
		res := analysis.Aggregate(nil, cfg.Threshold)
		run.Complete(res, nil, "", now())
		recordRun(ctx, cfg, run)
		fmt.Fprintln(stdout, "Scan and report generation complete.")
		return nil
	}

	printImages(stdout, label, images)
	fmt.Fprintln(stdout, "\nStarting scan for each image...")

	adapter := runner.NewAdapter(scanner)
	outcomes := analysis.ScanAll(ctx, images, func(ctx context.Context, image types.ImageReference) types.ScanOutcome {
		slog.Debug("scanning image", "image", image)
		return adapter.ScanImage(ctx, image)
	}, analysis.Options{
		Concurrency: cfg.Concurrency,
		Progress: func(done, total int, o types.ScanOutcome) {
			// Scanner failures are ScanKind; anything else, such as a
			// cancelled context, means the image was never scanned.
			switch {
			case o.Failed() && scanerr.IsFatal(o.Err):
				fmt.Fprintf(stdout, "[%d/%d] %s: not scanned\n", done, total, o.Image)
				return
			case o.Failed():
				slog.Warn("image scan failed", "image", o.Image, "error", o.Err)
				fmt.Fprintf(stdout, "[%d/%d] %s: scan failed\n", done, total, o.Image)
				return
			}
			fmt.Fprintf(stdout, "[%d/%d] %s: %d findings\n", done, total, o.Image, len(o.Findings))
		},
	})

	res := analysis.Aggregate(outcomes, cfg.Threshold)
	printSummary(stdout, res)

	// An interrupted run is incomplete; no report is written for it.
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("scan interrupted: %w", err)
	}

	reportPath := ""
	if res.ReportNeeded() {
		rep := types.Report{GeneratedAt: now(), Findings: res.Findings}
		if opts.dryRun {
			fmt.Fprintln(stdout)
			if err := report.Render(stdout, rep, format); err != nil {
				return scanerr.NewReportWriteError("render report", err)
			}
		} else {
			reportPath, err = report.Write(cfg.OutputDir, rep, format)
			if err != nil {
				return scanerr.WithHint(err, "check that the output directory is writable")
			}
			fmt.Fprintf(stdout, "Vulnerability report saved to %s\n", reportPath)

			if cfg.Upload.Enabled() {
				if err := uploadReport(ctx, cfg, reportPath, format); err != nil {
					return err
				}
			}
		}
	} else {
		fmt.Fprintln(stdout, noReportReason(res))
	}

	run.Complete(res, outcomes, reportPath, now())
	recordRun(ctx, cfg, run)

	fmt.Fprintln(stdout, "Scan and report generation complete.")

	if gated {
		if highest, ok := analysis.Highest(res.Findings); ok && highest.AtLeast(failOn) {
			return &gateError{msg: fmt.Sprintf("found %s findings at or above --fail-on %s", highest, failOn)}
		}
	}
	return nil
}

func uploadReport(ctx context.Context, cfg *config.Config, reportPath string, format report.Format) error {
	pub, err := newPublisher(cfg)
	if err != nil {
		return scanerr.NewReportWriteError("configure upload", err)
	}
	key, err := pub.Upload(ctx, reportPath, format)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Report uploaded to s3://%s/%s\n", cfg.Upload.Bucket, key)
	return nil
}

// recordRun stores the run when a database is configured. History is
// best effort: failures are logged and never fail the scan.
func recordRun(ctx context.Context, cfg *config.Config, run store.Run) {
	if cfg.DatabaseURL == "" {
		return
	}
	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Warn("failed to open run history", "error", err)
		return
	}
	defer st.Close()

	if err := st.EnsureSchema(ctx); err != nil {
		slog.Warn("failed to prepare run history schema", "error", err)
		return
	}
	if err := st.RecordRun(ctx, run); err != nil {
		slog.Warn("failed to record run", "run", run.ID, "error", err)
		return
	}
	slog.Debug("recorded run", "run", run.ID, "status", run.Status)
}
