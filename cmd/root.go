package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	scanerr "github.com/northcutted/chart-scan/pkg/errors"
)

// stdout receives the console summary. Tests swap it for a buffer.
var stdout io.Writer = os.Stdout

// options holds the flag values of one command instance.
type options struct {
	configFile  string
	threshold   string
	failOn      string
	concurrency int
	scanner     string
	format      string
	outputDir   string
	helmRepo    string
	helmValues  []string
	dryRun      bool
	verbose     bool
}

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "chart-scan <chart> <version>",
		Short: "Scan every container image of a Helm chart for vulnerabilities",
		Long: `Render a Helm chart, collect the container images it deploys, scan each
image for known vulnerabilities and write the findings at or above a severity
threshold to a dated report.

Images are scanned concurrently. An image that fails to scan is reported but
does not stop the run; a chart that fails to render or a report that cannot be
written does.`,
		Example: `  # Scan a chart from a configured repository
  chart-scan bitnami/nginx 15.14.0

  # Only report High and Critical findings, as JSON
  chart-scan bitnami/nginx 15.14.0 --threshold high --format json

  # Use trivy instead of grype and fail the build on Critical findings
  chart-scan ./charts/app 1.2.3 --scanner trivy --fail-on critical`,
		Args:          cobra.ExactArgs(2),
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(opts.verbose)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Argument errors above print usage; run errors do not.
			cmd.SilenceUsage = true
			return runScan(cmd, opts, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&opts.configFile, "config", "", "Path to config file (default: chart-scan.yaml if present)")
	cmd.Flags().StringVarP(&opts.threshold, "threshold", "t", "", "Minimum severity to report: negligible, low, medium, high, critical (default medium)")
	cmd.Flags().StringVar(&opts.failOn, "fail-on", "", "Exit with status 2 if a reported finding is at or above this severity")
	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "c", 0, "Number of images to scan in parallel (default min(CPUs, 4))")
	cmd.Flags().StringVar(&opts.scanner, "scanner", "", "Vulnerability scanner to use: grype or trivy (default grype)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "Report format: csv, json or markdown (default csv)")
	cmd.Flags().StringVarP(&opts.outputDir, "output-dir", "o", "", "Directory to write the report to (default .)")
	cmd.Flags().StringVar(&opts.helmRepo, "repo", "", "Chart repository URL passed to 'helm template --repo'")
	cmd.Flags().StringSliceVar(&opts.helmValues, "values", nil, "Values files passed to 'helm template --values'")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Print the report to stdout instead of writing a file")
	cmd.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging")

	cmd.AddCommand(newVersionCmd())
	cmd.Version = Version
	cmd.SetVersionTemplate("chart-scan {{.Version}}\n")

	return cmd
}

// Execute runs the root cobra command and exits on error. SIGINT and
// SIGTERM cancel the run context, which stops in-flight scans.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		for _, hint := range scanerr.Hints(err) {
			fmt.Fprintln(os.Stderr, "Hint:", hint)
		}
		os.Exit(exitCode(err))
	}
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// gateError signals that findings crossed the --fail-on severity.
type gateError struct {
	msg string
}

func (e *gateError) Error() string { return e.msg }

func exitCode(err error) int {
	var gate *gateError
	if errors.As(err, &gate) {
		return 2
	}
	return 1
}
