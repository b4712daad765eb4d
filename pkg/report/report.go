// Package report writes aggregated findings to a dated report file.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	scanerr "github.com/northcutted/chart-scan/pkg/errors"
	"github.com/northcutted/chart-scan/pkg/types"
)

// Format selects the on-disk encoding of a report.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Columns is the header row shared by every format.
var Columns = []string{"image:tag", "component/library", "vulnerability", "severity"}

// ParseFormat validates a format name. An empty name selects CSV.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(name)); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatJSON, FormatMarkdown:
		return f, nil
	case "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unknown report format %q (supported: csv, json, markdown)", name)
	}
}

// Extension returns the file extension for the format, including the dot.
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return ".json"
	case FormatMarkdown:
		return ".md"
	default:
		return ".csv"
	}
}

// ContentType returns the MIME type used when publishing the report.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatMarkdown:
		return "text/markdown"
	default:
		return "text/csv"
	}
}

// FileName returns "<YYYY-MM-DD>_vulnerability_report.<ext>" using the
// local date of now.
func FileName(now time.Time, format Format) string {
	return now.Local().Format("2006-01-02") + "_vulnerability_report" + format.Extension()
}

// Write renders rep into dir, replacing any report already written for the
// same date, and returns the file path. The report is rendered to a
// temporary file first, so a failed write leaves an earlier report intact.
// Failures are report write errors.
func Write(dir string, rep types.Report, format Format) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", scanerr.NewReportWriteError("create report directory", err)
	}

	path := filepath.Join(dir, FileName(rep.GeneratedAt, format))
	f, err := os.CreateTemp(dir, ".report-*.tmp")
	if err != nil {
		return "", scanerr.NewReportWriteError("create report file", err)
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if err := Render(f, rep, format); err != nil {
		_ = f.Close()
		return "", scanerr.NewReportWriteError("write report", err)
	}
	if err := f.Chmod(0o644); err != nil {
		_ = f.Close()
		return "", scanerr.NewReportWriteError("write report", err)
	}
	if err := f.Close(); err != nil {
		return "", scanerr.NewReportWriteError("close report file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", scanerr.NewReportWriteError("replace report file", err)
	}
	return path, nil
}

// Render encodes rep to w.
func Render(w io.Writer, rep types.Report, format Format) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, rep)
	case FormatMarkdown:
		return renderMarkdown(w, rep)
	default:
		return renderCSV(w, rep)
	}
}

func row(f types.Finding) []string {
	return []string{string(f.Image), f.Component, f.VulnerabilityID, f.Severity.String()}
}

func renderCSV(w io.Writer, rep types.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, f := range rep.Findings {
		if err := cw.Write(row(f)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type jsonRow struct {
	Image         string `json:"image:tag"`
	Component     string `json:"component/library"`
	Vulnerability string `json:"vulnerability"`
	Severity      string `json:"severity"`
}

func renderJSON(w io.Writer, rep types.Report) error {
	doc := struct {
		GeneratedAt time.Time `json:"generated_at"`
		Findings    []jsonRow `json:"findings"`
	}{
		GeneratedAt: rep.GeneratedAt,
		Findings:    make([]jsonRow, 0, len(rep.Findings)),
	}
	for _, f := range rep.Findings {
		doc.Findings = append(doc.Findings, jsonRow{
			Image:         string(f.Image),
			Component:     f.Component,
			Vulnerability: f.VulnerabilityID,
			Severity:      f.Severity.String(),
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

const markdownTemplate = `# Vulnerability Report

Generated: {{ .GeneratedAt.Format "2006-01-02 15:04:05 MST" }}

| image:tag | component/library | vulnerability | severity |
|-----------|-------------------|---------------|----------|
{{- range .Findings }}
| {{ cell .Image }} | {{ cell .Component }} | {{ cell .VulnerabilityID }} | {{ .Severity }} |
{{- end }}
`

var mdTmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"cell": func(v any) string {
		return strings.ReplaceAll(fmt.Sprint(v), "|", `\|`)
	},
}).Parse(markdownTemplate))

func renderMarkdown(w io.Writer, rep types.Report) error {
	return mdTmpl.Execute(w, rep)
}
