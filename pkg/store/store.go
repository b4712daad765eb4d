// Package store records scan runs in PostgreSQL for auditing.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/northcutted/chart-scan/pkg/analysis"
	"github.com/northcutted/chart-scan/pkg/types"
)

const batchSize = 100

type Store struct{ Pool *pgxpool.Pool }

func Open(ctx context.Context, url string) (*Store, error) {
	p, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: p}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.Pool.Ping(ctx) }

func (s *Store) Close() { s.Pool.Close() }

// Failure is one image that could not be scanned.
type Failure struct {
	Image types.ImageReference
	Error string
}

// Run is the audit record of one invocation.
type Run struct {
	ID         uuid.UUID
	App        string
	Version    string
	Scanner    string
	Threshold  types.Severity
	Status     types.Status
	Summary    types.Summary
	ReportPath string
	StartedAt  time.Time
	FinishedAt time.Time
	Findings   []types.Finding
	Failures   []Failure
}

// NewRun starts a run record with a fresh ID.
func NewRun(app, version, scanner string, startedAt time.Time) Run {
	return Run{
		ID:        uuid.New(),
		App:       app,
		Version:   version,
		Scanner:   scanner,
		StartedAt: startedAt,
	}
}

// Complete fills the record from an aggregation result and the raw
// outcomes (for failure causes).
func (r *Run) Complete(res analysis.Result, outcomes []types.ScanOutcome, reportPath string, finishedAt time.Time) {
	r.Threshold = res.Threshold
	r.Summary = res.Summary
	r.Status = res.Summary.Status()
	r.Findings = res.Findings
	r.ReportPath = reportPath
	r.FinishedAt = finishedAt
	r.Failures = r.Failures[:0]
	for _, o := range outcomes {
		if o.Failed() {
			r.Failures = append(r.Failures, Failure{Image: o.Image, Error: o.Err.Error()})
		}
	}
}

// RecordRun stores run, its findings and its failures in one transaction.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO scan_runs (
		  id, app, version, scanner, threshold, status,
		  images, scanned, failed, findings, below_threshold,
		  report_path, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, run.ID, run.App, run.Version, run.Scanner, run.Threshold.String(), string(run.Status),
		run.Summary.Images, run.Summary.Scanned, run.Summary.Failed, run.Summary.Findings, run.Summary.BelowThreshold,
		nullableString(run.ReportPath), run.StartedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for start := 0; start < len(run.Findings); start += batchSize {
		end := min(start+batchSize, len(run.Findings))
		sql, args := findingsInsert(run.ID, start, run.Findings[start:end])
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("batch insert findings: %w", err)
		}
	}

	if len(run.Failures) > 0 {
		batch := &pgx.Batch{}
		for _, f := range run.Failures {
			batch.Queue(`INSERT INTO scan_failures (run_id, image, error) VALUES ($1, $2, $3)`, run.ID, string(f.Image), f.Error)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert failures: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// findingsInsert builds a multi-value INSERT for one chunk. offset is the
// position of the chunk's first finding within the run, kept as the row
// ordinal so reports can be reproduced in order.
func findingsInsert(runID uuid.UUID, offset int, chunk []types.Finding) (string, []any) {
	const colCount = 7
	var sb strings.Builder
	sb.WriteString(`
INSERT INTO scan_findings (
  run_id, ordinal, image, component, version, vulnerability, severity
) VALUES `)
	args := make([]any, 0, len(chunk)*colCount)
	for i, f := range chunk {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i*colCount + 1
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base, base+1, base+2, base+3, base+4, base+5, base+6)
		args = append(args,
			runID,
			offset+i,
			string(f.Image),
			f.Component,
			nullableString(f.Version),
			f.VulnerabilityID,
			f.Severity.String(),
		)
	}
	return sb.String(), args
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// EnsureSchema creates the audit tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS scan_runs (
  id UUID PRIMARY KEY,
  app TEXT NOT NULL,
  version TEXT NOT NULL,
  scanner TEXT NOT NULL,
  threshold TEXT NOT NULL,
  status TEXT NOT NULL CHECK (status IN ('no-images','clean','findings','all-failed','partial-failure')),
  images INTEGER NOT NULL,
  scanned INTEGER NOT NULL,
  failed INTEGER NOT NULL,
  findings INTEGER NOT NULL,
  below_threshold INTEGER NOT NULL,
  report_path TEXT,
  started_at TIMESTAMPTZ NOT NULL,
  finished_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS scan_findings (
  run_id UUID NOT NULL REFERENCES scan_runs(id) ON DELETE CASCADE,
  ordinal INTEGER NOT NULL,
  image TEXT NOT NULL,
  component TEXT NOT NULL,
  version TEXT,
  vulnerability TEXT NOT NULL,
  severity TEXT NOT NULL,
  PRIMARY KEY (run_id, ordinal)
);

CREATE TABLE IF NOT EXISTS scan_failures (
  run_id UUID NOT NULL REFERENCES scan_runs(id) ON DELETE CASCADE,
  image TEXT NOT NULL,
  error TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS scan_runs_app_idx ON scan_runs (app, version, started_at DESC);
`)
	return err
}
