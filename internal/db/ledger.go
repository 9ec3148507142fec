package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/albapepper/scoracle-projections/internal/orchestrator"
)

// RunRow is one scrape_runs row.
type RunRow struct {
	RunID         string    `db:"run_id" json:"run_id"`
	StartedAt     time.Time `db:"started_at" json:"started_at"`
	DurationMS    int64     `db:"duration_ms" json:"duration_ms"`
	Succeeded     int       `db:"succeeded" json:"succeeded"`
	Skipped       int       `db:"skipped" json:"skipped"`
	Failed        int       `db:"failed" json:"failed"`
	Records       int       `db:"records" json:"records"`
	PublishStatus string    `db:"publish_status" json:"publish_status"`
	PublishReason string    `db:"publish_reason" json:"publish_reason,omitempty"`
}

// TargetRow is one scrape_targets row.
type TargetRow struct {
	Target      string `db:"target" json:"target"`
	Source      string `db:"source" json:"source"`
	Sport       string `db:"sport" json:"sport"`
	StatType    string `db:"stat_type" json:"stat_type,omitempty"`
	Status      string `db:"status" json:"status"`
	Records     int    `db:"records" json:"records"`
	Reason      string `db:"reason" json:"reason,omitempty"`
	DurationMS  int64  `db:"duration_ms" json:"duration_ms"`
	CurrentFile string `db:"current_file" json:"current_file,omitempty"`
	HistoryFile string `db:"history_file" json:"history_file,omitempty"`
}

// Ledger persists run results. It implements orchestrator.Recorder.
type Ledger struct {
	pool   *Pool
	logger *slog.Logger
}

// NewLedger creates a ledger over pool.
func NewLedger(pool *Pool, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{pool: pool, logger: logger}
}

// Record upserts the run and its targets in one transaction.
func (l *Ledger) Record(ctx context.Context, r *orchestrator.RunResult) error {
	errs := r.Errors
	if errs == nil {
		errs = []string{}
	}
	err := pgx.BeginFunc(ctx, l.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "insert_run",
			r.RunID, r.StartedAt, r.Duration.Milliseconds(),
			r.Succeeded(), r.Skipped(), r.Failed(), r.Records(),
			string(r.Publish.Status), r.Publish.Reason, errs,
		); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		batch := &pgx.Batch{}
		for _, t := range r.Targets {
			o := t.Outcome
			batch.Queue("insert_target",
				r.RunID, t.Key, t.SourceID, t.Sport, t.StatType,
				string(o.Status), o.Records, o.Reason, o.Duration.Milliseconds(),
				o.Current, o.History,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert targets: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	l.logger.Info("Run recorded", "run", r.RunID, "targets", len(r.Targets))
	return nil
}

// RecentRuns returns the newest runs first.
func (l *Ledger) RecentRuns(ctx context.Context, limit int) ([]RunRow, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := l.pool.Query(ctx, "recent_runs", limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[RunRow])
}

// RunTargets returns the target rows of one run.
func (l *Ledger) RunTargets(ctx context.Context, runID string) ([]TargetRow, error) {
	rows, err := l.pool.Query(ctx, "run_targets", runID)
	if err != nil {
		return nil, fmt.Errorf("query targets: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[TargetRow])
}

var _ orchestrator.Recorder = (*Ledger)(nil)
