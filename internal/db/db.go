// Package db provides a pgxpool-based connection pool with prepared statement
// registration and health checking. The scraper uses it as an optional run
// ledger; nothing requires a database.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/scoracle-projections/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// Schema creates the ledger tables.
const Schema = `
CREATE TABLE IF NOT EXISTS scrape_runs (
	run_id         TEXT PRIMARY KEY,
	started_at     TIMESTAMPTZ NOT NULL,
	duration_ms    BIGINT NOT NULL,
	succeeded      INT NOT NULL,
	skipped        INT NOT NULL,
	failed         INT NOT NULL,
	records        INT NOT NULL,
	publish_status TEXT NOT NULL,
	publish_reason TEXT NOT NULL DEFAULT '',
	errors         JSONB NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS scrape_targets (
	run_id       TEXT NOT NULL REFERENCES scrape_runs (run_id) ON DELETE CASCADE,
	target       TEXT NOT NULL,
	source       TEXT NOT NULL,
	sport        TEXT NOT NULL,
	stat_type    TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	records      INT NOT NULL,
	reason       TEXT NOT NULL DEFAULT '',
	duration_ms  BIGINT NOT NULL,
	current_file TEXT NOT NULL DEFAULT '',
	history_file TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, target)
);

CREATE INDEX IF NOT EXISTS scrape_runs_started_at_idx ON scrape_runs (started_at DESC);
`

// Migrate applies Schema.
func (p *Pool) Migrate(ctx context.Context) error {
	if _, err := p.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate ledger: %w", err)
	}
	return nil
}

// registerPreparedStatements registers the ledger statements.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		// Health
		"health_check": "SELECT 1",

		// Ledger writes
		"insert_run": `INSERT INTO scrape_runs
			(run_id, started_at, duration_ms, succeeded, skipped, failed, records, publish_status, publish_reason, errors)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (run_id) DO UPDATE SET
				duration_ms = EXCLUDED.duration_ms, succeeded = EXCLUDED.succeeded,
				skipped = EXCLUDED.skipped, failed = EXCLUDED.failed, records = EXCLUDED.records,
				publish_status = EXCLUDED.publish_status, publish_reason = EXCLUDED.publish_reason,
				errors = EXCLUDED.errors`,
		"insert_target": `INSERT INTO scrape_targets
			(run_id, target, source, sport, stat_type, status, records, reason, duration_ms, current_file, history_file)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (run_id, target) DO UPDATE SET
				status = EXCLUDED.status, records = EXCLUDED.records, reason = EXCLUDED.reason,
				duration_ms = EXCLUDED.duration_ms, current_file = EXCLUDED.current_file,
				history_file = EXCLUDED.history_file`,

		// Ledger reads
		"recent_runs": `SELECT run_id, started_at, duration_ms, succeeded, skipped, failed, records, publish_status, publish_reason
			FROM scrape_runs ORDER BY started_at DESC LIMIT $1`,
		"run_targets": `SELECT target, source, sport, stat_type, status, records, reason, duration_ms, current_file, history_file
			FROM scrape_targets WHERE run_id = $1 ORDER BY target`,
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
