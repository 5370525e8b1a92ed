package ledger

import (
	"context"
	"database/sql"
)

// schema contains the DDL for the run ledger. Each statement uses IF
// NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		job_name        TEXT NOT NULL,
		combination_key TEXT NOT NULL,
		params          TEXT NOT NULL,
		run_id          TEXT NOT NULL,
		success         INTEGER NOT NULL DEFAULT 0,
		invocation      TEXT NOT NULL DEFAULT '',
		updated_at      TEXT NOT NULL,
		PRIMARY KEY (job_name, combination_key)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_runs_job_name ON runs(job_name)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_run_id ON runs(run_id)`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
