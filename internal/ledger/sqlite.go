package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/me/jobtree/pkg/model"
)

// SQLiteStore keeps the ledger in a SQLite database. Each record
// carries the invocation that last wrote it, so a row can be traced
// back to a scheduling pass.
type SQLiteStore struct {
	db         *sql.DB
	logger     *slog.Logger
	invocation string
}

// NewSQLiteStore opens (or creates) the database at dbPath and
// ensures the schema exists. Use ":memory:" for tests.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if err := migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &SQLiteStore{
		db:         db,
		logger:     logger.With("component", "ledger"),
		invocation: uuid.NewString(),
	}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (model.Ledger, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs")

	rows, err := s.db.QueryContext(ctx,
		`SELECT job_name, params, run_id, success FROM runs`)
	if err != nil {
		return nil, fmt.Errorf("load runs: %w", err)
	}
	defer rows.Close()

	ledger := make(model.Ledger)
	for rows.Next() {
		var job, paramsJSON, runID string
		var success bool
		if err := rows.Scan(&job, &paramsJSON, &runID, &success); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		var params model.Combination
		if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
			return nil, fmt.Errorf("unmarshal params for %s: %w", job, err)
		}
		ledger.Record(job, &model.RunRecord{
			Params:  params,
			RunID:   runID,
			Success: success,
		})
	}
	return ledger, rows.Err()
}

func (s *SQLiteStore) Save(ctx context.Context, l model.Ledger) error {
	s.logger.Debug("sql", "op", "upsert", "table", "runs", "jobs", len(l))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO runs (job_name, combination_key, params, run_id, success, invocation, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(job_name, combination_key) DO UPDATE SET
			params     = excluded.params,
			run_id     = excluded.run_id,
			success    = excluded.success,
			invocation = excluded.invocation,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare save: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for job, runs := range l {
		for key, rec := range runs {
			paramsJSON, err := json.Marshal(rec.Params)
			if err != nil {
				return fmt.Errorf("marshal params for %s: %w", job, err)
			}
			if _, err := stmt.ExecContext(ctx,
				job, key, string(paramsJSON), rec.RunID, rec.Success, s.invocation, now,
			); err != nil {
				return fmt.Errorf("save run %s %s: %w", job, key, err)
			}
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
