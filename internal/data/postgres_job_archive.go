package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/target/selfheal/internal/core"
	"github.com/target/selfheal/internal/data/pgxutil"
	"github.com/target/selfheal/internal/domain/model"
	apperrors "github.com/target/selfheal/internal/errors"
)

// PostgresJobArchive stores job snapshots in the heal_jobs table.
type PostgresJobArchive struct {
	db *sql.DB
}

var (
	_ core.JobArchive    = (*PostgresJobArchive)(nil)
	_ core.ArchivePruner = (*PostgresJobArchive)(nil)
)

// NewPostgresJobArchive creates a PostgresJobArchive over a pgx-backed *sql.DB.
func NewPostgresJobArchive(db *sql.DB) *PostgresJobArchive {
	return &PostgresJobArchive{db: db}
}

// Save upserts the snapshot keyed by job id.
func (a *PostgresJobArchive) Save(ctx context.Context, job *model.Job) error {
	if job == nil || strings.TrimSpace(job.ID) == "" {
		return apperrors.Validation("job id is required")
	}
	snapshot, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}

	const query = `
		INSERT INTO heal_jobs (id, status, snapshot, created_at, finished_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			snapshot = EXCLUDED.snapshot,
			finished_at = EXCLUDED.finished_at`

	var finished sql.NullTime
	if job.FinishedAt != nil {
		finished = sql.NullTime{Time: *job.FinishedAt, Valid: true}
	}
	if _, err := a.db.ExecContext(ctx, query,
		job.ID, string(job.Status), string(snapshot), job.CreatedAt, finished,
	); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, apperrors.MapDBError(err))
	}
	return nil
}

// Get loads a snapshot by id.
func (a *PostgresJobArchive) Get(ctx context.Context, id string) (*model.Job, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.NotFound("Job not found")
	}
	var raw []byte
	err := a.db.QueryRowContext(ctx, `SELECT snapshot FROM heal_jobs WHERE id = $1`, id).Scan(&raw)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	var job model.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	if job.Logs == nil {
		job.Logs = []string{}
	}
	return &job, nil
}

// pruneStatementTimeout bounds the DELETE issued by Prune.
const pruneStatementTimeout = "60s"

// Prune deletes snapshots of jobs that finished before olderThan and returns
// how many rows were removed.
func (a *PostgresJobArchive) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	var removed int64
	err := pgxutil.WithPgxTx(ctx, a.db, pgxutil.TxConfig{
		Opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
		Fn: func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, "SET LOCAL statement_timeout = '"+pruneStatementTimeout+"'"); err != nil {
				return fmt.Errorf("set statement timeout: %w", err)
			}
			tag, err := tx.Exec(ctx,
				`DELETE FROM heal_jobs WHERE finished_at IS NOT NULL AND finished_at < $1`, olderThan)
			if err != nil {
				return err
			}
			removed = tag.RowsAffected()
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("prune heal_jobs: %w", apperrors.MapDBError(err))
	}
	return removed, nil
}
