package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-media-relay/internal/domain"
	"telegram-media-relay/internal/domain/model"
	"telegram-media-relay/internal/domain/ports/repository"
)

var _ repository.JobHistoryRepository = (*jobHistoryRepo)(nil)

type jobHistoryRepo struct {
	pool *pgxpool.Pool
	txm  repository.TransactionManager
	keep int
}

// NewJobHistoryRepo keeps at most keep records per user; keep <= 0 keeps everything.
func NewJobHistoryRepo(pool *pgxpool.Pool, keep int) repository.JobHistoryRepository {
	return &jobHistoryRepo{pool: pool, txm: NewTxManager(pool), keep: keep}
}

// Save upserts rec and trims the user's history in the same transaction. A caller-supplied
// tx is used as is.
func (r *jobHistoryRepo) Save(ctx context.Context, tx repository.Tx, rec *model.JobRecord) error {
	if tx == nil && r.keep > 0 {
		return r.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			return r.Save(ctx, tx, rec)
		})
	}
	if err := r.upsert(ctx, tx, rec); err != nil {
		return err
	}
	if r.keep > 0 {
		return r.trim(ctx, tx, rec.RequesterID)
	}
	return nil
}

func (r *jobHistoryRepo) upsert(ctx context.Context, tx repository.Tx, rec *model.JobRecord) error {
	const q = `
INSERT INTO job_history (job_id, tg_id, kind, source, file_name, status, result, error, enqueued_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (job_id) DO UPDATE SET
    file_name   = EXCLUDED.file_name,
    status      = EXCLUDED.status,
    result      = EXCLUDED.result,
    error       = EXCLUDED.error,
    finished_at = EXCLUDED.finished_at`

	_, err := execSQL(ctx, r.pool, tx, q,
		rec.JobID, rec.RequesterID, string(rec.Kind), rec.Source, rec.FileName,
		string(rec.Status), rec.Result, rec.Error, rec.EnqueuedAt, rec.FinishedAt,
	)
	return err
}

func (r *jobHistoryRepo) trim(ctx context.Context, tx repository.Tx, tgID int64) error {
	const q = `
DELETE FROM job_history
WHERE tg_id = $1
  AND job_id NOT IN (
    SELECT job_id FROM job_history
    WHERE tg_id = $1
    ORDER BY finished_at DESC
    LIMIT $2
  )`

	_, err := execSQL(ctx, r.pool, tx, q, tgID, r.keep)
	return err
}

func (r *jobHistoryRepo) ListRecent(ctx context.Context, tx repository.Tx, tgID int64, limit int) ([]*model.JobRecord, error) {
	const q = `
SELECT job_id, tg_id, kind, source, file_name, status, result, error, enqueued_at, finished_at
FROM job_history
WHERE tg_id = $1
ORDER BY finished_at DESC
LIMIT $2`

	rows, err := queryRows(ctx, r.pool, tx, q, tgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.JobRecord
	for rows.Next() {
		var (
			rec          model.JobRecord
			kind, status string
		)
		if err := rows.Scan(&rec.JobID, &rec.RequesterID, &kind, &rec.Source, &rec.FileName,
			&status, &rec.Result, &rec.Error, &rec.EnqueuedAt, &rec.FinishedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		rec.Kind = model.InputKind(kind)
		rec.Status = model.JobStatus(status)
		out = append(out, &rec)
	}
	return out, rows.Err()
}
