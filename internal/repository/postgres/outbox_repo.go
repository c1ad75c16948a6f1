package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/microloan/backend/internal/jobs"
	"github.com/microloan/backend/internal/ws"
)

type OutboxRepository struct {
	pool *pgxpool.Pool
}

func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

func (r *OutboxRepository) Enqueue(ctx context.Context, topic string, payload []byte) error {
	q := `INSERT INTO outbox_jobs (topic, payload, status) VALUES ($1, $2::jsonb, 'pending')`
	_, err := r.pool.Exec(ctx, q, topic, payload)
	return err
}

// enqueueTx writes an outbox row inside the caller's transaction so the event
// commits or rolls back with the state change it describes.
func enqueueTx(ctx context.Context, tx pgx.Tx, topic string, payload []byte) error {
	_, err := tx.Exec(ctx, `INSERT INTO outbox_jobs (topic, payload, status) VALUES ($1, $2::jsonb, 'pending')`, topic, payload)
	return err
}

// ClaimPending moves due jobs to processing. Rows stuck in processing for
// five minutes are reclaimed, which covers a worker that died mid-batch.
func (r *OutboxRepository) ClaimPending(ctx context.Context, limit int32) ([]jobs.OutboxJob, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `
WITH candidates AS (
  SELECT id
  FROM outbox_jobs
  WHERE (status = 'pending' AND available_at <= NOW())
     OR (status = 'processing' AND updated_at < NOW() - INTERVAL '5 minutes')
  ORDER BY id
  LIMIT $1
  FOR UPDATE SKIP LOCKED
)
UPDATE outbox_jobs AS o
SET status = 'processing', attempts = o.attempts + 1, updated_at = NOW()
FROM candidates
WHERE o.id = candidates.id
RETURNING o.id, o.topic, o.payload::text, o.status, o.attempts, o.last_error, o.available_at
`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]jobs.OutboxJob, 0, limit)
	for rows.Next() {
		var (
			job     jobs.OutboxJob
			payload string
		)
		if err := rows.Scan(&job.ID, &job.Topic, &payload, &job.Status, &job.Attempts, &job.LastError, &job.AvailableAt); err != nil {
			return nil, err
		}
		job.Payload = []byte(payload)
		out = append(out, job)
	}
	return out, rows.Err()
}

func (r *OutboxRepository) MarkDone(ctx context.Context, jobID int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE outbox_jobs SET status = 'done', last_error = '', updated_at = NOW() WHERE id = $1`, jobID)
	return err
}

func (r *OutboxRepository) MarkRetry(ctx context.Context, jobID int64, nextAvailableAt time.Time, lastError string) error {
	_, err := r.pool.Exec(ctx, `
UPDATE outbox_jobs
SET status = 'pending', available_at = $2, last_error = $3, updated_at = NOW()
WHERE id = $1
`, jobID, nextAvailableAt, truncate(lastError, 2000))
	return err
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, jobID int64, lastError string) error {
	_, err := r.pool.Exec(ctx, `UPDATE outbox_jobs SET status = 'failed', last_error = $2, updated_at = NOW() WHERE id = $1`, jobID, truncate(lastError, 2000))
	return err
}

func (r *OutboxRepository) ListUserEventsSince(ctx context.Context, lastID int64, limit int32) ([]ws.UserEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `
SELECT id, topic, COALESCE(payload->>'user_id', ''), payload::text, created_at
FROM outbox_jobs
WHERE id > $1
ORDER BY id ASC
LIMIT $2
`
	rows, err := r.pool.Query(ctx, q, lastID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ws.UserEvent, 0)
	for rows.Next() {
		var (
			ev      ws.UserEvent
			payload string
		)
		if err := rows.Scan(&ev.ID, &ev.Topic, &ev.UserID, &payload, &ev.RecordedAt); err != nil {
			return nil, err
		}
		ev.Payload = []byte(payload)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *OutboxRepository) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM outbox_jobs`).Scan(&id)
	return id, err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
