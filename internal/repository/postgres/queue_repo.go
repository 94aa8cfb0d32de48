package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Herald/internal/domain/queue"
	"github.com/google/uuid"
)

var _ queue.Repository = (*QueueRepo)(nil)

// QueueRepo is a persistent timer table: rows become visible to the runner
// once due_at has passed.
type QueueRepo struct{ db *DB }

func NewQueueRepo(db *DB) *QueueRepo { return &QueueRepo{db: db} }

const (
	qTaskEnqueue = `
INSERT INTO queue_tasks (id, kind, payload, status, due_at)
VALUES ($1, $2, $3, 'PENDING', now() + $4::interval);`

	qTaskPick = `
WITH cand AS (
   SELECT id
   FROM queue_tasks
   WHERE (status = 'PENDING' AND due_at <= now())
      OR (status = 'RUNNING' AND updated_at < now() - $2::interval)
   ORDER BY due_at
   LIMIT $1
   FOR UPDATE SKIP LOCKED
)
UPDATE queue_tasks t
SET status = 'RUNNING', attempts = t.attempts + 1, updated_at = now()
FROM cand
WHERE t.id = cand.id
RETURNING t.id, t.kind, t.payload, t.status, t.attempts, t.due_at, t.created_at, t.updated_at;`

	qTaskComplete = `
DELETE FROM queue_tasks WHERE id = $1;`

	qTaskRetry = `
UPDATE queue_tasks
SET status = 'PENDING', due_at = now() + $2::interval, last_error = $3, updated_at = now()
WHERE id = $1;`

	qTaskPark = `
UPDATE queue_tasks
SET status = 'FAILED', last_error = $2, updated_at = now()
WHERE id = $1;`

	qTaskChangeDelay = `
UPDATE queue_tasks
SET due_at = now() + $2::interval, updated_at = now()
WHERE id = $1 AND status = 'PENDING';`

	qTaskRemove = `
DELETE FROM queue_tasks WHERE id = $1 AND status = 'PENDING';`

	qTaskUpdatePayload = `
UPDATE queue_tasks
SET payload = $2, updated_at = now()
WHERE id = $1 AND status = 'PENDING';`
)

func (r *QueueRepo) Enqueue(ctx context.Context, kind queue.Kind, payload []byte, delay time.Duration) (string, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	id := uuid.NewString()
	if _, err := r.db.execQueryer(ctx).Exec(ctx, qTaskEnqueue, id, string(kind), payload, pgInterval(delay)); err != nil {
		return "", fmt.Errorf("enqueue task: %w", err)
	}
	return id, nil
}

func (r *QueueRepo) ChangeDelay(ctx context.Context, handle string, delay time.Duration) error {
	return r.pendingExec(ctx, "change task delay", qTaskChangeDelay, handle, pgInterval(delay))
}

func (r *QueueRepo) Remove(ctx context.Context, handle string) error {
	return r.pendingExec(ctx, "remove task", qTaskRemove, handle)
}

func (r *QueueRepo) UpdatePayload(ctx context.Context, handle string, payload []byte) error {
	return r.pendingExec(ctx, "update task payload", qTaskUpdatePayload, handle, payload)
}

func (r *QueueRepo) PickDue(ctx context.Context, batch int, inProgressTTL time.Duration) ([]queue.Task, error) {
	if batch <= 0 {
		return nil, errors.New("batch must be > 0")
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, qTaskPick, batch, pgInterval(inProgressTTL))
	if err != nil {
		return nil, fmt.Errorf("queue pick: %w", err)
	}
	defer rows.Close()

	var out []queue.Task
	for rows.Next() {
		var (
			t            queue.Task
			kind, status string
		)
		if err := rows.Scan(&t.ID, &kind, &t.Payload, &status, &t.Attempts, &t.DueAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("queue scan: %w", err)
		}
		t.Kind = queue.Kind(kind)
		t.Status = queue.Status(status)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *QueueRepo) Complete(ctx context.Context, id string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()
	if _, err := r.db.execQueryer(ctx).Exec(ctx, qTaskComplete, id); err != nil {
		return fmt.Errorf("queue complete: %w", err)
	}
	return nil
}

func (r *QueueRepo) Retry(ctx context.Context, id string, delay time.Duration, cause string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()
	if _, err := r.db.execQueryer(ctx).Exec(ctx, qTaskRetry, id, pgInterval(delay), cause); err != nil {
		return fmt.Errorf("queue retry: %w", err)
	}
	return nil
}

func (r *QueueRepo) Park(ctx context.Context, id string, cause string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()
	if _, err := r.db.execQueryer(ctx).Exec(ctx, qTaskPark, id, cause); err != nil {
		return fmt.Errorf("queue park: %w", err)
	}
	return nil
}

func (r *QueueRepo) pendingExec(ctx context.Context, what, q string, args ...any) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if tag.RowsAffected() == 0 {
		return queue.ErrTaskNotPending
	}
	return nil
}
