package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/NordCoder/Herald/internal/domain/job"
	"github.com/NordCoder/Herald/internal/domain/paging"
	"github.com/jackc/pgx/v5"
)

var _ job.Repo = (*JobRepo)(nil)

type JobRepo struct{ db *DB }

func NewJobRepo(db *DB) *JobRepo { return &JobRepo{db: db} }

const (
	jobColumns = `id, title, text, link_url, link_text, receiver_group,
       receiver_country, receiver_institute_ids, receiver_course_ids,
       schedule_date, send_email, is_sent, queue_job_id, created_at, updated_at`

	qJobInsert = `
INSERT INTO notification_jobs (id, title, text, link_url, link_text, receiver_group,
                               receiver_country, receiver_institute_ids, receiver_course_ids,
                               schedule_date, send_email, is_sent, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, FALSE, $12, $12);`

	qJobByID = `
SELECT ` + jobColumns + `
FROM notification_jobs
WHERE id = $1;`

	qJobUpdate = `
UPDATE notification_jobs
SET title = $2,
    text = $3,
    link_url = $4,
    link_text = $5,
    receiver_group = $6,
    receiver_country = $7,
    receiver_institute_ids = $8,
    receiver_course_ids = $9,
    schedule_date = $10,
    send_email = $11,
    updated_at = $12
WHERE id = $1 AND is_sent = FALSE;`

	qJobDelete = `
DELETE FROM notification_jobs
WHERE id = $1 AND is_sent = FALSE;`

	qJobMarkSent = `
UPDATE notification_jobs
SET is_sent = TRUE, updated_at = now()
WHERE id = $1 AND is_sent = FALSE;`

	qJobSetQueue = `
UPDATE notification_jobs
SET queue_job_id = $2
WHERE id = $1;`

	qJobIsSent = `
SELECT is_sent FROM notification_jobs WHERE id = $1;`

	qJobList = `
SELECT ` + jobColumns + `
FROM notification_jobs
WHERE ($1::boolean IS NULL OR is_sent = $1)
ORDER BY created_at DESC, id
LIMIT $2 OFFSET $3;`

	qJobCount = `
SELECT count(*) FROM notification_jobs
WHERE ($1::boolean IS NULL OR is_sent = $1);`
)

func (r *JobRepo) Create(ctx context.Context, j *job.Job) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	_, err := r.db.execQueryer(ctx).Exec(ctx, qJobInsert,
		j.ID,
		j.Title,
		j.Text,
		j.LinkURL,
		j.LinkText,
		string(j.ReceiverGroup),
		textArray(j.ReceiverCountry),
		textArray(j.ReceiverInstituteIDs),
		textArray(j.ReceiverCourseIDs),
		j.ScheduleDate,
		j.SendEmail,
		j.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification job: %w", err)
	}
	return nil
}

func (r *JobRepo) GetByID(ctx context.Context, id string) (*job.Job, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	j, err := scanJob(r.db.execQueryer(ctx).QueryRow(ctx, qJobByID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, job.ErrNotFound
		}
		return nil, fmt.Errorf("get notification job: %w", err)
	}
	return j, nil
}

func (r *JobRepo) Update(ctx context.Context, j *job.Job) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	tag, err := eq.Exec(ctx, qJobUpdate,
		j.ID,
		j.Title,
		j.Text,
		j.LinkURL,
		j.LinkText,
		string(j.ReceiverGroup),
		textArray(j.ReceiverCountry),
		textArray(j.ReceiverInstituteIDs),
		textArray(j.ReceiverCourseIDs),
		j.ScheduleDate,
		j.SendEmail,
		j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update notification job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrSent(ctx, eq, j.ID)
	}
	return nil
}

func (r *JobRepo) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	tag, err := eq.Exec(ctx, qJobDelete, id)
	if err != nil {
		return fmt.Errorf("delete notification job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrSent(ctx, eq, id)
	}
	return nil
}

func (r *JobRepo) MarkSent(ctx context.Context, id string) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qJobMarkSent, id)
	if err != nil {
		return false, fmt.Errorf("mark notification job sent: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *JobRepo) SetQueueJobID(ctx context.Context, id, handle string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qJobSetQueue, id, handle)
	if err != nil {
		return fmt.Errorf("set queue job id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return job.ErrNotFound
	}
	return nil
}

func (r *JobRepo) List(ctx context.Context, f job.Filter, p paging.Page) ([]*job.Job, int, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)

	var total int
	if err := eq.QueryRow(ctx, qJobCount, f.IsSent).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notification jobs: %w", err)
	}

	rows, err := eq.Query(ctx, qJobList, f.IsSent, p.Limit, p.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("query notification jobs: %w", err)
	}
	defer rows.Close()

	out := make([]*job.Job, 0, p.Limit)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan notification job: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows: %w", err)
	}
	return out, total, nil
}

func (r *JobRepo) missingOrSent(ctx context.Context, eq execQueryer, id string) error {
	var sent bool
	if err := eq.QueryRow(ctx, qJobIsSent, id).Scan(&sent); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return job.ErrNotFound
		}
		return fmt.Errorf("check notification job: %w", err)
	}
	if sent {
		return job.ErrAlreadySent
	}
	return fmt.Errorf("notification job %s was not modified", id)
}

func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j     job.Job
		group string
	)
	if err := row.Scan(
		&j.ID,
		&j.Title,
		&j.Text,
		&j.LinkURL,
		&j.LinkText,
		&group,
		&j.ReceiverCountry,
		&j.ReceiverInstituteIDs,
		&j.ReceiverCourseIDs,
		&j.ScheduleDate,
		&j.SendEmail,
		&j.IsSent,
		&j.QueueJobID,
		&j.CreatedAt,
		&j.UpdatedAt,
	); err != nil {
		return nil, err
	}
	j.ReceiverGroup = job.ReceiverGroup(group)
	return &j, nil
}
