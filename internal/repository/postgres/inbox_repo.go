package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Herald/internal/domain/inbox"
	"github.com/NordCoder/Herald/internal/domain/paging"
	"github.com/jackc/pgx/v5"
)

var _ inbox.Repo = (*InboxRepo)(nil)

type InboxRepo struct{ db *DB }

func NewInboxRepo(db *DB) *InboxRepo { return &InboxRepo{db: db} }

const (
	inboxColumns = `id, notification_id, user_id, title, text, link_url, link_text, sent_at, read_at, seen_at`

	qInboxBulkInsert = `
INSERT INTO user_notifications (id, notification_id, user_id, title, text, link_url, link_text, sent_at)
SELECT *
FROM unnest($1::text[], $2::text[], $3::text[], $4::text[], $5::text[], $6::text[], $7::text[], $8::timestamptz[])
ON CONFLICT (id) DO NOTHING;`

	qInboxByID = `
SELECT ` + inboxColumns + `
FROM user_notifications
WHERE id = $1;`

	// Rows without a link have nothing to open, so seen implies read.
	qInboxMarkSeen = `
UPDATE user_notifications
SET seen_at = COALESCE(seen_at, $2),
    read_at = CASE WHEN link_url IS NULL THEN COALESCE(read_at, $2) ELSE read_at END
WHERE id = ANY($1)
  AND (seen_at IS NULL OR (link_url IS NULL AND read_at IS NULL));`

	qInboxMarkRead = `
UPDATE user_notifications
SET read_at = COALESCE(read_at, $2),
    seen_at = COALESCE(seen_at, $2)
WHERE id = $1;`

	qInboxByUser = `
SELECT ` + inboxColumns + `
FROM user_notifications
WHERE user_id = $1
ORDER BY sent_at DESC NULLS LAST, id
LIMIT $2 OFFSET $3;`

	qInboxCountByUser = `
SELECT count(*) FROM user_notifications WHERE user_id = $1;`
)

func (r *InboxRepo) BulkCreate(ctx context.Context, rows []*inbox.Notification) error {
	if len(rows) == 0 {
		return nil
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var (
		ids       = make([]string, len(rows))
		jobIDs    = make([]*string, len(rows))
		userIDs   = make([]string, len(rows))
		titles    = make([]string, len(rows))
		texts     = make([]string, len(rows))
		linkURLs  = make([]*string, len(rows))
		linkTexts = make([]*string, len(rows))
		sentAts   = make([]*time.Time, len(rows))
	)
	for i, n := range rows {
		ids[i] = n.ID
		jobIDs[i] = n.NotificationID
		userIDs[i] = n.UserID
		titles[i] = n.Title
		texts[i] = n.Text
		linkURLs[i] = n.LinkURL
		linkTexts[i] = n.LinkText
		sentAts[i] = n.SentAt
	}

	if _, err := r.db.execQueryer(ctx).Exec(ctx, qInboxBulkInsert,
		ids, jobIDs, userIDs, titles, texts, linkURLs, linkTexts, sentAts,
	); err != nil {
		return fmt.Errorf("bulk insert user notifications: %w", err)
	}
	return nil
}

func (r *InboxRepo) Get(ctx context.Context, id string) (*inbox.Notification, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	n, err := scanInbox(r.db.execQueryer(ctx).QueryRow(ctx, qInboxByID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, inbox.ErrNotFound
		}
		return nil, fmt.Errorf("get user notification: %w", err)
	}
	return n, nil
}

func (r *InboxRepo) MarkSeen(ctx context.Context, ids []string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qInboxMarkSeen, ids, at)
	if err != nil {
		return 0, fmt.Errorf("mark user notifications seen: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *InboxRepo) MarkRead(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qInboxMarkRead, id, at)
	if err != nil {
		return fmt.Errorf("mark user notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return inbox.ErrNotFound
	}
	return nil
}

func (r *InboxRepo) ListByUser(ctx context.Context, userID string, p paging.Page) ([]*inbox.Notification, int, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)

	var total int
	if err := eq.QueryRow(ctx, qInboxCountByUser, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count user notifications: %w", err)
	}

	rows, err := eq.Query(ctx, qInboxByUser, userID, p.Limit, p.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("query user notifications: %w", err)
	}
	defer rows.Close()

	out := make([]*inbox.Notification, 0, p.Limit)
	for rows.Next() {
		n, err := scanInbox(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows: %w", err)
	}
	return out, total, nil
}

func scanInbox(row pgx.Row) (*inbox.Notification, error) {
	var n inbox.Notification
	if err := row.Scan(
		&n.ID,
		&n.NotificationID,
		&n.UserID,
		&n.Title,
		&n.Text,
		&n.LinkURL,
		&n.LinkText,
		&n.SentAt,
		&n.ReadAt,
		&n.SeenAt,
	); err != nil {
		return nil, err
	}
	return &n, nil
}
