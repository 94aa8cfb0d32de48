package inbox

import (
	"context"
	"errors"
	"time"

	"github.com/NordCoder/Herald/internal/domain/paging"
)

var ErrNotFound = errors.New("user notification not found")

type Repo interface {
	// BulkCreate inserts rows, skipping ids that already exist.
	BulkCreate(ctx context.Context, rows []*Notification) error
	Get(ctx context.Context, id string) (*Notification, error)
	// MarkSeen stamps seen_at, and read_at for rows without a link.
	MarkSeen(ctx context.Context, ids []string, at time.Time) (int64, error)
	MarkRead(ctx context.Context, id string, at time.Time) error
	ListByUser(ctx context.Context, userID string, p paging.Page) ([]*Notification, int, error)
}
