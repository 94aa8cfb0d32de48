package job

import (
	"context"
	"errors"

	"github.com/NordCoder/Herald/internal/domain/paging"
)

var (
	ErrNotFound    = errors.New("notification job not found")
	ErrAlreadySent = errors.New("notification job already sent")
)

type Repo interface {
	Create(ctx context.Context, j *Job) error
	GetByID(ctx context.Context, id string) (*Job, error)
	// Update stores every mutable field of an unsent job.
	Update(ctx context.Context, j *Job) error
	Delete(ctx context.Context, id string) error
	// MarkSent flips is_sent for an unsent job and reports whether this call won.
	MarkSent(ctx context.Context, id string) (bool, error)
	SetQueueJobID(ctx context.Context, id, handle string) error
	List(ctx context.Context, f Filter, p paging.Page) ([]*Job, int, error)
}
