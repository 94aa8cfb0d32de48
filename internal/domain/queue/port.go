package queue

import (
	"context"
	"errors"
	"time"
)

var ErrTaskNotPending = errors.New("queue task is not pending")

// Queue is the producer side of the delayed task runner.
type Queue interface {
	Enqueue(ctx context.Context, kind Kind, payload []byte, delay time.Duration) (string, error)
	ChangeDelay(ctx context.Context, handle string, delay time.Duration) error
	Remove(ctx context.Context, handle string) error
	UpdatePayload(ctx context.Context, handle string, payload []byte) error
}

// Repository is the storage the runner polls.
type Repository interface {
	Queue

	PickDue(ctx context.Context, batch int, inProgressTTL time.Duration) ([]Task, error)
	Complete(ctx context.Context, id string) error
	Retry(ctx context.Context, id string, delay time.Duration, cause string) error
	Park(ctx context.Context, id string, cause string) error
}
