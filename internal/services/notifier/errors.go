package notifier

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("notification already sent")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrQueueOperation   = errors.New("queue operation failed")
	ErrValidation       = errors.New("validation failed")
)
