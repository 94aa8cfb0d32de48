package kafka

import (
	"context"
	"encoding/json"
	"fmt"
)

// ErrPoison marks a message that can never be handled; the consumer commits
// past it instead of retrying.
type ErrPoison struct{ Err error }

func (e ErrPoison) Error() string { return fmt.Sprintf("poison message: %v", e.Err) }
func (e ErrPoison) Unwrap() error { return e.Err }

func JSONHandler[M any](handle func(context.Context, []byte, *M) error) Handler {
	return func(ctx context.Context, key, value []byte) error {
		var msg M
		if err := json.Unmarshal(value, &msg); err != nil {
			return ErrPoison{Err: err}
		}
		return handle(ctx, key, &msg)
	}
}
