package mail

import (
	"context"
	"fmt"
	"strings"
)

type Attachment struct {
	Filename string
	Content  []byte
	// Path is a hosted file the provider fetches instead of Content.
	Path string
}

// Sender is an email transport. SendBatch keeps going past a failed
// recipient and reports the undelivered ones as a *BatchError.
type Sender interface {
	SendOne(ctx context.Context, to, subject, html string, attachments ...Attachment) error
	SendBatch(ctx context.Context, to []string, subject, html string) error
}

// RecipientError is one address a batch could not deliver to.
type RecipientError struct {
	To  string
	Err error
}

func (e RecipientError) Error() string { return e.To + ": " + e.Err.Error() }
func (e RecipientError) Unwrap() error { return e.Err }

// BatchError lists the undelivered recipients of a batch. Every address
// not listed was delivered.
type BatchError struct {
	Failed []RecipientError
}

func (e *BatchError) Error() string {
	if len(e.Failed) == 1 {
		return "send to " + e.Failed[0].Error()
	}
	parts := make([]string, 0, min(len(e.Failed), 3))
	for _, f := range e.Failed[:min(len(e.Failed), 3)] {
		parts = append(parts, f.Error())
	}
	more := ""
	if len(e.Failed) > 3 {
		more = fmt.Sprintf("; and %d more", len(e.Failed)-3)
	}
	return fmt.Sprintf("%d recipients failed: %s%s", len(e.Failed), strings.Join(parts, "; "), more)
}

func (e *BatchError) Unwrap() []error {
	out := make([]error, 0, len(e.Failed))
	for _, f := range e.Failed {
		out = append(out, f)
	}
	return out
}

// Addresses returns the failed addresses in batch order.
func (e *BatchError) Addresses() []string {
	out := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		out = append(out, f.To)
	}
	return out
}

// FailAll reports every address in to as failed with err.
func FailAll(to []string, err error) *BatchError {
	be := &BatchError{Failed: make([]RecipientError, 0, len(to))}
	for _, rcpt := range to {
		be.Failed = append(be.Failed, RecipientError{To: rcpt, Err: err})
	}
	return be
}
