package queue

import (
	"context"
	"encoding/json"
	"time"
)

type Kind string

const (
	KindScheduled Kind = "scheduled"
	KindTriggered Kind = "triggered"
	// KindAnnounce mails an already delivered job to a chunk of its
	// receivers.
	KindAnnounce Kind = "announce"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusRunning Status = "RUNNING"
	StatusFailed  Status = "FAILED"
)

type Task struct {
	ID        string
	Kind      Kind
	Payload   []byte
	Status    Status
	Attempts  int
	DueAt     time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Envelope is the stored payload shape: {"kind": ..., "data": ...}.
type Envelope struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

func Wrap(kind Kind, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Kind: kind, Data: raw})
}

type Handler func(ctx context.Context, kind Kind, payload []byte) error
