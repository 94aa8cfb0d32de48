package events

import (
	"context"
	"time"
)

type DeliveryEvent struct {
	JobID       string    `json:"job_id"`
	Recipients  int       `json:"recipients"`
	Email       bool      `json:"email"`
	DeliveredAt time.Time `json:"delivered_at"`
}

type DeliveryEvents interface {
	PublishDelivered(ctx context.Context, ev DeliveryEvent) error
}
