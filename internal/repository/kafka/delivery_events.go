package kafka

import (
	"context"

	"github.com/NordCoder/Herald/internal/domain/events"
	"github.com/NordCoder/Herald/internal/obs/retry"
)

var _ events.DeliveryEvents = (*DeliveryEventsKafka)(nil)

type DeliveryEventsKafka struct {
	p   *Producer
	pol retry.Policy
}

func NewDeliveryEventsKafka(p *Producer, pol retry.Policy) *DeliveryEventsKafka {
	return &DeliveryEventsKafka{p: p, pol: pol}
}

func (e *DeliveryEventsKafka) PublishDelivered(ctx context.Context, ev events.DeliveryEvent) error {
	return retry.Do(ctx, func() error {
		return e.p.PublishJSON(ctx, KeyFromString(ev.JobID), ev)
	}, e.pol)
}
