package queue

import (
	"context"
	"time"

	"github.com/NordCoder/Herald/internal/domain/queue"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	handlerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "queue_handler_latency_seconds",
		Help:    "Latency of queue task handlers.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	handlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_handler_errors_total",
		Help: "Errors returned by queue task handlers.",
	}, []string{"kind"})
)

func instrument(h queue.Handler) queue.Handler {
	tr := otel.Tracer("queue.handler")
	return func(ctx context.Context, kind queue.Kind, payload []byte) error {
		ctx, span := tr.Start(ctx, "queue.handle", trace.WithAttributes(
			attribute.String("queue.kind", string(kind)),
			attribute.Int("queue.payload_len", len(payload)),
		))
		defer span.End()

		start := time.Now()
		err := h(ctx, kind, payload)
		handlerLatency.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			handlerErrors.WithLabelValues(string(kind)).Inc()
		}
		return err
	}
}
