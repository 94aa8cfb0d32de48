package kafka

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/NordCoder/Herald/internal/obs/retry"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Handler func(ctx context.Context, key, value []byte) error

// messageReader is the part of *kafka.Reader the consumer drives.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader messageReader
	log    *zap.Logger
	cfg    *ConsumerConfig

	fetchBackoff retry.Backoff
	// pol retries one handler call; hold spaces out the rounds of pol
	// while a message keeps failing.
	pol  retry.Policy
	hold retry.Backoff
}

type ConsumerConfig struct {
	Brokers       []string
	GroupID       string
	Topic         string
	FromBeginning bool
	Logger        *zap.Logger
}

func NewConsumer(cfg *ConsumerConfig) *Consumer {
	if cfg.Logger == nil {
		cfg.Logger = zap.L()
	}

	start := kafka.LastOffset
	if cfg.FromBeginning {
		start = kafka.FirstOffset
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:               cfg.Brokers,
		GroupID:               cfg.GroupID,
		Topic:                 cfg.Topic,
		StartOffset:           start,
		WatchPartitionChanges: true,

		MinBytes:          1e3,
		MaxBytes:          10e6,
		SessionTimeout:    10 * time.Second,
		RebalanceTimeout:  15 * time.Second,
		HeartbeatInterval: 3 * time.Second,
	})

	log := cfg.Logger.With(
		zap.String("component", "kafka.consumer"),
		zap.String("topic", cfg.Topic),
		zap.String("group", cfg.GroupID),
	)

	return &Consumer{
		reader:       r,
		log:          log,
		cfg:          cfg,
		fetchBackoff: retry.ExpoJitter{Base: 200 * time.Millisecond, Max: 5 * time.Second},
		pol: retry.Policy{
			Name:     "kafka_consume",
			Attempts: 5,
			Backoff:  retry.ExpoJitter{Base: 250 * time.Millisecond, Max: 5 * time.Second, Jitter: 0.2},
			Retryable: func(err error) bool {
				var poison ErrPoison
				return !errors.As(err, &poison)
			},
		},
		hold: retry.ExpoJitter{Base: 5 * time.Second, Max: time.Minute, Jitter: 0.2},
	}
}

func (c *Consumer) WithLogger(l *zap.Logger) *Consumer {
	if l == nil {
		return c
	}
	cp := *c
	cp.log = l.With(
		zap.String("component", "kafka.consumer"),
		zap.String("topic", c.cfg.Topic),
		zap.String("group", c.cfg.GroupID),
	)
	return &cp
}

// Consume fetches until ctx is done. A message is committed once its
// handler succeeds or reports it as poison. Any other failure holds the
// partition on that message and retries it until ctx ends: committing a
// later offset would skip it for good.
func (c *Consumer) Consume(ctx context.Context, h Handler) error {
	log := c.log
	log.Info("consumer started")

	for fails := 0; ; {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("consumer stopped")
				return ctx.Err()
			}
			wait := c.fetchBackoff.Next(fails)
			fails++
			if errors.Is(err, io.EOF) {
				log.Debug("fetch EOF; retry", zap.Duration("backoff", wait))
			} else {
				log.Warn("fetch failed; retry", zap.Error(err), zap.Duration("backoff", wait))
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		fails = 0

		if err := c.process(ctx, h, msg); err != nil {
			return err
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("commit failed; will retry later", zap.Error(err))
		}
	}
}

// process returns nil once msg may be committed and ctx.Err() otherwise.
func (c *Consumer) process(ctx context.Context, h Handler, msg kafka.Message) error {
	at := []zap.Field{zap.Int("partition", msg.Partition), zap.Int64("offset", msg.Offset)}
	for round := 0; ; round++ {
		err := retry.Do(ctx, func() error { return c.handle(ctx, h, msg) }, c.pol)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var poison ErrPoison
		if errors.As(err, &poison) {
			c.log.Warn("skipping poison message", append(at, zap.Error(err))...)
			return nil
		}
		wait := c.hold.Next(round)
		c.log.Error("handler failing; holding offset",
			append(at, zap.Int("round", round+1), zap.Duration("backoff", wait), zap.Error(err))...)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Consumer) handle(ctx context.Context, h Handler, msg kafka.Message) error {
	parent := extractTrace(ctx, msg)
	ctx, span := otel.Tracer("kafka.consumer").Start(parent, "kafka.consume "+msg.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingDestinationName(msg.Topic),
		),
	)
	defer span.End()

	if err := h(ctx, msg.Key, msg.Value); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (c *Consumer) Close() error { return c.reader.Close() }
