package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// BootstrapConsumer makes sure the topic exists before joining the group.
// A broker that is not ready yet is only logged; the reader retries on its own.
func BootstrapConsumer(ctx context.Context, cfg *ConsumerConfig, partitions int, logger *zap.Logger) *Consumer {
	if len(cfg.Brokers) > 0 {
		spec := TopicSpec{Name: cfg.Topic, NumPartitions: partitions, ReplicationFactor: 1}
		if err := EnsureTopics(ctx, cfg.Brokers, []TopicSpec{spec}, 5*time.Second, logger); err != nil && logger != nil {
			logger.Warn("ensure consumer topic", zap.String("topic", cfg.Topic), zap.Error(err))
		}
	}
	return NewConsumer(cfg)
}
