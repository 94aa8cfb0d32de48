package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type TopicSpec struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
}

func (s TopicSpec) config() kafka.TopicConfig {
	return kafka.TopicConfig{
		Topic:             s.Name,
		NumPartitions:     max(s.NumPartitions, 1),
		ReplicationFactor: max(s.ReplicationFactor, 1),
	}
}

var ErrTopicNotReady = errors.New("topic has partitions without a leader")

// EnsureTopics creates the topics through the cluster controller and waits
// until every partition has a leader. Existing topics are left untouched.
func EnsureTopics(ctx context.Context, brokers []string, specs []TopicSpec, wait time.Duration, log *zap.Logger) error {
	if len(brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("component", "kafka.admin"))

	cc, err := dialController(ctx, brokers[0])
	if err != nil {
		return err
	}
	cfgs := make([]kafka.TopicConfig, 0, len(specs))
	for _, s := range specs {
		cfgs = append(cfgs, s.config())
	}
	err = cc.CreateTopics(cfgs...)
	_ = cc.Close()
	if err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		log.Debug("create topics", zap.Error(err))
	}

	if wait <= 0 {
		wait = 30 * time.Second
	}
	wctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	for _, s := range specs {
		if err := waitLeaders(wctx, brokers[0], s.Name); err != nil {
			return fmt.Errorf("topic %s: %w", s.Name, err)
		}
		log.Info("topic ready", zap.String("topic", s.Name))
	}
	return nil
}

func dialController(ctx context.Context, broker string) (*kafka.Conn, error) {
	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", broker, err)
	}
	defer conn.Close()

	c, err := conn.Controller()
	if err != nil {
		return nil, fmt.Errorf("find controller: %w", err)
	}
	cc, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(c.Host, strconv.Itoa(c.Port)))
	if err != nil {
		return nil, fmt.Errorf("dial controller: %w", err)
	}
	return cc, nil
}

func waitLeaders(ctx context.Context, broker, topic string) error {
	backoff := 200 * time.Millisecond
	for {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err == nil {
			parts, rerr := conn.ReadPartitions(topic)
			_ = conn.Close()
			if rerr == nil && allHaveLeader(parts) {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ErrTopicNotReady
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 5*time.Second)
	}
}

func allHaveLeader(parts []kafka.Partition) bool {
	if len(parts) == 0 {
		return false
	}
	for _, p := range parts {
		if p.Leader.ID == -1 {
			return false
		}
	}
	return true
}
