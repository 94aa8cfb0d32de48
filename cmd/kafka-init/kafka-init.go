package main

import (
	"context"
	"strings"
	"time"

	"github.com/NordCoder/Herald/internal/obs"
	kafkax "github.com/NordCoder/Herald/internal/repository/kafka"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	v := viper.New()
	v.SetDefault("kafka_brokers", "kafka:9092")
	v.SetDefault("kafka_topics", "herald.notifications.delivered,herald.notifications.triggered")
	v.SetDefault("kafka_partitions", 3)
	v.SetDefault("kafka_rf", 1)
	v.SetDefault("kafka_wait", 30*time.Second)
	v.AutomaticEnv()

	log, err := obs.NewLogger(obs.LogConfig{Level: "info", App: "herald-kafka-init"})
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	var specs []kafkax.TopicSpec
	for _, t := range splitList(v.GetString("kafka_topics")) {
		specs = append(specs, kafkax.TopicSpec{
			Name:              t,
			NumPartitions:     v.GetInt("kafka_partitions"),
			ReplicationFactor: v.GetInt("kafka_rf"),
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*v.GetDuration("kafka_wait"))
	defer cancel()

	brokers := splitList(v.GetString("kafka_brokers"))
	if err := kafkax.EnsureTopics(ctx, brokers, specs, v.GetDuration("kafka_wait"), log); err != nil {
		log.Fatal("ensure topics", zap.Strings("brokers", brokers), zap.Error(err))
	}
	log.Info("kafka-init ok", zap.Int("topics", len(specs)))
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
