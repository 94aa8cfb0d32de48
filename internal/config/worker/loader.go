package worker_config

import (
	"errors"
	"strings"

	common "github.com/NordCoder/Herald/internal/config/common"
	"github.com/spf13/viper"
)

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		_ = v.ReadInConfig()
	}

	common.SetDefaults(v, "herald-worker")

	v.SetDefault("server.metrics_addr", ":8085")
	v.SetDefault("server.graceful_timeout", "30s")

	v.SetDefault("queue.workers", 2)
	v.SetDefault("queue.batch_size", 20)
	v.SetDefault("queue.poll_interval", "1s")
	v.SetDefault("queue.in_progress_ttl", "10m")
	v.SetDefault("queue.handler_timeout", "5m")
	v.SetDefault("queue.max_attempts", 10)

	v.SetDefault("kafka_in.enable", true)
	v.SetDefault("kafka_in.brokers", []string{"kafka:9092"})
	v.SetDefault("kafka_in.topic", "herald.notifications.triggered")
	v.SetDefault("kafka_in.group_id", "herald-worker")
	v.SetDefault("kafka_in.partitions", 3)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.DB.DSN == "" {
		return nil, errors.New("no pg")
	}
	if cfg.Queue.InProgressTTL <= cfg.Queue.HandlerTimeout {
		return nil, errors.New("queue.in_progress_ttl must exceed queue.handler_timeout")
	}
	return &cfg, nil
}
