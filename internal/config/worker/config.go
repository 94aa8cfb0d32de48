package worker_config

import (
	"time"

	common "github.com/NordCoder/Herald/internal/config/common"
	"github.com/NordCoder/Herald/internal/queue"
	pg "github.com/NordCoder/Herald/internal/repository/postgres"
)

type Server struct {
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
}

type Config struct {
	App      common.App      `mapstructure:"app"`
	Server   Server          `mapstructure:"server"`
	DB       pg.Config       `mapstructure:"db"`
	OTEL     common.OTEL     `mapstructure:"otel"`
	Log      common.Log      `mapstructure:"log"`
	Queue    queue.Config    `mapstructure:"queue"`
	KafkaIn  common.KafkaIn  `mapstructure:"kafka_in"`
	KafkaOut common.KafkaOut `mapstructure:"kafka_out"`
	Email    common.Email    `mapstructure:"email"`
}
