package api_gateway_config

import (
	"time"

	common "github.com/NordCoder/Herald/internal/config/common"
	pg "github.com/NordCoder/Herald/internal/repository/postgres"
)

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	GRPCAddr        string        `mapstructure:"grpc_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

type Config struct {
	App      common.App      `mapstructure:"app"`
	Server   Server          `mapstructure:"server"`
	DB       pg.Config       `mapstructure:"db"`
	OTEL     common.OTEL     `mapstructure:"otel"`
	Log      common.Log      `mapstructure:"log"`
	KafkaOut common.KafkaOut `mapstructure:"kafka_out"`
	Email    common.Email    `mapstructure:"email"`
}
