package common_config

import (
	"time"

	"github.com/NordCoder/Herald/internal/obs"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func (lc *Log) AsLoggerConfig(app App) obs.LogConfig {
	return obs.LogConfig{
		Level:  lc.Level,
		Pretty: lc.Pretty,
		App:    app.Name,
		Env:    app.Env,
		Ver:    app.Version,
	}
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

func (oc *OTEL) AsOTELConfig(app App) *obs.OTELConfig {
	name := oc.ServiceName
	if name == "" {
		name = app.Name
	}
	return &obs.OTELConfig{
		Enable:      oc.Enable,
		Endpoint:    oc.OTLPEndpoint,
		ServiceName: name,
		Version:     app.Version,
		Env:         app.Env,
		SampleRatio: oc.SampleRatio,
	}
}

type KafkaOut struct {
	Enable  bool     `mapstructure:"enable"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type KafkaIn struct {
	Enable     bool     `mapstructure:"enable"`
	Brokers    []string `mapstructure:"brokers"`
	Topic      string   `mapstructure:"topic"`
	GroupID    string   `mapstructure:"group_id"`
	Partitions int      `mapstructure:"partitions"`
}

type SMTP struct {
	Addr     string        `mapstructure:"addr"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type Resend struct {
	APIKey string `mapstructure:"api_key"`
}

// Email selects the transport ("resend", "smtp" or "log") and the
// announcement batching rules shared by every transport.
type Email struct {
	Provider   string        `mapstructure:"provider"`
	From       string        `mapstructure:"from"`
	SubjPrefix string        `mapstructure:"subj_prefix"`
	BatchSize  int           `mapstructure:"batch_size"`
	Pacing     time.Duration `mapstructure:"pacing"`
	Resend     Resend        `mapstructure:"resend"`
	SMTP       SMTP          `mapstructure:"smtp"`
}
