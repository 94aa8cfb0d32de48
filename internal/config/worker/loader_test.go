package worker_config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "worker.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "herald-worker", cfg.App.Name)
	assert.Equal(t, 2, cfg.Queue.Workers)
	assert.Equal(t, 10*time.Minute, cfg.Queue.InProgressTTL)
	assert.Equal(t, "herald.notifications.triggered", cfg.KafkaIn.Topic)
	assert.Equal(t, "herald.notifications.delivered", cfg.KafkaOut.Topic)
	assert.Equal(t, 90, cfg.Email.BatchSize)
	assert.Equal(t, 1500*time.Millisecond, cfg.Email.Pacing)
}

func TestLoad_FileOverrides(t *testing.T) {
	cfg, err := Load(writeYAML(t, `
queue:
  workers: 5
  poll_interval: 250ms
email:
  provider: smtp
  smtp:
    addr: mail:2525
`))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Queue.Workers)
	assert.Equal(t, 250*time.Millisecond, cfg.Queue.PollInterval)
	assert.Equal(t, "smtp", cfg.Email.Provider)
	assert.Equal(t, "mail:2525", cfg.Email.SMTP.Addr)
	assert.Equal(t, 20, cfg.Queue.BatchSize, "unset keys keep defaults")
}

func TestLoad_RejectsShortLease(t *testing.T) {
	_, err := Load(writeYAML(t, `
queue:
  in_progress_ttl: 1m
  handler_timeout: 5m
`))
	assert.ErrorContains(t, err, "in_progress_ttl")
}
