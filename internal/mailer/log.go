package mailer

import (
	"context"

	"github.com/NordCoder/Herald/internal/domain/mail"
	"go.uber.org/zap"
)

// Log only records what would have been sent. Used for local runs.
type Log struct {
	log *zap.Logger
}

var _ mail.Sender = (*Log)(nil)

func NewLog(l *zap.Logger) *Log {
	return &Log{log: l.With(zap.String("component", "mailer.log"))}
}

func (m *Log) SendOne(_ context.Context, to, subject, _ string, attachments ...mail.Attachment) error {
	m.log.Info("email (dry run)", zap.String("to", to), zap.String("subject", subject), zap.Int("attachments", len(attachments)))
	return nil
}

func (m *Log) SendBatch(_ context.Context, to []string, subject, _ string) error {
	m.log.Info("email batch (dry run)", zap.Int("recipients", len(to)), zap.String("subject", subject))
	return nil
}
