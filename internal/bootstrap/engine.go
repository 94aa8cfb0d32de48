// Package bootstrap builds the notification engine shared by the binaries.
package bootstrap

import (
	common "github.com/NordCoder/Herald/internal/config/common"
	"github.com/NordCoder/Herald/internal/mailer"
	"github.com/NordCoder/Herald/internal/obs/retry"
	"github.com/NordCoder/Herald/internal/repository/kafka"
	pg "github.com/NordCoder/Herald/internal/repository/postgres"
	"github.com/NordCoder/Herald/internal/services/notifier"
	"go.uber.org/zap"
)

// Engine wires the engine over postgres, the configured mail transport and,
// when enabled, the delivery event producer. The returned func closes the
// producer.
func Engine(db *pg.DB, email common.Email, out common.KafkaOut, l *zap.Logger) (*notifier.Engine, func(), error) {
	sender, err := mailer.New(email, l)
	if err != nil {
		return nil, nil, err
	}

	deps := notifier.Deps{
		Jobs:     pg.NewJobRepo(db),
		Inbox:    pg.NewInboxRepo(db),
		Queue:    pg.NewQueueRepo(db),
		Tx:       pg.NewTransactor(db, l),
		Resolver: notifier.NewResolver(pg.NewDirectoryRepo(db), l),
		Announcer: notifier.NewAnnouncer(sender, notifier.AnnouncerConfig{
			BatchSize: email.BatchSize,
			Pacing:    email.Pacing,
		}, l),
		Log: l,
	}

	closeFn := func() {}
	if out.Enable && len(out.Brokers) > 0 {
		p := kafka.NewProducer(out.Brokers, out.Topic).WithLogger(l)
		deps.Events = kafka.NewDeliveryEventsKafka(p, retry.DefaultKafkaPolicy(l))
		closeFn = func() { _ = p.Close() }
	}
	return notifier.New(deps), closeFn, nil
}
