package notifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"time"

	"github.com/NordCoder/Herald/internal/domain/job"
	"github.com/NordCoder/Herald/internal/domain/mail"
	"github.com/NordCoder/Herald/internal/obs/retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultBatchSize = 90
	DefaultPacing    = 1500 * time.Millisecond

	// chunkBatches is how many batches one announce task carries.
	chunkBatches = 10
)

var announcementTmpl = template.Must(template.New("announcement").Parse(`<html>
  <body style="font-family: Arial, sans-serif; margin: 0; padding: 0; background-color: #f9f9f9;">
    <div style="max-width: 600px; margin: 20px auto; background-color: #ffffff; border-radius: 8px; padding: 20px;">
      <h1 style="font-size: 24px; color: #333333;">{{.Title}}</h1>
      <p style="font-size: 16px; color: #555555;">{{.Text}}</p>
      {{- if .LinkURL}}
      <a href="{{.LinkURL}}" style="font-size: 16px; color: #007bff; text-decoration: none;">{{.LinkText}}</a>
      {{- end}}
    </div>
  </body>
</html>`))

type announcement struct {
	Title    string
	Text     string
	LinkURL  string
	LinkText string
}

type AnnouncerConfig struct {
	BatchSize int
	Pacing    time.Duration
}

// Announcer mails a job to its receivers in fixed-size batches. One limiter
// is shared by every announcement so the provider sees at most one batch
// per pacing interval from this process.
type Announcer struct {
	sender  mail.Sender
	batch   int
	limiter *rate.Limiter
	pol     retry.Policy
	log     *zap.Logger
}

func NewAnnouncer(sender mail.Sender, cfg AnnouncerConfig, log *zap.Logger) *Announcer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	limit := rate.Inf
	if cfg.Pacing > 0 {
		limit = rate.Every(cfg.Pacing)
	}
	log = log.With(zap.String("component", "notifier.announcer"))
	return &Announcer{
		sender:  sender,
		batch:   cfg.BatchSize,
		limiter: rate.NewLimiter(limit, 1),
		pol:     retry.DefaultEmailPolicy(log),
		log:     log,
	}
}

func Render(j *job.Job) (string, error) {
	a := announcement{Title: j.Title, Text: j.Text}
	if j.LinkURL != nil {
		a.LinkURL = *j.LinkURL
		a.LinkText = *j.LinkURL
		if j.LinkText != nil {
			a.LinkText = *j.LinkText
		}
	}
	var buf bytes.Buffer
	if err := announcementTmpl.Execute(&buf, a); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ChunkSize is the number of recipients one announce task should carry so
// that a task finishes well inside the queue handler timeout.
func (a *Announcer) ChunkSize() int { return a.batch * chunkBatches }

// Announce sends every batch it can. Recipients that were not delivered,
// including those never attempted because ctx ended, come back in a
// *mail.BatchError. A failed batch does not stop the ones after it.
func (a *Announcer) Announce(ctx context.Context, j *job.Job, to []string) error {
	if len(to) == 0 {
		return nil
	}
	ctx, span := otel.Tracer("notifier.announcer").Start(ctx, "announcer.announce",
		trace.WithAttributes(
			attribute.String("job.id", j.ID),
			attribute.Int("email.recipients", len(to)),
		),
	)
	defer span.End()

	html, err := Render(j)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("render announcement: %w", err)
	}

	undelivered := &mail.BatchError{}
	for lo := 0; lo < len(to); lo += a.batch {
		hi := min(lo+a.batch, len(to))
		batch := to[lo:hi]

		if err := a.limiter.Wait(ctx); err != nil {
			mEmailFailures.Inc()
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			undelivered.Failed = append(undelivered.Failed, mail.FailAll(to[lo:], err).Failed...)
			break
		}
		failed := a.sendBatch(ctx, batch, j.Title, html)
		if len(failed) == 0 {
			mEmailsSent.Add(float64(len(batch)))
			continue
		}
		mEmailFailures.Inc()
		mEmailsSent.Add(float64(len(batch) - len(failed)))
		be := &mail.BatchError{Failed: failed}
		span.RecordError(be)
		a.log.Warn("announcement batch incomplete",
			zap.String("job_id", j.ID), zap.Int("offset", lo), zap.Int("size", len(batch)),
			zap.Int("failed", len(failed)), zap.Error(be))
		undelivered.Failed = append(undelivered.Failed, failed...)
	}
	if len(undelivered.Failed) > 0 {
		return undelivered
	}
	return nil
}

// sendBatch retries a batch under the email policy. Each attempt only goes
// to the recipients that are still failing with a retryable error, so a
// delivered address is never mailed twice.
func (a *Announcer) sendBatch(ctx context.Context, batch []string, subject, html string) []mail.RecipientError {
	pending := batch
	var dropped []mail.RecipientError
	err := retry.Do(ctx, func() error {
		err := a.sender.SendBatch(ctx, pending, subject, html)
		var be *mail.BatchError
		if !errors.As(err, &be) {
			return err
		}
		retryable := &mail.BatchError{}
		for _, f := range be.Failed {
			if retry.IsPermanent(f.Err) {
				dropped = append(dropped, f)
				continue
			}
			retryable.Failed = append(retryable.Failed, f)
		}
		pending = retryable.Addresses()
		if len(pending) == 0 {
			return nil
		}
		return retryable
	}, a.pol)
	if err == nil {
		return dropped
	}
	var be *mail.BatchError
	if errors.As(err, &be) {
		return append(dropped, be.Failed...)
	}
	return append(dropped, mail.FailAll(pending, err).Failed...)
}
