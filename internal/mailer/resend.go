package mailer

import (
	"context"
	"time"

	common "github.com/NordCoder/Herald/internal/config/common"
	"github.com/NordCoder/Herald/internal/domain/mail"
	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

// resendBatchLimit is the provider's cap on messages per batch call.
const resendBatchLimit = 100

type Resend struct {
	client     *resend.Client
	from       string
	subjPrefix string

	log *zap.Logger
}

var _ mail.Sender = (*Resend)(nil)

func NewResend(cfg common.Email) *Resend {
	return &Resend{
		client:     resend.NewClient(cfg.Resend.APIKey),
		from:       cfg.From,
		subjPrefix: cfg.SubjPrefix,
		log:        zap.L().With(zap.String("component", "mailer.resend")),
	}
}

func (r *Resend) WithLogger(l *zap.Logger) *Resend {
	if l == nil {
		return r
	}
	cp := *r
	cp.log = l.With(zap.String("component", "mailer.resend"))
	return &cp
}

func (r *Resend) SendOne(ctx context.Context, to, subject, html string, attachments ...mail.Attachment) error {
	req := r.request(to, subject, html)
	for _, a := range attachments {
		req.Attachments = append(req.Attachments, &resend.Attachment{
			Content:  a.Content,
			Filename: a.Filename,
			Path:     a.Path,
		})
	}

	start := time.Now()
	sent, err := r.client.Emails.SendWithContext(ctx, req)
	observe("resend", "one", start, err)
	if err != nil {
		r.log.Error("email send failed", zap.String("to", to), zap.Error(err))
		return err
	}
	r.log.Debug("email sent", zap.String("to", to), zap.String("provider_id", sent.Id))
	return nil
}

// SendBatch splits to into provider-sized calls. A rejected call marks its
// recipients failed and the next call still goes out.
func (r *Resend) SendBatch(ctx context.Context, to []string, subject, html string) error {
	be := &mail.BatchError{}
	for lo := 0; lo < len(to); lo += resendBatchLimit {
		hi := min(lo+resendBatchLimit, len(to))
		if err := ctx.Err(); err != nil {
			be.Failed = append(be.Failed, mail.FailAll(to[lo:], err).Failed...)
			break
		}
		reqs := make([]*resend.SendEmailRequest, 0, hi-lo)
		for _, rcpt := range to[lo:hi] {
			reqs = append(reqs, r.request(rcpt, subject, html))
		}

		start := time.Now()
		_, err := r.client.Batch.SendWithContext(ctx, reqs)
		observe("resend", "batch", start, err)
		if err != nil {
			r.log.Error("email batch failed", zap.Int("recipients", len(reqs)), zap.Error(err))
			be.Failed = append(be.Failed, mail.FailAll(to[lo:hi], err).Failed...)
		}
	}
	if len(be.Failed) > 0 {
		return be
	}
	r.log.Debug("email batch sent", zap.Int("recipients", len(to)))
	return nil
}

func (r *Resend) request(to, subject, html string) *resend.SendEmailRequest {
	return &resend.SendEmailRequest{
		From:    r.from,
		To:      []string{to},
		Subject: subjectLine(r.subjPrefix, subject),
		Html:    html,
	}
}
