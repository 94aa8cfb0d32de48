package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	common "github.com/NordCoder/Herald/internal/config/common"
	"github.com/NordCoder/Herald/internal/domain/mail"
	"github.com/NordCoder/Herald/internal/obs/retry"
	"go.uber.org/zap"
)

var ErrSMTPPathAttachment = errors.New("smtp transport cannot fetch hosted attachments")

// defaultSMTPTimeout bounds one whole SMTP session when none is configured.
const defaultSMTPTimeout = 30 * time.Second

type SMTP struct {
	addr       string
	auth       smtp.Auth
	useTLS     bool
	timeout    time.Duration
	from       string
	subjPrefix string

	log *zap.Logger
}

var _ mail.Sender = (*SMTP)(nil)

func NewSMTP(cfg common.Email) *SMTP {
	var auth smtp.Auth
	if cfg.SMTP.User != "" || cfg.SMTP.Password != "" {
		auth = smtp.PlainAuth("", cfg.SMTP.User, cfg.SMTP.Password, host(cfg.SMTP.Addr))
	}
	timeout := cfg.SMTP.Timeout
	if timeout <= 0 {
		timeout = defaultSMTPTimeout
	}
	return &SMTP{
		addr:       cfg.SMTP.Addr,
		auth:       auth,
		useTLS:     cfg.SMTP.UseTLS,
		timeout:    timeout,
		from:       cfg.From,
		subjPrefix: cfg.SubjPrefix,
		log:        zap.L().With(zap.String("component", "mailer.smtp")),
	}
}

func (m *SMTP) WithLogger(l *zap.Logger) *SMTP {
	if l == nil {
		return m
	}
	cp := *m
	cp.log = l.With(zap.String("component", "mailer.smtp"))
	return &cp
}

func (m *SMTP) SendOne(ctx context.Context, to, subject, html string, attachments ...mail.Attachment) error {
	subj := subjectLine(m.subjPrefix, subject)
	msg, err := m.compose(to, subj, html, attachments)
	if err != nil {
		return retry.Permanent(err)
	}
	start := time.Now()
	err = classify(m.deliver(ctx, to, msg))
	observe("smtp", "one", start, err)
	if err != nil {
		m.log.Error("email send failed", zap.String("to", to), zap.String("subject", subj), zap.Error(err))
		return err
	}
	m.log.Debug("email sent", zap.String("to", to), zap.Duration("elapsed", time.Since(start)))
	return nil
}

// SendBatch delivers one message per recipient so addresses never leak
// between them. A failed recipient does not stop the others; the failures
// come back as a *mail.BatchError.
func (m *SMTP) SendBatch(ctx context.Context, to []string, subject, html string) error {
	subj := subjectLine(m.subjPrefix, subject)
	start := time.Now()
	be := &mail.BatchError{}
	for i, rcpt := range to {
		if err := ctx.Err(); err != nil {
			be.Failed = append(be.Failed, mail.FailAll(to[i:], err).Failed...)
			break
		}
		msg, err := m.compose(rcpt, subj, html, nil)
		if err != nil {
			err = retry.Permanent(err)
		} else {
			err = classify(m.deliver(ctx, rcpt, msg))
		}
		if err != nil {
			m.log.Warn("email send failed", zap.String("to", rcpt), zap.Error(err))
			be.Failed = append(be.Failed, mail.RecipientError{To: rcpt, Err: err})
		}
	}
	if len(be.Failed) > 0 {
		observe("smtp", "batch", start, be)
		return be
	}
	observe("smtp", "batch", start, nil)
	m.log.Debug("email batch sent", zap.Int("recipients", len(to)), zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (m *SMTP) compose(to, subject, html string, attachments []mail.Attachment) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("From: " + m.from + "\r\n")
	buf.WriteString("To: " + to + "\r\n")
	buf.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	buf.WriteString("MIME-Version: 1.0\r\n")

	if len(attachments) == 0 {
		buf.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		buf.WriteString(html + "\r\n")
		return buf.Bytes(), nil
	}

	mw := multipart.NewWriter(&buf)
	buf.WriteString("Content-Type: multipart/mixed; boundary=" + mw.Boundary() + "\r\n\r\n")

	body, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/html; charset=utf-8"}})
	if err != nil {
		return nil, err
	}
	if _, err := body.Write([]byte(html)); err != nil {
		return nil, err
	}

	for _, a := range attachments {
		if len(a.Content) == 0 && a.Path != "" {
			return nil, ErrSMTPPathAttachment
		}
		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {"application/octet-stream"},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", a.Filename)},
		})
		if err != nil {
			return nil, err
		}
		enc := base64.NewEncoder(base64.StdEncoding, part)
		if _, err := enc.Write(a.Content); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *SMTP) deliver(ctx context.Context, to string, msg []byte) error {
	dialer := net.Dialer{Timeout: m.timeout}

	var (
		conn net.Conn
		err  error
	)
	if m.useTLS {
		td := tls.Dialer{NetDialer: &dialer, Config: &tls.Config{ServerName: host(m.addr)}}
		conn, err = td.DialContext(ctx, "tcp", m.addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", m.addr)
	}
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	// The whole session shares one deadline. Canceling ctx expires it early.
	deadline := time.Now().Add(m.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	c, err := smtp.NewClient(conn, host(m.addr))
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer func() { _ = c.Close() }()

	if !m.useTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: host(m.addr)}); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}
	if m.auth != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(m.auth); err != nil {
				return fmt.Errorf("auth: %w", err)
			}
		}
	}
	if err := c.Mail(address(m.from)); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return c.Quit()
}

// classify marks 5xx replies as permanent. 4xx replies and network errors
// stay retryable.
func classify(err error) error {
	var te *textproto.Error
	if errors.As(err, &te) && te.Code >= 500 {
		return retry.Permanent(err)
	}
	return err
}

func host(addr string) string {
	if h, _, err := net.SplitHostPort(addr); err == nil {
		return h
	}
	return addr
}

// address pulls the bare mailbox out of "Name <box@host>".
func address(from string) string {
	if i := strings.LastIndex(from, "<"); i >= 0 {
		if j := strings.LastIndex(from, ">"); j > i {
			return from[i+1 : j]
		}
	}
	return from
}

func subjectLine(prefix, subject string) string {
	return strings.TrimSpace(prefix + " " + subject)
}
