package mailer

import (
	"fmt"

	common "github.com/NordCoder/Herald/internal/config/common"
	"github.com/NordCoder/Herald/internal/domain/mail"
	"go.uber.org/zap"
)

func New(cfg common.Email, l *zap.Logger) (mail.Sender, error) {
	switch cfg.Provider {
	case "resend":
		if cfg.Resend.APIKey == "" {
			return nil, fmt.Errorf("email.resend.api_key is required")
		}
		return NewResend(cfg).WithLogger(l), nil
	case "smtp":
		return NewSMTP(cfg).WithLogger(l), nil
	case "log", "":
		return NewLog(l), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}
