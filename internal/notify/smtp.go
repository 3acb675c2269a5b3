package notify

import (
	"fmt"

	"github.com/fitlog/backend/internal/config"
	"gopkg.in/gomail.v2"
)

type SMTPNotifier struct {
	cfg    config.SMTPConfig
	dialer *gomail.Dialer
}

func NewSMTPNotifier(cfg config.SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (n *SMTPNotifier) Send(to, subject, actionURL string) error {
	message := gomail.NewMessage()
	message.SetHeader("From", n.cfg.From)
	message.SetHeader("To", to)
	message.SetHeader("Subject", subject)
	message.SetBody("text/html", fmt.Sprintf(
		"<p>Hi,</p><p>Please follow the link below to continue:</p><p><a href=%q>%s</a></p><p>If you did not request this, you can safely ignore this email.</p>",
		actionURL, actionURL,
	))

	if err := n.dialer.DialAndSend(message); err != nil {
		return fmt.Errorf("sending mail to %s: %w", to, err)
	}
	return nil
}

// FromConfig picks the SMTP implementation when a host is configured and
// falls back to the logging notifier otherwise.
func FromConfig(cfg config.SMTPConfig) Notifier {
	if cfg.Host == "" {
		return LogNotifier{}
	}
	return NewSMTPNotifier(cfg)
}
