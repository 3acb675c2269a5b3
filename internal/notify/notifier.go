package notify

import "github.com/fitlog/backend/pkg/logger"

// Notifier is the outbound trigger contract for account-recovery mail.
// Callers treat delivery as fire-and-forget: a failed Send is logged by the
// caller, never surfaced to the end user.
type Notifier interface {
	Send(to, subject, actionURL string) error
}

// LogNotifier is used when SMTP is unconfigured (local development, tests).
// It records the action URL instead of delivering anything.
type LogNotifier struct{}

func (LogNotifier) Send(to, subject, actionURL string) error {
	logger.Info("notification_logged", map[string]interface{}{
		"to":         to,
		"subject":    subject,
		"action_url": actionURL,
	})
	return nil
}
