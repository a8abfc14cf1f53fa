// Package notify is the seam between the sync engine and whatever carries
// notifications (mail transport lives outside the core).
package notify

import (
	"context"
	"log/slog"
)

// Notifier delivers one notification about an abnormal-but-recoverable
// condition.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// Nop swallows notifications.
type Nop struct{}

func (Nop) Notify(context.Context, string, string) error { return nil }

// Log writes notifications to the log only, the default when no transport
// is configured.
type Log struct {
	log *slog.Logger
}

func NewLog(log *slog.Logger) *Log {
	return &Log{log: log.With(slog.String("item", "Notifier"))}
}

func (l *Log) Notify(_ context.Context, subject, body string) error {
	l.log.Warn("Notification", slog.String("subject", subject), slog.String("body", body))

	return nil
}
