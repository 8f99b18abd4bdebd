// Package lognotify implements a notifier.Notifier that writes notifications
// to the structured log. It is the default provider and the fallback for
// local development without a delivery channel.
package lognotify

import (
	"context"
	"log/slog"

	"github.com/Strob0t/ReviewFlow/internal/port/notifier"
)

const providerName = "log"

func init() {
	notifier.Register(providerName, func(_ map[string]string) (notifier.Notifier, error) {
		return NewNotifier(), nil
	})
}

// Notifier logs notifications instead of delivering them.
type Notifier struct{}

// NewNotifier creates a log notifier.
func NewNotifier() *Notifier {
	return &Notifier{}
}

func (n *Notifier) Name() string { return providerName }

func (n *Notifier) Capabilities() notifier.Capabilities {
	return notifier.Capabilities{}
}

func (n *Notifier) Send(_ context.Context, notification notifier.Notification) error {
	slog.Info("notification",
		"subject", notification.Subject,
		"body", notification.Body,
		"level", notification.Level,
		"source", notification.Source,
		"recipients", notification.Addresses,
	)
	return nil
}
