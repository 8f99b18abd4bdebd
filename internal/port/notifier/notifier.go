// Package notifier defines the notification port (interface) and capabilities.
package notifier

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when a notifier is not properly configured.
var ErrNotConfigured = errors.New("notifier: not configured")

// Notification is the payload sent through a Notifier.
type Notification struct {
	Addresses []string `json:"addresses"`
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
	Level     string   `json:"level"`  // "info", "success", "warning", "error"
	Source    string   `json:"source"` // e.g. "document.approved", "document.rejected"
}

// Capabilities declares which features a notifier supports.
type Capabilities struct {
	RichFormatting bool `json:"rich_formatting"`
	PerRecipient   bool `json:"per_recipient"`
}

// Notifier is the port interface for delivering notifications.
type Notifier interface {
	// Name returns the unique identifier for this notifier (e.g. "webhook", "log").
	Name() string

	// Capabilities returns what this notifier supports.
	Capabilities() Capabilities

	// Send delivers a notification to the listed addresses.
	Send(ctx context.Context, notification Notification) error
}
