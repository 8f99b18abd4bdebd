// Package webhook implements a notifier.Notifier posting JSON payloads to a
// configured HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Strob0t/ReviewFlow/internal/port/notifier"
)

const providerName = "webhook"

func init() {
	notifier.Register(providerName, func(config map[string]string) (notifier.Notifier, error) {
		return NewNotifier(config["url"]), nil
	})
}

// Notifier posts notifications as JSON to an incoming webhook.
type Notifier struct {
	url        string
	httpClient *http.Client
}

// NewNotifier creates a webhook notifier targeting the given URL.
func NewNotifier(url string) *Notifier {
	return &Notifier{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *Notifier) Name() string { return providerName }

func (n *Notifier) Capabilities() notifier.Capabilities {
	return notifier.Capabilities{RichFormatting: true}
}

// payload is the webhook body. Receivers get the full recipient list and can
// fan out themselves.
type payload struct {
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
	Level      string   `json:"level"`
	Source     string   `json:"source,omitempty"`
	Recipients []string `json:"recipients"`
	SentAt     string   `json:"sent_at"`
}

func (n *Notifier) Send(ctx context.Context, notification notifier.Notification) error {
	if n.url == "" {
		return notifier.ErrNotConfigured
	}

	body, err := json.Marshal(payload{
		Subject:    notification.Subject,
		Body:       notification.Body,
		Level:      notification.Level,
		Source:     notification.Source,
		Recipients: notification.Addresses,
		SentAt:     time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("webhook marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req) //nolint:gosec // webhook URL from trusted config
	if err != nil {
		return fmt.Errorf("webhook send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook API %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}
