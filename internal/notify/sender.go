package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/config"
)

// Sender delivers one notification event. Delivery is best effort: a failed
// send is reported to the caller for logging and counting, nothing more.
type Sender interface {
	Send(ctx context.Context, event Event) error
}

// WebhookSender posts events to the SMS gateway webhook.
type WebhookSender struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewWebhookSender builds a sender from notification config.
func NewWebhookSender(cfg config.NotificationConfig, logger *zap.Logger) *WebhookSender {
	return &WebhookSender{
		url:    cfg.SMSWebhookURL,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		logger: logger,
	}
}

// Send posts the event as JSON. With no webhook configured the event is only
// logged, which keeps development environments quiet but observable.
func (s *WebhookSender) Send(ctx context.Context, event Event) error {
	if s.url == "" {
		s.logger.Info("notification (no webhook configured)",
			zap.String("token_id", event.TokenID),
			zap.String("type", string(event.Type)),
			zap.String("recipient", event.RecipientContact))
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification webhook returned %d", resp.StatusCode)
	}
	return nil
}
