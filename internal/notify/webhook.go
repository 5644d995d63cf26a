package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
)

// WebhookClient posts messages to a chat webhook as {"content": text}.
type WebhookClient struct {
	httpClient *http.Client
	logger     zerolog.Logger
	url        string
}

type webhookPayload struct {
	Content string `json:"content"`
}

// NewWebhookClient creates a new webhook notifier
func NewWebhookClient(httpClient *http.Client, url string, logger zerolog.Logger) *WebhookClient {
	return &WebhookClient{
		httpClient: httpClient,
		logger:     logger.With().Str("component", "notify-webhook").Logger(),
		url:        url,
	}
}

// Notify posts text to the webhook.
func (c *WebhookClient) Notify(ctx context.Context, text string) error {
	if err := postJSON(ctx, c.httpClient, c.url, nil, webhookPayload{Content: text}); err != nil {
		c.logger.Error().Err(err).Msg("Webhook post failed")
		return fmt.Errorf("failed to post webhook message: %w", err)
	}
	return nil
}
