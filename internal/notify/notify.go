// Package notify delivers plain-text messages to an external chat endpoint.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goodtune/voicetally/internal/config"
	"github.com/rs/zerolog"
)

// Notifier delivers a plain-text message.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// New builds the notifier selected by cfg.Type.
func New(cfg config.NotifyConfig, logger zerolog.Logger) (Notifier, error) {
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid notify timeout: %w", err)
	}
	httpClient := &http.Client{Timeout: timeout}

	switch cfg.Type {
	case "line":
		return NewLINEClient(httpClient, cfg.LINE, logger), nil
	case "webhook":
		return NewWebhookClient(httpClient, cfg.Webhook.URL, logger), nil
	case "", "log":
		return NewLogNotifier(logger), nil
	default:
		return nil, fmt.Errorf("unsupported notify type: %s", cfg.Type)
	}
}

// LogNotifier writes messages to the log instead of delivering them.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a new log-only notifier
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify-log").Logger()}
}

// Notify logs text at info level.
func (n *LogNotifier) Notify(_ context.Context, text string) error {
	n.logger.Info().Str("text", text).Msg("Notification")
	return nil
}

// StatusError is returned when the endpoint answers with a non-2xx status.
type StatusError struct {
	Body       string
	StatusCode int
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("endpoint returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("endpoint returned status %d: %s", e.StatusCode, e.Body)
}

// postJSON sends payload to endpoint and treats any 2xx as success.
func postJSON(ctx context.Context, httpClient *http.Client, endpoint string, headers map[string]string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "voicetally/1.0")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
