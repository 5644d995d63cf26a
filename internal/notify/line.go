package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/goodtune/voicetally/internal/config"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DefaultLINEEndpoint is the LINE Messaging API push endpoint.
const DefaultLINEEndpoint = "https://api.line.me/v2/bot/message/push"

// LINEClient pushes text messages to a LINE group.
type LINEClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger
	endpoint   string // overridable for tests
	token      string
	to         string
}

type lineMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type linePushRequest struct {
	To       string        `json:"to"`
	Messages []lineMessage `json:"messages"`
}

// NewLINEClient creates a new LINE push client. A non-positive rate limit
// disables client-side limiting.
func NewLINEClient(httpClient *http.Client, cfg config.LINEConfig, logger zerolog.Logger) *LINEClient {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultLINEEndpoint
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	return &LINEClient{
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger.With().Str("component", "notify-line").Logger(),
		endpoint:   endpoint,
		token:      cfg.AccessToken,
		to:         cfg.GroupID,
	}
}

// Notify pushes text to the configured group. Each call carries a fresh
// retry key so the API can deduplicate a resend.
func (c *LINEClient) Notify(ctx context.Context, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	retryKey := uuid.New().String()
	payload := linePushRequest{
		To:       c.to,
		Messages: []lineMessage{{Type: "text", Text: text}},
	}
	headers := map[string]string{
		"Authorization":    "Bearer " + c.token,
		"X-Line-Retry-Key": retryKey,
	}

	if err := postJSON(ctx, c.httpClient, c.endpoint, headers, payload); err != nil {
		c.logger.Error().Err(err).Str("retry_key", retryKey).Msg("LINE push failed")
		return fmt.Errorf("failed to push LINE message: %w", err)
	}

	c.logger.Debug().Str("retry_key", retryKey).Msg("LINE push sent")
	return nil
}
