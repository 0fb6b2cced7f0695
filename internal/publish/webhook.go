package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
	"stationwatch.transitboard.org/internal/logging"
	"stationwatch.transitboard.org/internal/models"
)

// WebhookSink POSTs each event as a JSON envelope. Outbound requests are
// paced by a token bucket so a burst of station updates cannot flood the
// receiver.
type WebhookSink struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewWebhookSink creates a sink posting to url. ratePerSecond <= 0 disables
// pacing.
func NewWebhookSink(url string, ratePerSecond float64, logger *slog.Logger) *WebhookSink {
	limit := rate.Inf
	burst := 1
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
		burst = max(1, int(ratePerSecond))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookSink{
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.With(slog.String("component", "webhook_sink")),
	}
}

func (s *WebhookSink) Publish(ctx context.Context, event string, update models.StationUpdate) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("webhook rate limiter: %w", err)
	}

	body, err := json.Marshal(Envelope{Event: event, Payload: update})
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Stationwatch-Event", event)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer logging.SafeCloseWithLogging(resp.Body, s.logger, "webhook_response_body")
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook %s returned %s", s.url, resp.Status)
	}
	return nil
}
