package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"vigil/internal/event"
)

// WebhookConfig configures the webhook notifier.
type WebhookConfig struct {
	URL string
	// APIKey, when set, is sent as a bearer token.
	APIKey string
	// Timeout bounds each individual attempt.
	Timeout time.Duration
	// RetryAttempts and RetryDelay define the bounded retry policy: a
	// fixed delay between attempts, no backoff.
	RetryAttempts int
	RetryDelay    time.Duration
}

// DefaultWebhookConfig returns the shipped retry policy.
func DefaultWebhookConfig(url string) WebhookConfig {
	return WebhookConfig{
		URL:           url,
		Timeout:       10 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    2 * time.Second,
	}
}

// webhookPayload is the wire shape consumers receive.
type webhookPayload struct {
	Event              string            `json:"event"`
	CameraName         string            `json:"camera_name"`
	ROIName            string            `json:"roi_name"`
	Timestamp          float64           `json:"timestamp"`
	Metadata           map[string]string `json:"metadata"`
	Screenshot         string            `json:"screenshot,omitempty"`
	ScreenshotFilename string            `json:"screenshot_filename,omitempty"`
}

// Webhook posts motion events to a configured HTTP endpoint with bounded
// retries. Delivery failure is the caller's to log; exhausting the retries
// returns the last error.
type Webhook struct {
	cfg    WebhookConfig
	client *http.Client
}

// NewWebhook creates a webhook notifier.
func NewWebhook(cfg WebhookConfig) *Webhook {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	return &Webhook{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Notify implements event.Notifier.
func (w *Webhook) Notify(ctx context.Context, ev event.Event) error {
	payload := webhookPayload{
		Event:      "motion_detected",
		CameraName: ev.Camera,
		ROIName:    ev.ROI,
		Timestamp:  float64(ev.Timestamp.UnixNano()) / 1e9,
		Metadata:   ev.Metadata,
	}
	if payload.Metadata == nil {
		payload.Metadata = map[string]string{}
	}
	if len(ev.Screenshot) > 0 {
		payload.Screenshot = base64.StdEncoding.EncodeToString(ev.Screenshot)
		payload.ScreenshotFilename = fmt.Sprintf("%s_%s.jpg", ev.Camera, ev.ROI)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= w.cfg.RetryAttempts; attempt++ {
		if err := w.post(ctx, body); err != nil {
			lastErr = err
			fmt.Printf("Warning: webhook attempt %d/%d failed: %v\n",
				attempt, w.cfg.RetryAttempts, err)
			if attempt < w.cfg.RetryAttempts {
				select {
				case <-time.After(w.cfg.RetryDelay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("webhook delivery failed after %d attempts: %w",
		w.cfg.RetryAttempts, lastErr)
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "vigil-motion-detector/1.0")
	if w.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.cfg.APIKey)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent:
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, msg)
}
