package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// webhookAttempts bounds delivery tries per event: one call plus two
// retries with exponential backoff.
const webhookAttempts = 3

// WebhookSink POSTs verdict events to an HTTP endpoint. The verdict's
// action, class and request id ride along as headers so receivers can
// route or drop events without parsing the body.
type WebhookSink struct {
	url     string
	headers map[string]string
	client  *http.Client
}

func NewWebhookSink(url string, headers map[string]string, timeout time.Duration) (*WebhookSink, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook url is empty")
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	hdr := make(map[string]string, len(headers))
	for k, v := range headers {
		hdr[k] = v
	}
	return &WebhookSink{
		url:     url,
		headers: hdr,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func (s *WebhookSink) Name() string { return "webhook:" + s.url }

func (s *WebhookSink) Deliver(ctx context.Context, ev *Event) error {
	if ev == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < webhookAttempts; attempt++ {
		if attempt > 0 {
			// 100ms, 200ms, ... doubling per retry.
			backoff := 100 * time.Millisecond << (attempt - 1)
			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		retryable, err := s.post(ctx, ev, payload)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			// A rejected event will not improve on resend; retrying a 4xx
			// just hammers the receiver with the same bad payload.
			return lastErr
		}
	}
	return lastErr
}

// post performs one delivery attempt. The bool reports whether the failure
// is worth retrying: network errors, timeouts, 429 and 5xx are; other 4xx
// are not.
func (s *WebhookSink) post(ctx context.Context, ev *Event, payload []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Vanguard-Action", string(ev.Verdict.Action))
	req.Header.Set("X-Vanguard-Class", string(ev.Verdict.FailureClass))
	req.Header.Set("X-Vanguard-Request-Id", ev.RequestID)
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return true, fmt.Errorf("post: %w", err)
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return false, nil
	}
	err = fmt.Errorf("status %d body=%q", resp.StatusCode, truncateBody(body))
	retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
	return retryable, err
}

func (s *WebhookSink) Close(context.Context) error {
	return nil
}

func truncateBody(b []byte) string {
	const limit = 200
	if len(b) <= limit {
		return string(b)
	}
	return string(b[:limit]) + "..."
}
