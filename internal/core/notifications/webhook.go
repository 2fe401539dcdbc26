package notifications

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// SignatureHeader carries the hex HMAC-SHA256 of the body, keyed by the webhook secret.
const SignatureHeader = "X-Signature"

// WebhookSender posts JSON payloads to operator endpoints. A circuit breaker
// stops hammering an endpoint that keeps failing.
type WebhookSender struct {
	client  *http.Client
	secret  string
	breaker *gobreaker.CircuitBreaker
}

func NewWebhookSender(secret string, timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if secret == "" {
		slog.Warn("WEBHOOK_SECRET is missing, webhooks are sent unsigned")
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "approval-webhook",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Webhook circuit changed state", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &WebhookSender{
		// Don't let slow receivers block us.
		client:  &http.Client{Timeout: timeout},
		secret:  secret,
		breaker: breaker,
	}
}

// Send posts the payload. Non-2xx responses are errors.
func (s *WebhookSender) Send(ctx context.Context, url string, payload []byte) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.post(ctx, url, payload)
	})
	return err
}

func (s *WebhookSender) post(ctx context.Context, url string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Stenaledger-Webhook/1.0")
	if s.secret != "" {
		req.Header.Set(SignatureHeader, Sign(s.secret, payload))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("webhook receiver returned error: %d", resp.StatusCode)
}

// Sign computes the signature receivers use to authenticate a webhook.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
