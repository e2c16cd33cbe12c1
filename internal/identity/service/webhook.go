package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mango3/identity/internal/identity/domain"
	"github.com/mango3/identity/pkg/cryptox"
)

// SignatureHeader carries the base64 HMAC-SHA256 of the request body.
const SignatureHeader = "X-Webhook-Signature"

type WebhookService struct {
	// Client is used for deliveries; defaults to a client with a sane
	// timeout so a stuck receiver cannot pin a worker.
	Client *http.Client
}

type webhookEnvelope struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
}

// Sign computes the detached signature over the exact body bytes with the
// given plaintext secret. Receivers must verify against the bytes as
// received, not a re-serialization.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Deliver signs and POSTs an event to the application's webhook URL.
// Applications without a webhook are skipped silently; any transport failure
// or non-2xx response is an error so the job layer retries.
func (s *WebhookService) Deliver(ctx context.Context, app domain.Application, eventType string, data json.RawMessage) error {
	if !app.HasWebhook() {
		return nil
	}

	secret, err := cryptox.DecryptSecret(app.WebhookSecretEncrypted)
	if err != nil {
		return fmt.Errorf("decrypt webhook secret: %w", err)
	}

	body, err := json.Marshal(webhookEnvelope{EventType: eventType, Data: data})
	if err != nil {
		return fmt.Errorf("encode webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, app.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(secret, body))

	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook receiver returned %d", resp.StatusCode)
	}
	return nil
}
