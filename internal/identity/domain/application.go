package domain

import "time"

// Application is a third-party consumer of delegated authorization grants.
// Applications are registered by operators, not end users.
type Application struct {
	ID          string
	Name        string
	RedirectURL string
	SecretHash  string // argon2 encoded client secret
	// WebhookURL is optional; applications without one receive no event
	// deliveries.
	WebhookURL string
	// WebhookSecretEncrypted is the AES-GCM encrypted HMAC key used to sign
	// webhook payloads. It must be recoverable, unlike the client secret.
	WebhookSecretEncrypted string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// HasWebhook reports whether the application subscribed to event deliveries.
func (a Application) HasWebhook() bool { return a.WebhookURL != "" }
