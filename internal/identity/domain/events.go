package domain

import "encoding/json"

// Queue names for the async backbone. Each queue has a fixed payload schema;
// payloads reference entities by ID so handlers always act on current state.
const (
	QueueNewUser                = "new_user"
	QueueNewSession             = "new_session"
	QueueFinishedSession        = "finished_session"
	QueueNewConfirmation        = "new_confirmation"
	QueuePasswordChanged        = "password_changed"
	QueueRefreshedAuthorization = "refreshed_authorization"
	QueueWebhookEvent           = "webhook_event"
)

type NewUserPayload struct {
	UserID string `json:"user_id"`
}

type NewSessionPayload struct {
	SessionID string `json:"session_id"`
	// IP is the client address captured at login, carried on the job because
	// it is not persisted on the session row.
	IP string `json:"ip"`
}

type FinishedSessionPayload struct {
	SessionID string `json:"session_id"`
}

type NewConfirmationPayload struct {
	ConfirmationID string `json:"confirmation_id"`
	// Code is the plaintext confirmation code. Only its hash is stored, so
	// the job payload is the single carrier between issuance and the email.
	Code string `json:"code"`
}

type PasswordChangedPayload struct {
	UserID string `json:"user_id"`
}

type RefreshedAuthorizationPayload struct {
	AuthorizationID string `json:"authorization_id"`
}

type WebhookEventPayload struct {
	ApplicationID string          `json:"application_id"`
	EventType     string          `json:"event_type"`
	Data          json.RawMessage `json:"data"`
}
