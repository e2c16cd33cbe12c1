package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mango3/identity/internal/identity/domain"
	"github.com/mango3/identity/internal/identity/service"
	"github.com/mango3/identity/internal/identity/store"
)

// Handlers binds each queue to its behavior. Every handler re-fetches the
// referenced entity by ID so it always acts on current state; a missing
// entity discards the job.
type Handlers struct {
	Store          store.Store
	Logger         *slog.Logger
	Sessions       *service.SessionService
	Authorizations *service.AuthorizationService
	Webhooks       *service.WebhookService
	Mailer         *Mailer
	GeoIP          *GeoIP
}

// Map wires every queue to its handler for the worker.
func (h *Handlers) Map() map[string]HandlerFunc {
	return map[string]HandlerFunc{
		domain.QueueNewUser:                h.newUser,
		domain.QueueNewSession:             h.newSession,
		domain.QueueFinishedSession:        h.finishedSession,
		domain.QueueNewConfirmation:        h.newConfirmation,
		domain.QueuePasswordChanged:        h.passwordChanged,
		domain.QueueRefreshedAuthorization: h.refreshedAuthorization,
		domain.QueueWebhookEvent:           h.webhookEvent,
	}
}

func decode[T any](payload []byte) (T, error) {
	var decoded T
	if err := json.Unmarshal(payload, &decoded); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: malformed payload: %v", ErrDiscard, err)
	}
	return decoded, nil
}

// discardNotFound maps a missing entity to ErrDiscard so the job dies instead
// of retrying forever.
func discardNotFound(err error, what string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s no longer exists", ErrDiscard, what)
	}
	return err
}

func (h *Handlers) newUser(ctx context.Context, payload []byte) error {
	job, err := decode[domain.NewUserPayload](payload)
	if err != nil {
		return err
	}

	user, err := h.Store.Users().GetUserByID(ctx, job.UserID)
	if err != nil {
		return discardNotFound(err, "user")
	}

	// The admin notice is best-effort; the user-facing welcome drives the
	// job outcome.
	if err := h.Mailer.SendAdminNewUser(ctx, user); err != nil {
		h.Logger.Error("failed to send admin new user email",
			slog.String("user_id", user.ID),
			slog.Any("error", err),
		)
	}

	return h.Mailer.SendWelcome(ctx, user)
}

func (h *Handlers) newSession(ctx context.Context, payload []byte) error {
	job, err := decode[domain.NewSessionPayload](payload)
	if err != nil {
		return err
	}

	session, err := h.Store.Sessions().GetSessionByID(ctx, job.SessionID)
	if err != nil {
		return discardNotFound(err, "session")
	}

	if Routable(job.IP) {
		if loc, err := h.GeoIP.Lookup(ctx, job.IP); err != nil {
			h.Logger.Warn("geolocation lookup failed",
				slog.String("session_id", session.ID),
				slog.Any("error", err),
			)
		} else if err := h.Sessions.UpdateLocation(ctx, session, loc.CountryAlpha2, loc.Region, loc.City); err != nil {
			h.Logger.Warn("failed to store session location",
				slog.String("session_id", session.ID),
				slog.Any("error", err),
			)
		} else {
			session.CountryAlpha2 = loc.CountryAlpha2
			session.Region = loc.Region
			session.City = loc.City
		}
	}

	user, err := h.Store.Users().GetUserByID(ctx, session.UserID)
	if err != nil {
		return discardNotFound(err, "user")
	}

	return h.Mailer.SendNewSession(ctx, user, session)
}

func (h *Handlers) finishedSession(ctx context.Context, payload []byte) error {
	job, err := decode[domain.FinishedSessionPayload](payload)
	if err != nil {
		return err
	}

	session, err := h.Store.Sessions().GetSessionByID(ctx, job.SessionID)
	if err != nil {
		return discardNotFound(err, "session")
	}

	return h.Authorizations.RevokeForSession(ctx, session)
}

func (h *Handlers) newConfirmation(ctx context.Context, payload []byte) error {
	job, err := decode[domain.NewConfirmationPayload](payload)
	if err != nil {
		return err
	}

	confirmation, err := h.Store.Confirmations().GetConfirmationByID(ctx, job.ConfirmationID)
	if err != nil {
		return discardNotFound(err, "confirmation")
	}

	user, err := h.Store.Users().GetUserByID(ctx, confirmation.UserID)
	if err != nil {
		return discardNotFound(err, "user")
	}

	return h.Mailer.SendConfirmationCode(ctx, user, confirmation.Action, job.Code)
}

func (h *Handlers) passwordChanged(ctx context.Context, payload []byte) error {
	job, err := decode[domain.PasswordChangedPayload](payload)
	if err != nil {
		return err
	}

	user, err := h.Store.Users().GetUserByID(ctx, job.UserID)
	if err != nil {
		return discardNotFound(err, "user")
	}

	return h.Mailer.SendPasswordChanged(ctx, user)
}

func (h *Handlers) refreshedAuthorization(ctx context.Context, payload []byte) error {
	job, err := decode[domain.RefreshedAuthorizationPayload](payload)
	if err != nil {
		return err
	}

	grant, err := h.Store.Authorizations().GetAuthorizationByID(ctx, job.AuthorizationID)
	if err != nil {
		return discardNotFound(err, "authorization")
	}

	return h.Sessions.Touch(ctx, grant.SessionID)
}

func (h *Handlers) webhookEvent(ctx context.Context, payload []byte) error {
	job, err := decode[domain.WebhookEventPayload](payload)
	if err != nil {
		return err
	}

	app, err := h.Store.Applications().GetApplicationByID(ctx, job.ApplicationID)
	if err != nil {
		return discardNotFound(err, "application")
	}

	return h.Webhooks.Deliver(ctx, app, job.EventType, job.Data)
}
