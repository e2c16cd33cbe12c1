package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/mango3/identity/internal/identity/domain"
	"github.com/mango3/identity/internal/identity/store"
	"github.com/mango3/identity/pkg/cryptox"
	"github.com/mango3/identity/pkg/idx"
	"github.com/mango3/identity/pkg/slogx"
)

type AuthorizationService struct {
	Store store.Store
	Jobs  Enqueuer

	// TTL is the lifetime granted by Authorize.
	TTL time.Duration
	// RefreshTTL is the lifetime granted by the API refresh endpoint.
	RefreshTTL time.Duration
	// TokenBytes is the entropy of grant tokens before encoding.
	TokenBytes int
}

func (s *AuthorizationService) newToken() (string, error) {
	size := s.TokenBytes
	if size <= 0 {
		size = cryptox.TokenSize256
	}
	return cryptox.GenerateToken(size)
}

// Authorize grants the application delegated access bound to the user's
// current session and returns the redirect URL carrying the token. A repeat
// authorization for the same triple rotates the grant instead of duplicating
// it.
func (s *AuthorizationService) Authorize(ctx context.Context, app domain.Application, user domain.User, session domain.Session) (string, error) {
	log := slogx.FromContext(ctx)
	now := time.Now().UTC()

	ttl := s.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	token, err := s.newToken()
	if err != nil {
		return "", err
	}

	grant, err := s.Store.Authorizations().UpsertAuthorization(ctx, domain.Authorization{
		ID:            idx.New().String(),
		ApplicationID: app.ID,
		UserID:        user.ID,
		SessionID:     session.ID,
		Token:         token,
		ExpiresAt:     now.Add(ttl),
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return "", err
	}

	if grant.RefreshedAt != nil {
		if err := s.Jobs.Enqueue(ctx, domain.QueueRefreshedAuthorization, domain.RefreshedAuthorizationPayload{
			AuthorizationID: grant.ID,
		}); err != nil {
			log.Error("failed to enqueue refreshed_authorization job",
				slog.String("authorization_id", grant.ID),
				slog.Any("error", err),
			)
		}
	}

	log.Info("authorization granted",
		slog.String("authorization_id", grant.ID),
		slog.String("application_id", app.ID),
		slog.String("user_id", user.ID),
	)

	redirect, err := url.Parse(app.RedirectURL)
	if err != nil {
		return "", err
	}
	q := redirect.Query()
	q.Set("token", grant.Token)
	q.Set("expires_at", grant.ExpiresAt.Format(time.RFC3339))
	redirect.RawQuery = q.Encode()
	return redirect.String(), nil
}

// GetByToken resolves a grant token. Revoked or expired grants are invisible;
// previous tokens never resolve.
func (s *AuthorizationService) GetByToken(ctx context.Context, token string) (domain.Authorization, error) {
	if token == "" {
		return domain.Authorization{}, store.ErrNotFound
	}
	grant, err := s.Store.Authorizations().GetAuthorizationByToken(ctx, token)
	if err != nil {
		return domain.Authorization{}, err
	}
	if !grant.Usable(time.Now().UTC()) {
		return domain.Authorization{}, store.ErrNotFound
	}
	return grant, nil
}

// Refresh rotates the grant's token and extends it by the API refresh TTL.
func (s *AuthorizationService) Refresh(ctx context.Context, grant domain.Authorization) (domain.Authorization, error) {
	log := slogx.FromContext(ctx)
	now := time.Now().UTC()

	ttl := s.RefreshTTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}

	token, err := s.newToken()
	if err != nil {
		return domain.Authorization{}, err
	}

	if err := s.Store.Authorizations().RefreshAuthorization(ctx, grant.ID, token, now.Add(ttl), now); err != nil {
		return domain.Authorization{}, err
	}

	if err := s.Jobs.Enqueue(ctx, domain.QueueRefreshedAuthorization, domain.RefreshedAuthorizationPayload{
		AuthorizationID: grant.ID,
	}); err != nil {
		log.Error("failed to enqueue refreshed_authorization job",
			slog.String("authorization_id", grant.ID),
			slog.Any("error", err),
		)
	}

	return s.Store.Authorizations().GetAuthorizationByID(ctx, grant.ID)
}

// Revoke terminates a grant and notifies the owning application when it has
// a webhook configured. Revoking twice is a no-op.
func (s *AuthorizationService) Revoke(ctx context.Context, grant domain.Authorization) error {
	if grant.Revoked() {
		return nil
	}

	now := time.Now().UTC()
	if err := s.Store.Authorizations().RevokeAuthorization(ctx, grant.ID, now); err != nil {
		return err
	}

	log := slogx.FromContext(ctx)
	log.Info("authorization revoked", slog.String("authorization_id", grant.ID))

	s.enqueueRevokedWebhook(ctx, grant)
	return nil
}

// RevokeForSession revokes every live grant bound to the session. Used by the
// finished-session cascade.
func (s *AuthorizationService) RevokeForSession(ctx context.Context, session domain.Session) error {
	grants, err := s.Store.Authorizations().ListActiveAuthorizationsBySession(ctx, session.ID)
	if err != nil {
		return err
	}
	for _, grant := range grants {
		if err := s.Revoke(ctx, grant); err != nil {
			return err
		}
	}
	return nil
}

// enqueueRevokedWebhook tells the application its token is no longer valid.
// The payload echoes the revoked token so the receiver can match it to state
// on their side.
func (s *AuthorizationService) enqueueRevokedWebhook(ctx context.Context, grant domain.Authorization) {
	log := slogx.FromContext(ctx)

	app, err := s.Store.Applications().GetApplicationByID(ctx, grant.ApplicationID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Error("failed to load application for revocation webhook",
				slog.String("application_id", grant.ApplicationID),
				slog.Any("error", err),
			)
		}
		return
	}
	if !app.HasWebhook() {
		return
	}

	data, err := json.Marshal(map[string]string{"token": grant.Token})
	if err != nil {
		log.Error("failed to encode revocation webhook data", slog.Any("error", err))
		return
	}

	if err := s.Jobs.Enqueue(ctx, domain.QueueWebhookEvent, domain.WebhookEventPayload{
		ApplicationID: app.ID,
		EventType:     "authorization_revoked",
		Data:          data,
	}); err != nil {
		log.Error("failed to enqueue webhook_event job",
			slog.String("application_id", app.ID),
			slog.Any("error", err),
		)
	}
}
