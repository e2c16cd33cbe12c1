package service

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/mango3/identity/internal/identity/domain"
	"github.com/mango3/identity/internal/identity/store"
	"github.com/stretchr/testify/require"
)

type authFixture struct {
	store   store.Store
	queue   *captureQueue
	svc     *AuthorizationService
	app     domain.Application
	user    domain.User
	session domain.Session
}

func newAuthFixture(t *testing.T, webhookURL string) authFixture {
	t.Helper()
	ctx := context.Background()

	st := newTestStore(t)
	user := registerUser(t, st)

	sessions := &SessionService{Store: st, Jobs: &captureQueue{}}
	session, err := sessions.Start(ctx, user, "test-agent", "203.0.113.7")
	require.NoError(t, err)

	apps := &ApplicationService{Store: st}
	created, err := apps.Create(ctx, "demo", "https://app.example/cb", webhookURL)
	require.NoError(t, err)

	queue := &captureQueue{}
	return authFixture{
		store:   st,
		queue:   queue,
		svc:     &AuthorizationService{Store: st, Jobs: queue},
		app:     created.Application,
		user:    user,
		session: session,
	}
}

func TestAuthorizationService_Authorize(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("redirect carries token and expiry", func(t *testing.T) {
		f := newAuthFixture(t, "")

		redirect, err := f.svc.Authorize(ctx, f.app, f.user, f.session)
		require.NoError(t, err)

		parsed, err := url.Parse(redirect)
		require.NoError(t, err)
		require.Equal(t, "app.example", parsed.Host)
		require.Equal(t, "/cb", parsed.Path)

		token := parsed.Query().Get("token")
		require.NotEmpty(t, token)

		expiresAt, err := time.Parse(time.RFC3339, parsed.Query().Get("expires_at"))
		require.NoError(t, err)
		require.True(t, expiresAt.After(time.Now()))

		grant, err := f.svc.GetByToken(ctx, token)
		require.NoError(t, err)
		require.Equal(t, f.app.ID, grant.ApplicationID)
		require.Equal(t, f.user.ID, grant.UserID)
		require.Equal(t, f.session.ID, grant.SessionID)

		// First grant for a triple is a fresh insert, not a refresh.
		require.Empty(t, f.queue.byQueue(domain.QueueRefreshedAuthorization))
	})

	t.Run("repeat authorization rotates instead of duplicating", func(t *testing.T) {
		f := newAuthFixture(t, "")

		first, err := f.svc.Authorize(ctx, f.app, f.user, f.session)
		require.NoError(t, err)
		second, err := f.svc.Authorize(ctx, f.app, f.user, f.session)
		require.NoError(t, err)

		firstToken := queryParam(t, first, "token")
		secondToken := queryParam(t, second, "token")
		require.NotEqual(t, firstToken, secondToken)

		_, err = f.svc.GetByToken(ctx, firstToken)
		require.ErrorIs(t, err, store.ErrNotFound)

		grant, err := f.svc.GetByToken(ctx, secondToken)
		require.NoError(t, err)
		require.Equal(t, firstToken, grant.PreviousToken)

		require.Len(t, f.queue.byQueue(domain.QueueRefreshedAuthorization), 1)
	})

	t.Run("re-authorizing a revoked grant revives it", func(t *testing.T) {
		f := newAuthFixture(t, "")

		first, err := f.svc.Authorize(ctx, f.app, f.user, f.session)
		require.NoError(t, err)

		grant, err := f.svc.GetByToken(ctx, queryParam(t, first, "token"))
		require.NoError(t, err)
		require.NoError(t, f.svc.Revoke(ctx, grant))

		second, err := f.svc.Authorize(ctx, f.app, f.user, f.session)
		require.NoError(t, err)

		revived, err := f.svc.GetByToken(ctx, queryParam(t, second, "token"))
		require.NoError(t, err)
		require.Equal(t, grant.ID, revived.ID)
		require.Nil(t, revived.RevokedAt)
	})
}

func queryParam(t *testing.T, rawURL, key string) string {
	t.Helper()
	parsed, err := url.Parse(rawURL)
	require.NoError(t, err)
	value := parsed.Query().Get(key)
	require.NotEmpty(t, value)
	return value
}

func TestAuthorizationService_GetByToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newAuthFixture(t, "")

	t.Run("empty token is not found", func(t *testing.T) {
		_, err := f.svc.GetByToken(ctx, "")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("expired grants are invisible", func(t *testing.T) {
		expired := &AuthorizationService{Store: f.store, Jobs: f.queue, TTL: time.Nanosecond}
		redirect, err := expired.Authorize(ctx, f.app, f.user, f.session)
		require.NoError(t, err)

		_, err = f.svc.GetByToken(ctx, queryParam(t, redirect, "token"))
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestAuthorizationService_Refresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newAuthFixture(t, "")

	redirect, err := f.svc.Authorize(ctx, f.app, f.user, f.session)
	require.NoError(t, err)
	grant, err := f.svc.GetByToken(ctx, queryParam(t, redirect, "token"))
	require.NoError(t, err)

	refreshed, err := f.svc.Refresh(ctx, grant)
	require.NoError(t, err)
	require.Equal(t, grant.ID, refreshed.ID)
	require.NotEqual(t, grant.Token, refreshed.Token)
	require.Equal(t, grant.Token, refreshed.PreviousToken)
	require.True(t, refreshed.ExpiresAt.After(grant.ExpiresAt))

	_, err = f.svc.GetByToken(ctx, grant.Token)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.Len(t, f.queue.byQueue(domain.QueueRefreshedAuthorization), 1)

	t.Run("revoked grants cannot be refreshed", func(t *testing.T) {
		require.NoError(t, f.svc.Revoke(ctx, refreshed))
		_, err := f.svc.Refresh(ctx, refreshed)
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestAuthorizationService_RevokeWebhooks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("revocation notifies apps with a webhook", func(t *testing.T) {
		f := newAuthFixture(t, "https://app.example/hooks")

		redirect, err := f.svc.Authorize(ctx, f.app, f.user, f.session)
		require.NoError(t, err)
		grant, err := f.svc.GetByToken(ctx, queryParam(t, redirect, "token"))
		require.NoError(t, err)

		require.NoError(t, f.svc.Revoke(ctx, grant))

		// Revoking again must not duplicate the notice.
		revoked, err := f.store.Authorizations().GetAuthorizationByID(ctx, grant.ID)
		require.NoError(t, err)
		require.NoError(t, f.svc.Revoke(ctx, revoked))

		events := f.queue.byQueue(domain.QueueWebhookEvent)
		require.Len(t, events, 1)
		payload, ok := events[0].Payload.(domain.WebhookEventPayload)
		require.True(t, ok)
		require.Equal(t, f.app.ID, payload.ApplicationID)
		require.Equal(t, "authorization_revoked", payload.EventType)

		var data map[string]string
		require.NoError(t, json.Unmarshal(payload.Data, &data))
		require.Equal(t, grant.Token, data["token"])
	})

	t.Run("no webhook, no event", func(t *testing.T) {
		f := newAuthFixture(t, "")

		redirect, err := f.svc.Authorize(ctx, f.app, f.user, f.session)
		require.NoError(t, err)
		grant, err := f.svc.GetByToken(ctx, queryParam(t, redirect, "token"))
		require.NoError(t, err)

		require.NoError(t, f.svc.Revoke(ctx, grant))
		require.Empty(t, f.queue.byQueue(domain.QueueWebhookEvent))
	})

	t.Run("session cascade revokes every live grant", func(t *testing.T) {
		f := newAuthFixture(t, "https://app.example/hooks")

		apps := &ApplicationService{Store: f.store}
		other, err := apps.Create(ctx, "other", "https://other.example/cb", "")
		require.NoError(t, err)

		_, err = f.svc.Authorize(ctx, f.app, f.user, f.session)
		require.NoError(t, err)
		_, err = f.svc.Authorize(ctx, other.Application, f.user, f.session)
		require.NoError(t, err)

		require.NoError(t, f.svc.RevokeForSession(ctx, f.session))

		active, err := f.store.Authorizations().ListActiveAuthorizationsBySession(ctx, f.session.ID)
		require.NoError(t, err)
		require.Empty(t, active)

		// Only the app with a webhook configured gets notified.
		events := f.queue.byQueue(domain.QueueWebhookEvent)
		require.Len(t, events, 1)
	})
}
