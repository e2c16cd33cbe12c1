package jobs

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mango3/identity/internal/identity/domain"
	"github.com/mango3/identity/internal/identity/service"
	"github.com/mango3/identity/internal/identity/store"
	"github.com/mango3/identity/pkg/identitysdk"
	"github.com/stretchr/testify/require"
)

type handlerFixture struct {
	store    store.Store
	sender   *captureSender
	handlers *Handlers
	user     domain.User
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	st := newTestStore(t)
	user := registerUser(t, st)

	queue := &Queue{Store: st}
	sender := &captureSender{}
	sessions := &service.SessionService{Store: st, Jobs: queue}

	return &handlerFixture{
		store:  st,
		sender: sender,
		user:   user,
		handlers: &Handlers{
			Store:          st,
			Logger:         testLogger(),
			Sessions:       sessions,
			Authorizations: &service.AuthorizationService{Store: st, Jobs: queue},
			Webhooks:       &service.WebhookService{},
			Mailer:         &Mailer{Sender: sender, SupportAddress: "support@localhost"},
			GeoIP:          &GeoIP{},
		},
	}
}

func encode(t *testing.T, payload any) []byte {
	t.Helper()
	encoded, err := json.Marshal(payload)
	require.NoError(t, err)
	return encoded
}

func TestHandlers_Map(t *testing.T) {
	t.Parallel()

	f := newHandlerFixture(t)
	handlers := f.handlers.Map()
	for _, queue := range []string{
		domain.QueueNewUser,
		domain.QueueNewSession,
		domain.QueueFinishedSession,
		domain.QueueNewConfirmation,
		domain.QueuePasswordChanged,
		domain.QueueRefreshedAuthorization,
		domain.QueueWebhookEvent,
	} {
		require.Contains(t, handlers, queue)
	}
}

func TestHandlers_NewUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("sends welcome and admin notice", func(t *testing.T) {
		f := newHandlerFixture(t)

		err := f.handlers.newUser(ctx, encode(t, domain.NewUserPayload{UserID: f.user.ID}))
		require.NoError(t, err)

		emails := f.sender.sent()
		require.Len(t, emails, 2)
		require.Equal(t, "support@localhost", emails[0].To)
		require.Equal(t, "(Admin) New user account created", emails[0].Subject)
		require.Equal(t, f.user.Email, emails[1].To)
		require.Equal(t, "Welcome to Mango³", emails[1].Subject)
		require.Contains(t, emails[1].Body, "Hello @alice,")
	})

	t.Run("missing user discards the job", func(t *testing.T) {
		f := newHandlerFixture(t)

		err := f.handlers.newUser(ctx, encode(t, domain.NewUserPayload{UserID: "gone"}))
		require.ErrorIs(t, err, ErrDiscard)
	})

	t.Run("malformed payload discards the job", func(t *testing.T) {
		f := newHandlerFixture(t)

		err := f.handlers.newUser(ctx, []byte("{not json"))
		require.ErrorIs(t, err, ErrDiscard)
	})
}

func TestHandlers_NewSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	startSession := func(t *testing.T, f *handlerFixture) domain.Session {
		t.Helper()
		session, err := f.handlers.Sessions.Start(ctx, f.user, "FancyApp/1.0", "203.0.113.7")
		require.NoError(t, err)
		return session
	}

	t.Run("loopback addresses skip geolocation", func(t *testing.T) {
		f := newHandlerFixture(t)
		session := startSession(t, f)

		err := f.handlers.newSession(ctx, encode(t, domain.NewSessionPayload{
			SessionID: session.ID,
			IP:        "127.0.0.1",
		}))
		require.NoError(t, err)

		emails := f.sender.sent()
		require.Len(t, emails, 1)
		require.Equal(t, "New session started", emails[0].Subject)
		require.Contains(t, emails[0].Body, "Application: FancyApp/1.0")
		require.Contains(t, emails[0].Body, "Location: Unknown")
	})

	t.Run("routable addresses are enriched before the email renders", func(t *testing.T) {
		f := newHandlerFixture(t)
		session := startSession(t, f)

		geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "203.0.113.7", r.URL.Query().Get("ip"))
			io.WriteString(w, `{"location":{"country_code2":"US","state_prov":"California","city":"San Francisco"}}`)
		}))
		t.Cleanup(geo.Close)
		f.handlers.GeoIP = &GeoIP{APIKey: "test-key", BaseURL: geo.URL}

		err := f.handlers.newSession(ctx, encode(t, domain.NewSessionPayload{
			SessionID: session.ID,
			IP:        "203.0.113.7",
		}))
		require.NoError(t, err)

		stored, err := f.store.Sessions().GetSessionByID(ctx, session.ID)
		require.NoError(t, err)
		require.Equal(t, "US", stored.CountryAlpha2)
		require.Equal(t, "San Francisco", stored.City)

		emails := f.sender.sent()
		require.Len(t, emails, 1)
		require.Contains(t, emails[0].Body, "California, San Francisco")
	})

	t.Run("geolocation failure still sends the email", func(t *testing.T) {
		f := newHandlerFixture(t)
		session := startSession(t, f)

		geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		t.Cleanup(geo.Close)
		f.handlers.GeoIP = &GeoIP{APIKey: "test-key", BaseURL: geo.URL}

		err := f.handlers.newSession(ctx, encode(t, domain.NewSessionPayload{
			SessionID: session.ID,
			IP:        "203.0.113.7",
		}))
		require.NoError(t, err)
		require.Len(t, f.sender.sent(), 1)
	})

	t.Run("missing session discards the job", func(t *testing.T) {
		f := newHandlerFixture(t)

		err := f.handlers.newSession(ctx, encode(t, domain.NewSessionPayload{SessionID: "gone"}))
		require.ErrorIs(t, err, ErrDiscard)
	})
}

func TestHandlers_FinishedSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newHandlerFixture(t)
	session, err := f.handlers.Sessions.Start(ctx, f.user, "test-agent", "203.0.113.7")
	require.NoError(t, err)

	apps := &service.ApplicationService{Store: f.store}
	created, err := apps.Create(ctx, "demo", "https://app.example/cb", "")
	require.NoError(t, err)

	_, err = f.handlers.Authorizations.Authorize(ctx, created.Application, f.user, session)
	require.NoError(t, err)

	err = f.handlers.finishedSession(ctx, encode(t, domain.FinishedSessionPayload{SessionID: session.ID}))
	require.NoError(t, err)

	active, err := f.store.Authorizations().ListActiveAuthorizationsBySession(ctx, session.ID)
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestHandlers_NewConfirmation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newHandlerFixture(t)

	confirmations := &service.ConfirmationService{Store: f.store, Jobs: &Queue{Store: f.store}}
	confirmation, err := confirmations.Issue(ctx, f.user, domain.ConfirmationPasswordReset)
	require.NoError(t, err)

	err = f.handlers.newConfirmation(ctx, encode(t, domain.NewConfirmationPayload{
		ConfirmationID: confirmation.ID,
		Code:           "ABCD1234",
	}))
	require.NoError(t, err)

	emails := f.sender.sent()
	require.Len(t, emails, 1)
	require.Equal(t, "Confirmation code", emails[0].Subject)
	require.Contains(t, emails[0].Body, "reset your password")
	require.Contains(t, emails[0].Body, "ABCD1234")
}

func TestHandlers_PasswordChanged(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newHandlerFixture(t)

	err := f.handlers.passwordChanged(ctx, encode(t, domain.PasswordChangedPayload{UserID: f.user.ID}))
	require.NoError(t, err)

	emails := f.sender.sent()
	require.Len(t, emails, 1)
	require.Equal(t, "Password changed", emails[0].Subject)
}

func TestHandlers_RefreshedAuthorization(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newHandlerFixture(t)
	session, err := f.handlers.Sessions.Start(ctx, f.user, "test-agent", "203.0.113.7")
	require.NoError(t, err)

	apps := &service.ApplicationService{Store: f.store}
	created, err := apps.Create(ctx, "demo", "https://app.example/cb", "")
	require.NoError(t, err)

	_, err = f.handlers.Authorizations.Authorize(ctx, created.Application, f.user, session)
	require.NoError(t, err)

	grants, err := f.store.Authorizations().ListActiveAuthorizationsBySession(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)

	err = f.handlers.refreshedAuthorization(ctx, encode(t, domain.RefreshedAuthorizationPayload{
		AuthorizationID: grants[0].ID,
	}))
	require.NoError(t, err)

	err = f.handlers.refreshedAuthorization(ctx, encode(t, domain.RefreshedAuthorizationPayload{
		AuthorizationID: "gone",
	}))
	require.ErrorIs(t, err, ErrDiscard)
}

func TestHandlers_WebhookEvent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newHandlerFixture(t)

	var gotBody []byte
	var gotSignature string
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		gotBody = body
		gotSignature = r.Header.Get(service.SignatureHeader)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(receiver.Close)

	apps := &service.ApplicationService{Store: f.store}
	created, err := apps.Create(ctx, "demo", "https://app.example/cb", receiver.URL)
	require.NoError(t, err)

	err = f.handlers.webhookEvent(ctx, encode(t, domain.WebhookEventPayload{
		ApplicationID: created.Application.ID,
		EventType:     "authorization_revoked",
		Data:          json.RawMessage(`{"token":"abc"}`),
	}))
	require.NoError(t, err)

	require.True(t, identitysdk.VerifySignature(created.WebhookSecret, gotBody, gotSignature))

	err = f.handlers.webhookEvent(ctx, encode(t, domain.WebhookEventPayload{ApplicationID: "gone"}))
	require.ErrorIs(t, err, ErrDiscard)
}
