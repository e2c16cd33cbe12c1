package service

import (
	"context"
	"testing"
	"time"

	"github.com/mango3/identity/internal/identity/domain"
	"github.com/mango3/identity/internal/identity/store"
	"github.com/stretchr/testify/require"
)

func registerUser(t *testing.T, st store.Store) domain.User {
	t.Helper()

	users := &UserService{Store: st, Jobs: &captureQueue{}, UsersLimit: 10}
	user, err := users.Register(context.Background(), validRegisterInput())
	require.NoError(t, err)
	return user
}

func TestSessionService_Start(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	user := registerUser(t, st)

	queue := &captureQueue{}
	svc := &SessionService{Store: st, Jobs: queue}

	session, err := svc.Start(ctx, user, "test-agent", "203.0.113.7")
	require.NoError(t, err)
	require.NotEmpty(t, session.Token)
	require.True(t, session.Active())

	got, err := svc.GetByToken(ctx, session.Token)
	require.NoError(t, err)
	require.Equal(t, session.ID, got.ID)
	require.Equal(t, "test-agent", got.UserAgent)

	jobs := queue.byQueue(domain.QueueNewSession)
	require.Len(t, jobs, 1)
	payload, ok := jobs[0].Payload.(domain.NewSessionPayload)
	require.True(t, ok)
	require.Equal(t, session.ID, payload.SessionID)
	require.Equal(t, "203.0.113.7", payload.IP)

	// Tokens never repeat between sessions.
	second, err := svc.Start(ctx, user, "test-agent", "203.0.113.7")
	require.NoError(t, err)
	require.NotEqual(t, session.Token, second.Token)
}

func TestSessionService_Finish(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	user := registerUser(t, st)

	queue := &captureQueue{}
	svc := &SessionService{Store: st, Jobs: queue}

	session, err := svc.Start(ctx, user, "test-agent", "203.0.113.7")
	require.NoError(t, err)

	require.NoError(t, svc.Finish(ctx, session))

	_, err = svc.GetByToken(ctx, session.Token)
	require.ErrorIs(t, err, store.ErrNotFound)

	// Finishing again is a no-op and enqueues nothing further.
	finished, err := svc.GetByID(ctx, session.ID)
	require.NoError(t, err)
	require.NoError(t, svc.Finish(ctx, finished))

	jobs := queue.byQueue(domain.QueueFinishedSession)
	require.Len(t, jobs, 1)
}

func TestSessionService_GetUserByToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	user := registerUser(t, st)
	svc := &SessionService{Store: st, Jobs: &captureQueue{}}

	session, err := svc.Start(ctx, user, "test-agent", "203.0.113.7")
	require.NoError(t, err)

	t.Run("resolves the enabled user", func(t *testing.T) {
		gotUser, gotSession, err := svc.GetUserByToken(ctx, session.Token)
		require.NoError(t, err)
		require.Equal(t, user.ID, gotUser.ID)
		require.Equal(t, session.ID, gotSession.ID)
	})

	t.Run("empty token is not found", func(t *testing.T) {
		_, _, err := svc.GetUserByToken(ctx, "")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("disabled user is not found", func(t *testing.T) {
		require.NoError(t, st.Users().DisableUser(ctx, user.ID, time.Now().UTC()))

		_, _, err := svc.GetUserByToken(ctx, session.Token)
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestSessionService_UpdateLocation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	user := registerUser(t, st)
	svc := &SessionService{Store: st, Jobs: &captureQueue{}}

	session, err := svc.Start(ctx, user, "test-agent", "203.0.113.7")
	require.NoError(t, err)

	require.NoError(t, svc.UpdateLocation(ctx, session, "US", "California", "San Francisco"))

	got, err := svc.GetByID(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, "US", got.CountryAlpha2)
	require.Contains(t, got.Location(), "California, San Francisco")

	// Enrichment arriving after logout is silently dropped.
	require.NoError(t, svc.Finish(ctx, session))
	require.NoError(t, svc.UpdateLocation(ctx, session, "CA", "Ontario", "Toronto"))

	got, err = svc.GetByID(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, "US", got.CountryAlpha2)
}
