package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/mango3/identity/internal/identity/domain"
	"github.com/mango3/identity/internal/identity/store"
	"github.com/mango3/identity/pkg/idx"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func seedUser(t *testing.T, s *Store, username, email string) domain.User {
	t.Helper()

	now := time.Now().UTC()
	u := domain.User{
		ID:            idx.New().String(),
		Username:      username,
		Email:         email,
		PasswordHash:  "hash",
		DisplayName:   "Test",
		FullName:      "Test User",
		Birthdate:     time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
		LanguageCode:  "en",
		CountryAlpha2: "US",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, s.Users().CreateUser(context.Background(), u))
	return u
}

func seedSession(t *testing.T, s *Store, userID, token string) domain.Session {
	t.Helper()

	now := time.Now().UTC()
	sess := domain.Session{
		ID:        idx.New().String(),
		UserID:    userID,
		Token:     token,
		UserAgent: "test-agent",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.Sessions().CreateSession(context.Background(), sess))
	return sess
}

func seedApplication(t *testing.T, s *Store, name string) domain.Application {
	t.Helper()

	now := time.Now().UTC()
	app := domain.Application{
		ID:          idx.New().String(),
		Name:        name,
		RedirectURL: "https://app.example/cb",
		SecretHash:  "hash",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, s.Applications().CreateApplication(context.Background(), app))
	return app
}

func TestUsersRepo(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("create and get round trip", func(t *testing.T) {
		s := newTestStore(t)
		u := seedUser(t, s, "alice", "alice@example.com")

		got, err := s.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, u.Username, got.Username)
		require.Equal(t, u.Email, got.Email)
		require.True(t, got.Enabled())
		require.False(t, got.EmailConfirmed())
	})

	t.Run("duplicate username rejected case-insensitively", func(t *testing.T) {
		s := newTestStore(t)
		seedUser(t, s, "alice", "alice@example.com")

		dup := seedStub("ALICE", "other@example.com")
		err := s.Users().CreateUser(ctx, dup)
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("duplicate email rejected", func(t *testing.T) {
		s := newTestStore(t)
		seedUser(t, s, "alice", "alice@example.com")

		dup := seedStub("bob", "Alice@Example.com")
		err := s.Users().CreateUser(ctx, dup)
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("login lookup matches username but not unconfirmed email", func(t *testing.T) {
		s := newTestStore(t)
		u := seedUser(t, s, "alice", "alice@example.com")

		got, err := s.Users().GetEnabledUserByLogin(ctx, "ALICE")
		require.NoError(t, err)
		require.Equal(t, u.ID, got.ID)

		_, err = s.Users().GetEnabledUserByLogin(ctx, "alice@example.com")
		require.ErrorIs(t, err, store.ErrNotFound)

		require.NoError(t, s.Users().SetEmailConfirmed(ctx, u.ID, time.Now().UTC()))

		got, err = s.Users().GetEnabledUserByLogin(ctx, "alice@example.com")
		require.NoError(t, err)
		require.Equal(t, u.ID, got.ID)
	})

	t.Run("disabled users are invisible to login lookup", func(t *testing.T) {
		s := newTestStore(t)
		u := seedUser(t, s, "alice", "alice@example.com")

		require.NoError(t, s.Users().DisableUser(ctx, u.ID, time.Now().UTC()))

		_, err := s.Users().GetEnabledUserByLogin(ctx, "alice")
		require.ErrorIs(t, err, store.ErrNotFound)

		count, err := s.Users().CountEnabledUsers(ctx)
		require.NoError(t, err)
		require.Zero(t, count)
	})

	t.Run("count enabled users", func(t *testing.T) {
		s := newTestStore(t)
		seedUser(t, s, "alice", "alice@example.com")
		seedUser(t, s, "bob", "bob@example.com")

		count, err := s.Users().CountEnabledUsers(ctx)
		require.NoError(t, err)
		require.Equal(t, 2, count)
	})

	t.Run("update profile rewrites display name", func(t *testing.T) {
		s := newTestStore(t)
		u := seedUser(t, s, "alice", "alice@example.com")

		birthdate := time.Date(1991, 2, 3, 0, 0, 0, 0, time.UTC)
		require.NoError(t, s.Users().UpdateProfile(ctx, u.ID, "Alicia Jones", "Alicia", birthdate, "CA"))

		got, err := s.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, "Alicia Jones", got.FullName)
		require.Equal(t, "Alicia", got.DisplayName)
		require.Equal(t, "CA", got.CountryAlpha2)
		require.True(t, birthdate.Equal(got.Birthdate))
	})
}

// seedStub builds a user value without inserting it.
func seedStub(username, email string) domain.User {
	now := time.Now().UTC()
	return domain.User{
		ID:            idx.New().String(),
		Username:      username,
		Email:         email,
		PasswordHash:  "hash",
		DisplayName:   "Test",
		FullName:      "Test User",
		Birthdate:     time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
		LanguageCode:  "en",
		CountryAlpha2: "US",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestSessionsRepo(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("active token lookup excludes finished sessions", func(t *testing.T) {
		s := newTestStore(t)
		u := seedUser(t, s, "alice", "alice@example.com")
		sess := seedSession(t, s, u.ID, "tok-1")

		got, err := s.Sessions().GetActiveSessionByToken(ctx, "tok-1")
		require.NoError(t, err)
		require.Equal(t, sess.ID, got.ID)

		require.NoError(t, s.Sessions().FinishSession(ctx, sess.ID, time.Now().UTC()))

		_, err = s.Sessions().GetActiveSessionByToken(ctx, "tok-1")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("finish is idempotent and keeps the first timestamp", func(t *testing.T) {
		s := newTestStore(t)
		u := seedUser(t, s, "alice", "alice@example.com")
		sess := seedSession(t, s, u.ID, "tok-1")

		first := time.Now().UTC().Truncate(time.Second)
		require.NoError(t, s.Sessions().FinishSession(ctx, sess.ID, first))
		require.NoError(t, s.Sessions().FinishSession(ctx, sess.ID, first.Add(time.Hour)))

		got, err := s.Sessions().GetSessionByID(ctx, sess.ID)
		require.NoError(t, err)
		require.NotNil(t, got.FinishedAt)
		require.True(t, got.FinishedAt.Equal(first))
	})

	t.Run("finish unknown session returns not found", func(t *testing.T) {
		s := newTestStore(t)
		err := s.Sessions().FinishSession(ctx, "missing", time.Now().UTC())
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("location update only touches active sessions", func(t *testing.T) {
		s := newTestStore(t)
		u := seedUser(t, s, "alice", "alice@example.com")
		sess := seedSession(t, s, u.ID, "tok-1")

		require.NoError(t, s.Sessions().UpdateSessionLocation(ctx, sess.ID, "US", "California", "San Francisco"))

		got, err := s.Sessions().GetSessionByID(ctx, sess.ID)
		require.NoError(t, err)
		require.Equal(t, "US", got.CountryAlpha2)
		require.Equal(t, "San Francisco", got.City)

		require.NoError(t, s.Sessions().FinishSession(ctx, sess.ID, time.Now().UTC()))
		err = s.Sessions().UpdateSessionLocation(ctx, sess.ID, "CA", "Ontario", "Toronto")
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestAuthorizationsRepo(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	newGrant := func(appID, userID, sessionID, token string) domain.Authorization {
		now := time.Now().UTC()
		return domain.Authorization{
			ID:            idx.New().String(),
			ApplicationID: appID,
			UserID:        userID,
			SessionID:     sessionID,
			Token:         token,
			ExpiresAt:     now.Add(time.Hour),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}

	t.Run("upsert twice keeps a single row and records previous token", func(t *testing.T) {
		s := newTestStore(t)
		u := seedUser(t, s, "alice", "alice@example.com")
		sess := seedSession(t, s, u.ID, "tok-1")
		app := seedApplication(t, s, "demo")

		first, err := s.Authorizations().UpsertAuthorization(ctx, newGrant(app.ID, u.ID, sess.ID, "grant-1"))
		require.NoError(t, err)
		require.Nil(t, first.RefreshedAt)

		second, err := s.Authorizations().UpsertAuthorization(ctx, newGrant(app.ID, u.ID, sess.ID, "grant-2"))
		require.NoError(t, err)
		require.Equal(t, first.ID, second.ID)
		require.Equal(t, "grant-2", second.Token)
		require.Equal(t, "grant-1", second.PreviousToken)
		require.NotNil(t, second.RefreshedAt)

		// The rotated-out token stops resolving.
		_, err = s.Authorizations().GetAuthorizationByToken(ctx, "grant-1")
		require.ErrorIs(t, err, store.ErrNotFound)

		got, err := s.Authorizations().GetAuthorizationByToken(ctx, "grant-2")
		require.NoError(t, err)
		require.Equal(t, first.ID, got.ID)
	})

	t.Run("refresh rotates token and preserves revocation guard", func(t *testing.T) {
		s := newTestStore(t)
		u := seedUser(t, s, "alice", "alice@example.com")
		sess := seedSession(t, s, u.ID, "tok-1")
		app := seedApplication(t, s, "demo")

		grant, err := s.Authorizations().UpsertAuthorization(ctx, newGrant(app.ID, u.ID, sess.ID, "grant-1"))
		require.NoError(t, err)

		now := time.Now().UTC()
		require.NoError(t, s.Authorizations().RefreshAuthorization(ctx, grant.ID, "grant-2", now.Add(24*time.Hour), now))

		got, err := s.Authorizations().GetAuthorizationByID(ctx, grant.ID)
		require.NoError(t, err)
		require.Equal(t, "grant-2", got.Token)
		require.Equal(t, "grant-1", got.PreviousToken)

		require.NoError(t, s.Authorizations().RevokeAuthorization(ctx, grant.ID, now))
		err = s.Authorizations().RefreshAuthorization(ctx, grant.ID, "grant-3", now.Add(24*time.Hour), now)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("revoke is idempotent", func(t *testing.T) {
		s := newTestStore(t)
		u := seedUser(t, s, "alice", "alice@example.com")
		sess := seedSession(t, s, u.ID, "tok-1")
		app := seedApplication(t, s, "demo")

		grant, err := s.Authorizations().UpsertAuthorization(ctx, newGrant(app.ID, u.ID, sess.ID, "grant-1"))
		require.NoError(t, err)

		now := time.Now().UTC()
		require.NoError(t, s.Authorizations().RevokeAuthorization(ctx, grant.ID, now))
		require.NoError(t, s.Authorizations().RevokeAuthorization(ctx, grant.ID, now.Add(time.Minute)))

		got, err := s.Authorizations().GetAuthorizationByID(ctx, grant.ID)
		require.NoError(t, err)
		require.NotNil(t, got.RevokedAt)
	})

	t.Run("session listing excludes revoked grants", func(t *testing.T) {
		s := newTestStore(t)
		u := seedUser(t, s, "alice", "alice@example.com")
		sess := seedSession(t, s, u.ID, "tok-1")
		app1 := seedApplication(t, s, "one")
		app2 := seedApplication(t, s, "two")

		g1, err := s.Authorizations().UpsertAuthorization(ctx, newGrant(app1.ID, u.ID, sess.ID, "grant-1"))
		require.NoError(t, err)
		_, err = s.Authorizations().UpsertAuthorization(ctx, newGrant(app2.ID, u.ID, sess.ID, "grant-2"))
		require.NoError(t, err)

		require.NoError(t, s.Authorizations().RevokeAuthorization(ctx, g1.ID, time.Now().UTC()))

		active, err := s.Authorizations().ListActiveAuthorizationsBySession(ctx, sess.ID)
		require.NoError(t, err)
		require.Len(t, active, 1)
		require.Equal(t, "grant-2", active[0].Token)
	})
}

func TestConfirmationsRepo(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("consume is first-wins", func(t *testing.T) {
		s := newTestStore(t)
		u := seedUser(t, s, "alice", "alice@example.com")

		now := time.Now().UTC()
		c := domain.Confirmation{
			ID:        idx.New().String(),
			UserID:    u.ID,
			Action:    domain.ConfirmationPasswordReset,
			CodeHash:  "hash",
			ExpiresAt: now.Add(30 * time.Minute),
			CreatedAt: now,
			UpdatedAt: now,
		}
		require.NoError(t, s.Confirmations().CreateConfirmation(ctx, c))

		require.NoError(t, s.Confirmations().ConsumeConfirmation(ctx, c.ID, now))
		err := s.Confirmations().ConsumeConfirmation(ctx, c.ID, now.Add(time.Minute))
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestJobsRepo(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	enqueue := func(t *testing.T, s *Store, queue string, due time.Time) domain.Job {
		t.Helper()
		j := domain.Job{
			ID:            idx.New().String(),
			Queue:         queue,
			Payload:       []byte(`{}`),
			Status:        domain.JobPending,
			NextAttemptAt: due,
			CreatedAt:     due,
			UpdatedAt:     due,
		}
		require.NoError(t, s.Jobs().EnqueueJob(ctx, j))
		return j
	}

	t.Run("lease claims only due jobs on the requested queue", func(t *testing.T) {
		s := newTestStore(t)
		now := time.Now().UTC()

		due := enqueue(t, s, "new_user", now.Add(-time.Minute))
		enqueue(t, s, "new_user", now.Add(time.Hour))     // not due yet
		enqueue(t, s, "new_session", now.Add(-time.Hour)) // other queue

		leased, err := s.Jobs().LeaseDueJobs(ctx, "new_user", 10, now, time.Minute)
		require.NoError(t, err)
		require.Len(t, leased, 1)
		require.Equal(t, due.ID, leased[0].ID)
		require.Equal(t, 1, leased[0].Attempts)
	})

	t.Run("leased jobs are invisible until the lease lapses", func(t *testing.T) {
		s := newTestStore(t)
		now := time.Now().UTC()
		enqueue(t, s, "new_user", now.Add(-time.Minute))

		leased, err := s.Jobs().LeaseDueJobs(ctx, "new_user", 10, now, time.Minute)
		require.NoError(t, err)
		require.Len(t, leased, 1)

		again, err := s.Jobs().LeaseDueJobs(ctx, "new_user", 10, now, time.Minute)
		require.NoError(t, err)
		require.Empty(t, again)

		// After the lease expires another worker may claim it.
		later, err := s.Jobs().LeaseDueJobs(ctx, "new_user", 10, now.Add(2*time.Minute), time.Minute)
		require.NoError(t, err)
		require.Len(t, later, 1)
		require.Equal(t, 2, later[0].Attempts)
	})

	t.Run("complete removes the job from circulation", func(t *testing.T) {
		s := newTestStore(t)
		now := time.Now().UTC()
		j := enqueue(t, s, "new_user", now.Add(-time.Minute))

		_, err := s.Jobs().LeaseDueJobs(ctx, "new_user", 10, now, time.Minute)
		require.NoError(t, err)
		require.NoError(t, s.Jobs().CompleteJob(ctx, j.ID))

		later, err := s.Jobs().LeaseDueJobs(ctx, "new_user", 10, now.Add(2*time.Minute), time.Minute)
		require.NoError(t, err)
		require.Empty(t, later)

		done, err := s.Jobs().CountJobs(ctx, "new_user", domain.JobDone)
		require.NoError(t, err)
		require.Equal(t, 1, done)
	})

	t.Run("retry reschedules and records the error", func(t *testing.T) {
		s := newTestStore(t)
		now := time.Now().UTC()
		j := enqueue(t, s, "new_user", now.Add(-time.Minute))

		_, err := s.Jobs().LeaseDueJobs(ctx, "new_user", 10, now, time.Minute)
		require.NoError(t, err)

		next := now.Add(30 * time.Second)
		require.NoError(t, s.Jobs().RetryJob(ctx, j.ID, "smtp unavailable", next))

		none, err := s.Jobs().LeaseDueJobs(ctx, "new_user", 10, now, time.Minute)
		require.NoError(t, err)
		require.Empty(t, none)

		later, err := s.Jobs().LeaseDueJobs(ctx, "new_user", 10, next.Add(time.Second), time.Minute)
		require.NoError(t, err)
		require.Len(t, later, 1)
		require.Equal(t, "smtp unavailable", later[0].LastError)
	})

	t.Run("kill makes a job terminal", func(t *testing.T) {
		s := newTestStore(t)
		now := time.Now().UTC()
		j := enqueue(t, s, "new_user", now.Add(-time.Minute))

		_, err := s.Jobs().LeaseDueJobs(ctx, "new_user", 10, now, time.Minute)
		require.NoError(t, err)
		require.NoError(t, s.Jobs().KillJob(ctx, j.ID, "user no longer exists"))

		later, err := s.Jobs().LeaseDueJobs(ctx, "new_user", 10, now.Add(time.Hour), time.Minute)
		require.NoError(t, err)
		require.Empty(t, later)

		dead, err := s.Jobs().CountJobs(ctx, "new_user", domain.JobDead)
		require.NoError(t, err)
		require.Equal(t, 1, dead)
	})
}

func TestWithTx(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("rollback leaves no rows behind", func(t *testing.T) {
		s := newTestStore(t)

		err := s.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.Users().CreateUser(ctx, seedStub("alice", "alice@example.com")); err != nil {
				return err
			}
			return context.Canceled // any error triggers rollback
		})
		require.Error(t, err)

		count, err := s.Users().CountEnabledUsers(ctx)
		require.NoError(t, err)
		require.Zero(t, count)
	})

	t.Run("commit persists", func(t *testing.T) {
		s := newTestStore(t)

		err := s.WithTx(ctx, func(tx store.Tx) error {
			return tx.Users().CreateUser(ctx, seedStub("alice", "alice@example.com"))
		})
		require.NoError(t, err)

		count, err := s.Users().CountEnabledUsers(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, count)
	})
}
