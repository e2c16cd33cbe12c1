package store

import (
	"context"
	"errors"
	"time"

	"github.com/mango3/identity/internal/identity/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite,
// postgres) implement this. It exposes sub-repositories to keep concerns tidy
// and testable, and it is the only component permitted to mutate persisted
// entities; everything above it works on read-mostly snapshots.
type Store interface {
	Users() Users
	Sessions() Sessions
	Applications() Applications
	Authorizations() Authorizations
	Confirmations() Confirmations
	Jobs() Jobs

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources (optional for sqlite).
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetEnabledUserByLogin looks up an enabled user by case-insensitive
	// username, or by case-insensitive email when the email is confirmed.
	GetEnabledUserByLogin(ctx context.Context, usernameOrEmail string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	// Returns ErrAlreadyExists on a username or email collision.
	CreateUser(ctx context.Context, u domain.User) error

	// CountEnabledUsers returns the number of non-disabled users, used for
	// the registration cap check.
	CountEnabledUsers(ctx context.Context) (int, error)

	// UsernameExists reports a case-insensitive username collision.
	UsernameExists(ctx context.Context, username string) (bool, error)

	// EmailExists reports a case-insensitive email collision.
	EmailExists(ctx context.Context, email string) (bool, error)

	// UpdatePasswordHash sets the password_hash (argon2) for an enabled user
	// and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID string, newHash string) error

	// SetEmailConfirmed stamps email_confirmed_at.
	SetEmailConfirmed(ctx context.Context, userID string, at time.Time) error

	// UpdateProfile mutates the descriptive fields for an enabled user.
	UpdateProfile(ctx context.Context, userID, fullName, displayName string, birthdate time.Time, countryAlpha2 string) error

	// DisableUser soft-disables an account. Users are never hard-deleted.
	DisableUser(ctx context.Context, userID string, at time.Time) error
}

type Sessions interface {
	// CreateSession stores a new session record.
	CreateSession(ctx context.Context, s domain.Session) error

	// GetSessionByID returns a session regardless of state.
	GetSessionByID(ctx context.Context, id string) (domain.Session, error)

	// GetActiveSessionByToken resolves a bearer token to its unfinished
	// session. Finished sessions are invisible here.
	GetActiveSessionByToken(ctx context.Context, token string) (domain.Session, error)

	// FinishSession transitions an active session to finished. It is a no-op
	// when the session is already finished; returns ErrNotFound for an
	// unknown id.
	FinishSession(ctx context.Context, id string, at time.Time) error

	// UpdateSessionLocation sets the geolocation columns while the session is
	// still active.
	UpdateSessionLocation(ctx context.Context, id, countryAlpha2, region, city string) error

	// TouchSession bumps updated_at on an active session.
	TouchSession(ctx context.Context, id string) error
}

type Applications interface {
	CreateApplication(ctx context.Context, a domain.Application) error
	GetApplicationByID(ctx context.Context, id string) (domain.Application, error)

	// ListApplications returns all applications ordered by creation date (newest first).
	ListApplications(ctx context.Context) ([]domain.Application, error)

	// UpdateApplicationURLs updates the redirect and webhook URLs.
	UpdateApplicationURLs(ctx context.Context, id, redirectURL, webhookURL string) error

	// UpdateApplicationSecretHash rotates the stored client secret hash.
	UpdateApplicationSecretHash(ctx context.Context, id, secretHash string) error

	// UpdateApplicationWebhookSecret rotates the encrypted webhook secret.
	UpdateApplicationWebhookSecret(ctx context.Context, id, encryptedSecret string) error

	// DeleteApplication removes an application; authorizations cascade per schema.
	DeleteApplication(ctx context.Context, id string) error
}

type Authorizations interface {
	// CreateAuthorization inserts a new grant. Returns ErrAlreadyExists when
	// a grant for the same (application, user, session) triple exists.
	CreateAuthorization(ctx context.Context, a domain.Authorization) error

	// UpsertAuthorization inserts a grant, or on a triple conflict rotates
	// the existing row's token (current moves to previous_token), extends
	// expiry, stamps refreshed_at and clears any revocation. Returns the row
	// as stored; RefreshedAt is nil only on the insert path.
	UpsertAuthorization(ctx context.Context, a domain.Authorization) (domain.Authorization, error)

	GetAuthorizationByID(ctx context.Context, id string) (domain.Authorization, error)

	// GetAuthorizationByTriple fetches the grant for an exact
	// (application, user, session) binding, regardless of state.
	GetAuthorizationByTriple(ctx context.Context, applicationID, userID, sessionID string) (domain.Authorization, error)

	// GetAuthorizationByToken matches the current token only; previous tokens
	// are history, not credentials.
	GetAuthorizationByToken(ctx context.Context, token string) (domain.Authorization, error)

	// RefreshAuthorization rotates the token (current moves to
	// previous_token), extends expiry and stamps refreshed_at, provided the
	// grant is not revoked.
	RefreshAuthorization(ctx context.Context, id, newToken string, expiresAt, at time.Time) error

	// RevokeAuthorization stamps revoked_at on a non-revoked grant. No-op if
	// already revoked; ErrNotFound for an unknown id.
	RevokeAuthorization(ctx context.Context, id string, at time.Time) error

	// ListActiveAuthorizationsBySession returns every non-revoked grant bound
	// to the session, for the cascade on session finish.
	ListActiveAuthorizationsBySession(ctx context.Context, sessionID string) ([]domain.Authorization, error)
}

type Confirmations interface {
	CreateConfirmation(ctx context.Context, c domain.Confirmation) error
	GetConfirmationByID(ctx context.Context, id string) (domain.Confirmation, error)

	// ConsumeConfirmation stamps confirmed_at on a not-yet-consumed record.
	// Returns ErrNotFound when the record is unknown or already consumed,
	// making consumption race-safe under concurrent verification.
	ConsumeConfirmation(ctx context.Context, id string, at time.Time) error
}

type Jobs interface {
	// EnqueueJob appends a job to its queue. Durable before return.
	EnqueueJob(ctx context.Context, j domain.Job) error

	// LeaseDueJobs atomically claims up to limit due pending jobs from one
	// queue for leaseTTL. Claimed jobs are invisible to other workers until
	// the lease lapses.
	LeaseDueJobs(ctx context.Context, queue string, limit int, now time.Time, leaseTTL time.Duration) ([]domain.Job, error)

	// CompleteJob marks a job done.
	CompleteJob(ctx context.Context, id string) error

	// RetryJob records a failure and schedules the next attempt.
	RetryJob(ctx context.Context, id, lastError string, nextAttemptAt time.Time) error

	// KillJob marks a job dead (exhausted retries or unresolvable reference).
	KillJob(ctx context.Context, id, lastError string) error

	// CountJobs returns the number of jobs on a queue in the given status.
	CountJobs(ctx context.Context, queue string, status domain.JobStatus) (int, error)
}
