package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mango3/identity/internal/identity/domain"
	"github.com/mango3/identity/internal/identity/store"
	"github.com/mango3/identity/pkg/cryptox"
	"github.com/mango3/identity/pkg/idx"
	"github.com/mango3/identity/pkg/slogx"
)

type SessionService struct {
	Store store.Store
	Jobs  Enqueuer

	// TokenBytes is the entropy of session tokens before encoding.
	TokenBytes int
}

// Start opens a session for an authenticated user and returns it together
// with the bearer token to hand to the client.
func (s *SessionService) Start(ctx context.Context, user domain.User, userAgent, clientIP string) (domain.Session, error) {
	log := slogx.FromContext(ctx)
	now := time.Now().UTC()

	size := s.TokenBytes
	if size <= 0 {
		size = cryptox.TokenSize256
	}
	token, err := cryptox.GenerateToken(size)
	if err != nil {
		return domain.Session{}, err
	}

	session := domain.Session{
		ID:        idx.New().String(),
		UserID:    user.ID,
		Token:     token,
		UserAgent: userAgent,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.Store.Sessions().CreateSession(ctx, session); err != nil {
		return domain.Session{}, err
	}

	if err := s.Jobs.Enqueue(ctx, domain.QueueNewSession, domain.NewSessionPayload{
		SessionID: session.ID,
		IP:        clientIP,
	}); err != nil {
		log.Error("failed to enqueue new_session job",
			slog.String("session_id", session.ID),
			slog.Any("error", err),
		)
	}

	log.Info("session started",
		slog.String("session_id", session.ID),
		slog.String("user_id", user.ID),
	)
	return session, nil
}

// Finish closes a session. Finishing an already finished session is a no-op
// and does not enqueue a second finished_session job.
func (s *SessionService) Finish(ctx context.Context, session domain.Session) error {
	if !session.Active() {
		return nil
	}

	now := time.Now().UTC()
	if err := s.Store.Sessions().FinishSession(ctx, session.ID, now); err != nil {
		return err
	}

	log := slogx.FromContext(ctx)
	if err := s.Jobs.Enqueue(ctx, domain.QueueFinishedSession, domain.FinishedSessionPayload{
		SessionID: session.ID,
	}); err != nil {
		log.Error("failed to enqueue finished_session job",
			slog.String("session_id", session.ID),
			slog.Any("error", err),
		)
	}

	log.Info("session finished", slog.String("session_id", session.ID))
	return nil
}

// GetByToken resolves a bearer token to its active session.
func (s *SessionService) GetByToken(ctx context.Context, token string) (domain.Session, error) {
	if token == "" {
		return domain.Session{}, store.ErrNotFound
	}
	return s.Store.Sessions().GetActiveSessionByToken(ctx, token)
}

// GetUserByToken resolves a bearer token to the enabled user behind the
// active session.
func (s *SessionService) GetUserByToken(ctx context.Context, token string) (domain.User, domain.Session, error) {
	session, err := s.GetByToken(ctx, token)
	if err != nil {
		return domain.User{}, domain.Session{}, err
	}
	user, err := s.Store.Users().GetUserByID(ctx, session.UserID)
	if err != nil {
		return domain.User{}, domain.Session{}, err
	}
	if !user.Enabled() {
		return domain.User{}, domain.Session{}, store.ErrNotFound
	}
	return user, session, nil
}

// UpdateLocation enriches an active session with geolocation data. Finished
// sessions are left untouched.
func (s *SessionService) UpdateLocation(ctx context.Context, session domain.Session, countryAlpha2, region, city string) error {
	err := s.Store.Sessions().UpdateSessionLocation(ctx, session.ID, countryAlpha2, region, city)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// GetByID fetches a session regardless of state.
func (s *SessionService) GetByID(ctx context.Context, id string) (domain.Session, error) {
	return s.Store.Sessions().GetSessionByID(ctx, id)
}

// Touch bumps the session's updated_at while it is active.
func (s *SessionService) Touch(ctx context.Context, sessionID string) error {
	err := s.Store.Sessions().TouchSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}
