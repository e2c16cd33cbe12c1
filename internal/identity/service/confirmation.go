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

type ConfirmationService struct {
	Store store.Store
	Jobs  Enqueuer

	// CodeLength is the number of characters in emitted codes.
	CodeLength int
	// TTL bounds how long a code stays verifiable.
	TTL time.Duration
}

// Issue creates a confirmation for the user and queues the email carrying the
// plaintext code. The code itself is only ever stored as a fingerprint.
func (s *ConfirmationService) Issue(ctx context.Context, user domain.User, action domain.ConfirmationAction) (domain.Confirmation, error) {
	if !action.Valid() {
		return domain.Confirmation{}, ErrConfirmationInvalid
	}

	log := slogx.FromContext(ctx)
	now := time.Now().UTC()

	length := s.CodeLength
	if length <= 0 {
		length = 8
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}

	code, err := cryptox.GenerateCode(length)
	if err != nil {
		return domain.Confirmation{}, err
	}

	confirmation := domain.Confirmation{
		ID:        idx.New().String(),
		UserID:    user.ID,
		Action:    action,
		CodeHash:  cryptox.FingerprintToken(code),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.Store.Confirmations().CreateConfirmation(ctx, confirmation); err != nil {
		return domain.Confirmation{}, err
	}

	if err := s.Jobs.Enqueue(ctx, domain.QueueNewConfirmation, domain.NewConfirmationPayload{
		ConfirmationID: confirmation.ID,
		Code:           code,
	}); err != nil {
		log.Error("failed to enqueue new_confirmation job",
			slog.String("confirmation_id", confirmation.ID),
			slog.Any("error", err),
		)
	}

	log.Info("confirmation issued",
		slog.String("confirmation_id", confirmation.ID),
		slog.String("user_id", user.ID),
		slog.String("action", string(action)),
	)
	return confirmation, nil
}

// Verify checks the code against a confirmation and, when it matches, runs
// the effect in the same transaction that consumes the code. Wrong code,
// wrong action, expiry and prior consumption all collapse into
// ErrConfirmationInvalid so callers cannot probe for existence.
func (s *ConfirmationService) Verify(ctx context.Context, id, code string, action domain.ConfirmationAction, effect func(tx store.Tx, c domain.Confirmation) error) error {
	now := time.Now().UTC()

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		confirmation, err := tx.Confirmations().GetConfirmationByID(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrConfirmationInvalid
			}
			return err
		}

		if confirmation.Action != action {
			return ErrConfirmationInvalid
		}
		if confirmation.Consumed() || confirmation.Expired(now) {
			return ErrConfirmationInvalid
		}
		if !cryptox.VerifyFingerprint(code, confirmation.CodeHash) {
			return ErrConfirmationInvalid
		}

		if err := tx.Confirmations().ConsumeConfirmation(ctx, id, now); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrConfirmationInvalid
			}
			return err
		}

		return effect(tx, confirmation)
	})
}

// ResetPassword consumes a password_reset confirmation and sets the new
// password in the same transaction.
func (s *ConfirmationService) ResetPassword(ctx context.Context, id, code, newPassword string) error {
	errs := ValidationErrors{}
	validatePassword(errs, newPassword)
	if len(errs) > 0 {
		return errs
	}

	hash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return err
	}

	return s.Verify(ctx, id, code, domain.ConfirmationPasswordReset, func(tx store.Tx, c domain.Confirmation) error {
		if err := tx.Users().UpdatePasswordHash(ctx, c.UserID, hash); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrConfirmationInvalid
			}
			return err
		}
		return s.Jobs.EnqueueIn(ctx, tx, domain.QueuePasswordChanged, domain.PasswordChangedPayload{UserID: c.UserID})
	})
}

// ConfirmEmail consumes an email confirmation and stamps the user's address
// as verified.
func (s *ConfirmationService) ConfirmEmail(ctx context.Context, id, code string) error {
	now := time.Now().UTC()

	return s.Verify(ctx, id, code, domain.ConfirmationEmail, func(tx store.Tx, c domain.Confirmation) error {
		if err := tx.Users().SetEmailConfirmed(ctx, c.UserID, now); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrConfirmationInvalid
			}
			return err
		}
		return nil
	})
}
