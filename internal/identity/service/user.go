package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/mango3/identity/internal/identity/domain"
	"github.com/mango3/identity/internal/identity/store"
	"github.com/mango3/identity/pkg/cryptox"
	"github.com/mango3/identity/pkg/idx"
	"github.com/mango3/identity/pkg/slogx"
)

type UserService struct {
	Store store.Store
	Jobs  Enqueuer

	// UsersLimit caps the number of enabled accounts. Zero means closed.
	UsersLimit int
}

type RegisterInput struct {
	Username     string
	Email        string
	Password     string
	FullName     string
	Birthdate    string // YYYY-MM-DD
	LanguageCode string
	CountryCode  string // ISO 3166-1 alpha-2
}

// CanRegister reports whether the enabled-user count is still under the cap.
// The check is advisory; Register re-checks and the unique indexes are the
// final arbiter under concurrency.
func (s *UserService) CanRegister(ctx context.Context) (bool, error) {
	count, err := s.Store.Users().CountEnabledUsers(ctx)
	if err != nil {
		return false, err
	}
	return count < s.UsersLimit, nil
}

// Register creates a new enabled account and enqueues the new_user job.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	log := slogx.FromContext(ctx)
	now := time.Now().UTC()

	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)
	in.CountryCode = strings.ToUpper(strings.TrimSpace(in.CountryCode))
	if in.LanguageCode == "" {
		in.LanguageCode = "en"
	}

	errs := ValidationErrors{}
	validateUsername(errs, in.Username)
	validateEmail(errs, in.Email)
	validatePassword(errs, in.Password)
	validateFullName(errs, in.FullName)
	birthdate := validateBirthdate(errs, in.Birthdate, now)
	validateCountry(errs, in.CountryCode)
	if len(errs) > 0 {
		return domain.User{}, errs
	}

	ok, err := s.CanRegister(ctx)
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		return domain.User{}, ErrRegistrationClosed
	}

	// Pre-checks give friendly field errors; the unique indexes still back
	// them up under races.
	if taken, err := s.Store.Users().UsernameExists(ctx, in.Username); err != nil {
		return domain.User{}, err
	} else if taken {
		errs["username"] = "is already taken"
	}
	if taken, err := s.Store.Users().EmailExists(ctx, in.Email); err != nil {
		return domain.User{}, err
	} else if taken {
		errs["email"] = "is already taken"
	}
	if len(errs) > 0 {
		return domain.User{}, errs
	}

	hash, err := cryptox.HashPassword(in.Password)
	if err != nil {
		return domain.User{}, err
	}

	user := domain.User{
		ID:            idx.New().String(),
		Username:      in.Username,
		Email:         in.Email,
		PasswordHash:  hash,
		DisplayName:   displayNameFrom(in.FullName),
		FullName:      in.FullName,
		Birthdate:     birthdate,
		LanguageCode:  in.LanguageCode,
		CountryAlpha2: in.CountryCode,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.Store.Users().CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, s.duplicateErrors(ctx, in.Username, in.Email)
		}
		return domain.User{}, err
	}

	if err := s.Jobs.Enqueue(ctx, domain.QueueNewUser, domain.NewUserPayload{UserID: user.ID}); err != nil {
		log.Error("failed to enqueue new_user job",
			slog.String("user_id", user.ID),
			slog.Any("error", err),
		)
	}

	log.Info("user registered", slog.String("user_id", user.ID))
	return user, nil
}

// duplicateErrors re-probes the unique indexes after an insert lost a race
// with a concurrent registration, so the conflict lands on the right field.
func (s *UserService) duplicateErrors(ctx context.Context, username, email string) ValidationErrors {
	errs := ValidationErrors{}
	if taken, err := s.Store.Users().UsernameExists(ctx, username); err == nil && taken {
		errs["username"] = "is already taken"
	}
	if taken, err := s.Store.Users().EmailExists(ctx, email); err == nil && taken {
		errs["email"] = "is already taken"
	}
	if len(errs) == 0 {
		errs["username"] = "is already taken"
	}
	return errs
}

// Authenticate resolves a login identifier plus password to an enabled user.
// Every failure mode collapses into ErrAuthenticationFailed.
func (s *UserService) Authenticate(ctx context.Context, usernameOrEmail, password string) (domain.User, error) {
	usernameOrEmail = strings.TrimSpace(usernameOrEmail)
	if usernameOrEmail == "" || password == "" {
		return domain.User{}, ErrAuthenticationFailed
	}

	user, err := s.Store.Users().GetEnabledUserByLogin(ctx, usernameOrEmail)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrAuthenticationFailed
		}
		return domain.User{}, err
	}

	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		return domain.User{}, ErrAuthenticationFailed
	}

	return user, nil
}

// ChangePassword re-verifies the current password before setting the new one.
func (s *UserService) ChangePassword(ctx context.Context, user domain.User, current, newPassword string) error {
	if err := cryptox.VerifyPassword(current, user.PasswordHash); err != nil {
		return ErrAuthenticationFailed
	}

	errs := ValidationErrors{}
	validatePassword(errs, newPassword)
	if len(errs) > 0 {
		return errs
	}

	return s.setPassword(ctx, user.ID, newPassword)
}

// setPassword hashes and stores a new password, then enqueues the
// password_changed notice. Shared with the reset-by-confirmation flow.
func (s *UserService) setPassword(ctx context.Context, userID, newPassword string) error {
	hash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.Store.Users().UpdatePasswordHash(ctx, userID, hash); err != nil {
		return err
	}

	log := slogx.FromContext(ctx)
	if err := s.Jobs.Enqueue(ctx, domain.QueuePasswordChanged, domain.PasswordChangedPayload{UserID: userID}); err != nil {
		log.Error("failed to enqueue password_changed job",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}
	log.Info("password changed", slog.String("user_id", userID))
	return nil
}

type ProfileInput struct {
	FullName    string
	Birthdate   string // YYYY-MM-DD
	CountryCode string
}

// UpdateProfile mutates the user's descriptive fields. The display name is
// re-derived from the full name.
func (s *UserService) UpdateProfile(ctx context.Context, user domain.User, in ProfileInput) error {
	now := time.Now().UTC()

	in.FullName = strings.TrimSpace(in.FullName)
	in.CountryCode = strings.ToUpper(strings.TrimSpace(in.CountryCode))

	errs := ValidationErrors{}
	validateFullName(errs, in.FullName)
	birthdate := validateBirthdate(errs, in.Birthdate, now)
	validateCountry(errs, in.CountryCode)
	if len(errs) > 0 {
		return errs
	}

	return s.Store.Users().UpdateProfile(ctx, user.ID, in.FullName, displayNameFrom(in.FullName), birthdate, in.CountryCode)
}

// GetUserByID fetches a user by id.
func (s *UserService) GetUserByID(ctx context.Context, userID string) (domain.User, error) {
	return s.Store.Users().GetUserByID(ctx, userID)
}
