package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/mango3/identity/internal/identity/domain"
	"github.com/mango3/identity/internal/identity/store"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, username, email, password_hash, display_name, full_name,
	birthdate, language_code, country_alpha2, email_confirmed_at, disabled_at,
	created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (domain.User, error) {
	var (
		u                        domain.User
		emailConfirmed, disabled sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.DisplayName,
		&u.FullName, &u.Birthdate, &u.LanguageCode, &u.CountryAlpha2,
		&emailConfirmed, &disabled, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	u.EmailConfirmedAt = mapNullTimePtr(emailConfirmed)
	u.DisabledAt = mapNullTimePtr(disabled)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetEnabledUserByLogin(ctx context.Context, usernameOrEmail string) (domain.User, error) {
	// Email matches only when the address was confirmed; an unconfirmed
	// address must not be usable as a login identifier.
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE disabled_at IS NULL
		  AND (
			LOWER(username) = LOWER(?)
			OR (email_confirmed_at IS NOT NULL AND LOWER(email) = LOWER(?))
		  )`,
		usernameOrEmail, usernameOrEmail)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.DisplayName, u.FullName,
		u.Birthdate, u.LanguageCode, u.CountryAlpha2,
		mapOptionalTime(u.EmailConfirmedAt), mapOptionalTime(u.DisabledAt),
		u.CreatedAt, u.UpdatedAt)
	return mapConstraint(err)
}

func (r *usersRepo) CountEnabledUsers(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE disabled_at IS NULL`).Scan(&n)
	return n, err
}

func (r *usersRepo) UsernameExists(ctx context.Context, username string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE LOWER(username) = LOWER(?)`, username).Scan(&n)
	return n > 0, err
}

func (r *usersRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE LOWER(email) = LOWER(?)`, email).Scan(&n)
	return n > 0, err
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID, newHash string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET password_hash = ?, updated_at = ?
		WHERE id = ? AND disabled_at IS NULL`,
		newHash, time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *usersRepo) SetEmailConfirmed(ctx context.Context, userID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET email_confirmed_at = ?, updated_at = ?
		WHERE id = ? AND disabled_at IS NULL`,
		at, at, userID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *usersRepo) UpdateProfile(ctx context.Context, userID, fullName, displayName string, birthdate time.Time, countryAlpha2 string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET full_name = ?, display_name = ?, birthdate = ?, country_alpha2 = ?, updated_at = ?
		WHERE id = ? AND disabled_at IS NULL`,
		fullName, displayName, birthdate, countryAlpha2, time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *usersRepo) DisableUser(ctx context.Context, userID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET disabled_at = ?, updated_at = ?
		WHERE id = ? AND disabled_at IS NULL`,
		at, at, userID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

var _ store.Users = (*usersRepo)(nil)
