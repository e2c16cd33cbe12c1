package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/mango3/identity/internal/identity/domain"
	"github.com/mango3/identity/internal/identity/store"
)

type confirmationsRepo struct {
	db dbtx
}

const confirmationColumns = `id, user_id, action, code_hash, expires_at,
	confirmed_at, created_at, updated_at`

func scanConfirmation(row interface{ Scan(...any) error }) (domain.Confirmation, error) {
	var (
		c         domain.Confirmation
		confirmed sql.NullTime
	)
	err := row.Scan(
		&c.ID, &c.UserID, &c.Action, &c.CodeHash, &c.ExpiresAt,
		&confirmed, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return domain.Confirmation{}, err
	}
	c.ConfirmedAt = mapNullTimePtr(confirmed)
	return c, nil
}

func (r *confirmationsRepo) CreateConfirmation(ctx context.Context, c domain.Confirmation) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO confirmations (`+confirmationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Action, c.CodeHash, c.ExpiresAt,
		mapOptionalTime(c.ConfirmedAt), c.CreatedAt, c.UpdatedAt)
	return mapConstraint(err)
}

func (r *confirmationsRepo) GetConfirmationByID(ctx context.Context, id string) (domain.Confirmation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+confirmationColumns+` FROM confirmations WHERE id = ?`, id)
	c, err := scanConfirmation(row)
	if err != nil {
		return domain.Confirmation{}, mapNotFound(err)
	}
	return c, nil
}

func (r *confirmationsRepo) ConsumeConfirmation(ctx context.Context, id string, at time.Time) error {
	// The guard makes consumption first-wins under concurrent verification.
	res, err := r.db.ExecContext(ctx, `
		UPDATE confirmations SET confirmed_at = ?, updated_at = ?
		WHERE id = ? AND confirmed_at IS NULL`,
		at, at, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

var _ store.Confirmations = (*confirmationsRepo)(nil)
