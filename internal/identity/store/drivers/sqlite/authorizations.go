package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/mango3/identity/internal/identity/domain"
	"github.com/mango3/identity/internal/identity/store"
)

type authorizationsRepo struct {
	db dbtx
}

const authorizationColumns = `id, application_id, user_id, session_id, token,
	previous_token, expires_at, refreshed_at, revoked_at, created_at, updated_at`

func scanAuthorization(row interface{ Scan(...any) error }) (domain.Authorization, error) {
	var (
		a                  domain.Authorization
		previous           sql.NullString
		refreshed, revoked sql.NullTime
	)
	err := row.Scan(
		&a.ID, &a.ApplicationID, &a.UserID, &a.SessionID, &a.Token,
		&previous, &a.ExpiresAt, &refreshed, &revoked, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return domain.Authorization{}, err
	}
	a.PreviousToken = mapNullString(previous)
	a.RefreshedAt = mapNullTimePtr(refreshed)
	a.RevokedAt = mapNullTimePtr(revoked)
	return a, nil
}

func (r *authorizationsRepo) CreateAuthorization(ctx context.Context, a domain.Authorization) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO authorizations (`+authorizationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ApplicationID, a.UserID, a.SessionID, a.Token,
		mapStringNull(a.PreviousToken), a.ExpiresAt,
		mapOptionalTime(a.RefreshedAt), mapOptionalTime(a.RevokedAt),
		a.CreatedAt, a.UpdatedAt)
	return mapConstraint(err)
}

func (r *authorizationsRepo) UpsertAuthorization(ctx context.Context, a domain.Authorization) (domain.Authorization, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO authorizations (`+authorizationColumns+`)
		VALUES (?, ?, ?, ?, ?, NULL, ?, NULL, NULL, ?, ?)
		ON CONFLICT (application_id, user_id, session_id) DO UPDATE SET
			previous_token = authorizations.token,
			token = excluded.token,
			expires_at = excluded.expires_at,
			refreshed_at = excluded.updated_at,
			revoked_at = NULL,
			updated_at = excluded.updated_at
		RETURNING `+authorizationColumns,
		a.ID, a.ApplicationID, a.UserID, a.SessionID, a.Token,
		a.ExpiresAt, a.CreatedAt, a.UpdatedAt)
	stored, err := scanAuthorization(row)
	if err != nil {
		return domain.Authorization{}, mapConstraint(err)
	}
	return stored, nil
}

func (r *authorizationsRepo) GetAuthorizationByID(ctx context.Context, id string) (domain.Authorization, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+authorizationColumns+` FROM authorizations WHERE id = ?`, id)
	a, err := scanAuthorization(row)
	if err != nil {
		return domain.Authorization{}, mapNotFound(err)
	}
	return a, nil
}

func (r *authorizationsRepo) GetAuthorizationByTriple(ctx context.Context, applicationID, userID, sessionID string) (domain.Authorization, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+authorizationColumns+` FROM authorizations
		WHERE application_id = ? AND user_id = ? AND session_id = ?`,
		applicationID, userID, sessionID)
	a, err := scanAuthorization(row)
	if err != nil {
		return domain.Authorization{}, mapNotFound(err)
	}
	return a, nil
}

func (r *authorizationsRepo) GetAuthorizationByToken(ctx context.Context, token string) (domain.Authorization, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+authorizationColumns+` FROM authorizations WHERE token = ?`, token)
	a, err := scanAuthorization(row)
	if err != nil {
		return domain.Authorization{}, mapNotFound(err)
	}
	return a, nil
}

func (r *authorizationsRepo) RefreshAuthorization(ctx context.Context, id, newToken string, expiresAt, at time.Time) error {
	// Token rotation is atomic: the current token becomes previous_token in
	// the same statement, so there is no window with neither token valid.
	res, err := r.db.ExecContext(ctx, `
		UPDATE authorizations
		SET previous_token = token, token = ?, expires_at = ?,
		    refreshed_at = ?, updated_at = ?
		WHERE id = ? AND revoked_at IS NULL`,
		newToken, expiresAt, at, at, id)
	if err != nil {
		return mapConstraint(err)
	}
	return requireAffected(res)
}

func (r *authorizationsRepo) RevokeAuthorization(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE authorizations SET revoked_at = ?, updated_at = ?
		WHERE id = ? AND revoked_at IS NULL`,
		at, at, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	// Revoking an already revoked grant is a no-op, not an error.
	var exists int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM authorizations WHERE id = ?`, id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *authorizationsRepo) ListActiveAuthorizationsBySession(ctx context.Context, sessionID string) ([]domain.Authorization, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+authorizationColumns+` FROM authorizations
		WHERE session_id = ? AND revoked_at IS NULL
		ORDER BY created_at ASC, id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var auths []domain.Authorization
	for rows.Next() {
		a, err := scanAuthorization(rows)
		if err != nil {
			return nil, err
		}
		auths = append(auths, a)
	}
	return auths, rows.Err()
}

var _ store.Authorizations = (*authorizationsRepo)(nil)
