package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/mango3/identity/internal/identity/domain"
	"github.com/mango3/identity/internal/identity/store"
)

type sessionsRepo struct {
	db dbtx
}

const sessionColumns = `id, user_id, token, user_agent, country_alpha2, region,
	city, finished_at, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (domain.Session, error) {
	var (
		s        domain.Session
		finished sql.NullTime
	)
	err := row.Scan(
		&s.ID, &s.UserID, &s.Token, &s.UserAgent, &s.CountryAlpha2,
		&s.Region, &s.City, &finished, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return domain.Session{}, err
	}
	s.FinishedAt = mapNullTimePtr(finished)
	return s, nil
}

func (r *sessionsRepo) CreateSession(ctx context.Context, s domain.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.Token, s.UserAgent, s.CountryAlpha2, s.Region,
		s.City, mapOptionalTime(s.FinishedAt), s.CreatedAt, s.UpdatedAt)
	return mapConstraint(err)
}

func (r *sessionsRepo) GetSessionByID(ctx context.Context, id string) (domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if err != nil {
		return domain.Session{}, mapNotFound(err)
	}
	return s, nil
}

func (r *sessionsRepo) GetActiveSessionByToken(ctx context.Context, token string) (domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE token = ? AND finished_at IS NULL`, token)
	s, err := scanSession(row)
	if err != nil {
		return domain.Session{}, mapNotFound(err)
	}
	return s, nil
}

func (r *sessionsRepo) FinishSession(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET finished_at = ?, updated_at = ?
		WHERE id = ? AND finished_at IS NULL`,
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
	// Distinguish "already finished" (idempotent no-op) from "unknown id".
	var exists int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE id = ?`, id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *sessionsRepo) UpdateSessionLocation(ctx context.Context, id, countryAlpha2, region, city string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET country_alpha2 = ?, region = ?, city = ?, updated_at = ?
		WHERE id = ? AND finished_at IS NULL`,
		countryAlpha2, region, city, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *sessionsRepo) TouchSession(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET updated_at = ?
		WHERE id = ? AND finished_at IS NULL`,
		time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

var _ store.Sessions = (*sessionsRepo)(nil)
