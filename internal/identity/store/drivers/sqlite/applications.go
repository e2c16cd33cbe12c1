package sqlite

import (
	"context"
	"time"

	"github.com/mango3/identity/internal/identity/domain"
	"github.com/mango3/identity/internal/identity/store"
)

type applicationsRepo struct {
	db dbtx
}

const applicationColumns = `id, name, redirect_url, secret_hash, webhook_url,
	webhook_secret_encrypted, created_at, updated_at`

func scanApplication(row interface{ Scan(...any) error }) (domain.Application, error) {
	var a domain.Application
	err := row.Scan(
		&a.ID, &a.Name, &a.RedirectURL, &a.SecretHash, &a.WebhookURL,
		&a.WebhookSecretEncrypted, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return domain.Application{}, err
	}
	return a, nil
}

func (r *applicationsRepo) CreateApplication(ctx context.Context, a domain.Application) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO applications (`+applicationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.RedirectURL, a.SecretHash, a.WebhookURL,
		a.WebhookSecretEncrypted, a.CreatedAt, a.UpdatedAt)
	return mapConstraint(err)
}

func (r *applicationsRepo) GetApplicationByID(ctx context.Context, id string) (domain.Application, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = ?`, id)
	a, err := scanApplication(row)
	if err != nil {
		return domain.Application{}, mapNotFound(err)
	}
	return a, nil
}

func (r *applicationsRepo) ListApplications(ctx context.Context) ([]domain.Application, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+applicationColumns+` FROM applications ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []domain.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

func (r *applicationsRepo) UpdateApplicationURLs(ctx context.Context, id, redirectURL, webhookURL string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE applications SET redirect_url = ?, webhook_url = ?, updated_at = ?
		WHERE id = ?`,
		redirectURL, webhookURL, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *applicationsRepo) UpdateApplicationSecretHash(ctx context.Context, id, secretHash string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE applications SET secret_hash = ?, updated_at = ?
		WHERE id = ?`,
		secretHash, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *applicationsRepo) UpdateApplicationWebhookSecret(ctx context.Context, id, encryptedSecret string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE applications SET webhook_secret_encrypted = ?, updated_at = ?
		WHERE id = ?`,
		encryptedSecret, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *applicationsRepo) DeleteApplication(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM applications WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

var _ store.Applications = (*applicationsRepo)(nil)
