package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/mango3/identity/internal/identity/domain"
	"github.com/mango3/identity/internal/identity/store"
)

type jobsRepo struct {
	db dbtx
}

const jobColumns = `id, queue, payload, status, attempts, next_attempt_at,
	lease_expires_at, last_error, created_at, updated_at`

func scanJob(row interface{ Scan(...any) error }) (domain.Job, error) {
	var (
		j         domain.Job
		lease     sql.NullTime
		lastError sql.NullString
	)
	err := row.Scan(
		&j.ID, &j.Queue, &j.Payload, &j.Status, &j.Attempts,
		&j.NextAttemptAt, &lease, &lastError, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return domain.Job{}, err
	}
	j.LeaseExpiresAt = mapNullTimePtr(lease)
	j.LastError = mapNullString(lastError)
	return j, nil
}

func (r *jobsRepo) EnqueueJob(ctx context.Context, j domain.Job) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.Queue, j.Payload, j.Status, j.Attempts, j.NextAttemptAt,
		mapOptionalTime(j.LeaseExpiresAt), mapStringNull(j.LastError),
		j.CreatedAt, j.UpdatedAt)
	return mapConstraint(err)
}

func (r *jobsRepo) LeaseDueJobs(ctx context.Context, queue string, limit int, now time.Time, leaseTTL time.Duration) ([]domain.Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	now = now.UTC()

	// Claim and return in one statement so concurrent workers never lease
	// the same job. Attempts is bumped at lease time; it counts processing
	// attempts regardless of outcome.
	rows, err := r.db.QueryContext(ctx, `
		UPDATE jobs
		SET lease_expires_at = ?, attempts = attempts + 1, updated_at = ?
		WHERE id IN (
			SELECT id FROM jobs
			WHERE queue = ?
			  AND status = ?
			  AND next_attempt_at <= ?
			  AND (lease_expires_at IS NULL OR lease_expires_at <= ?)
			ORDER BY next_attempt_at ASC, created_at ASC, id ASC
			LIMIT ?
		)
		RETURNING `+jobColumns,
		now.Add(leaseTTL), now, queue, domain.JobPending, now, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *jobsRepo) CompleteJob(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, lease_expires_at = NULL, updated_at = ?
		WHERE id = ? AND status = ?`,
		domain.JobDone, time.Now().UTC(), id, domain.JobPending)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *jobsRepo) RetryJob(ctx context.Context, id, lastError string, nextAttemptAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs
		SET lease_expires_at = NULL, last_error = ?, next_attempt_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		mapStringNull(lastError), nextAttemptAt, time.Now().UTC(), id, domain.JobPending)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *jobsRepo) KillJob(ctx context.Context, id, lastError string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, lease_expires_at = NULL, last_error = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		domain.JobDead, mapStringNull(lastError), time.Now().UTC(), id, domain.JobPending)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *jobsRepo) CountJobs(ctx context.Context, queue string, status domain.JobStatus) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobs WHERE queue = ? AND status = ?`, queue, status).Scan(&n)
	return n, err
}

var _ store.Jobs = (*jobsRepo)(nil)
