// Package emaillogs records email delivery attempts made by the worker.
package emaillogs

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teamspace/backend/internal/models"
	"github.com/teamspace/backend/pkg/database"
)

// Repository handles email_logs persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an email logs repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateEmailLog inserts one delivery attempt.
func (r *Repository) CreateEmailLog(ctx context.Context, l *models.EmailLog) error {
	const q = `INSERT INTO email_logs (job_id, email_type, recipient_email, subject, status, attempt, error_message, sent_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, ''), $8)
		RETURNING id, created_at`
	return database.Executor(ctx, r.pool).QueryRow(ctx, q,
		l.JobID, l.EmailType, l.RecipientEmail, l.Subject, l.Status, l.Attempt, l.ErrorMessage, l.SentAt,
	).Scan(&l.ID, &l.CreatedAt)
}

// ListByRecipient returns the attempts for an address, newest first.
func (r *Repository) ListByRecipient(ctx context.Context, email string, limit int) ([]*models.EmailLog, error) {
	const q = `SELECT id, job_id, email_type, recipient_email, subject, status, attempt, sent_at, error_message, created_at
		FROM email_logs
		WHERE lower(recipient_email) = lower($1)
		ORDER BY created_at DESC
		LIMIT $2`
	rows, err := database.Executor(ctx, r.pool).Query(ctx, q, email, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.EmailLog
	for rows.Next() {
		var el models.EmailLog
		var subject, errMsg *string
		if err := rows.Scan(&el.ID, &el.JobID, &el.EmailType, &el.RecipientEmail, &subject, &el.Status, &el.Attempt, &el.SentAt, &errMsg, &el.CreatedAt); err != nil {
			return nil, err
		}
		if subject != nil {
			el.Subject = *subject
		}
		if errMsg != nil {
			el.ErrorMessage = *errMsg
		}
		list = append(list, &el)
	}
	return list, rows.Err()
}
