// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/oliverandrich/resumekit/internal/models"
)

// CreateVacatedEmail records the address of a deleted account.
func (r *Repository) CreateVacatedEmail(ctx context.Context, email string, vacatedAt time.Time) (*models.VacatedEmail, error) {
	v := &models.VacatedEmail{Email: models.NormalizeEmail(email), VacatedAt: vacatedAt.UTC()}
	err := r.db.GetContext(ctx, &v.ID,
		`INSERT INTO vacated_emails (email, vacated_at) VALUES (?, ?) RETURNING id`,
		v.Email, v.VacatedAt)
	if err != nil {
		return nil, wrapError(err)
	}
	return v, nil
}

// LatestVacatedEmail returns the most recent vacated record for an address.
func (r *Repository) LatestVacatedEmail(ctx context.Context, email string) (*models.VacatedEmail, error) {
	var v models.VacatedEmail
	err := r.db.GetContext(ctx, &v,
		`SELECT * FROM vacated_emails WHERE email = ? ORDER BY vacated_at DESC, id DESC LIMIT 1`,
		models.NormalizeEmail(email))
	if err != nil {
		return nil, wrapError(err)
	}
	return &v, nil
}

// CountVacatedEmails counts the vacated records of an address.
func (r *Repository) CountVacatedEmails(ctx context.Context, email string) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count,
		`SELECT count(*) FROM vacated_emails WHERE email = ?`, models.NormalizeEmail(email))
	return count, wrapError(err)
}

// DeleteVacatedEmailsBefore removes records vacated before cutoff.
func (r *Repository) DeleteVacatedEmailsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return rowsAffected(r.db.ExecContext(ctx,
		`DELETE FROM vacated_emails WHERE vacated_at < ?`, cutoff.UTC()))
}
