// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/oliverandrich/resumekit/internal/models"
)

// SavePendingSignup stores a signup request and sets its ID. Earlier open
// requests for the same address are left untouched.
func (r *Repository) SavePendingSignup(ctx context.Context, p *models.PendingSignup) error {
	p.Email = models.NormalizeEmail(p.Email)
	p.CreatedAt = p.CreatedAt.UTC()

	err := r.db.GetContext(ctx, &p.ID,
		`INSERT INTO pending_signups (email, first_name, last_name, password_hash, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 RETURNING id`,
		p.Email, p.FirstName, p.LastName, p.PasswordHash, p.CreatedAt)
	return wrapError(err)
}

// GetPendingSignup retrieves a pending signup by ID.
func (r *Repository) GetPendingSignup(ctx context.Context, id int64) (*models.PendingSignup, error) {
	var p models.PendingSignup
	if err := r.db.GetContext(ctx, &p, `SELECT * FROM pending_signups WHERE id = ?`, id); err != nil {
		return nil, wrapError(err)
	}
	return &p, nil
}

// GetOpenPendingSignup retrieves the newest unpromoted signup for an email.
func (r *Repository) GetOpenPendingSignup(ctx context.Context, email string) (*models.PendingSignup, error) {
	var p models.PendingSignup
	err := r.db.GetContext(ctx, &p,
		`SELECT * FROM pending_signups WHERE email = ? AND promoted_at IS NULL
		 ORDER BY id DESC LIMIT 1`,
		models.NormalizeEmail(email))
	if err != nil {
		return nil, wrapError(err)
	}
	return &p, nil
}

// PromotePendingSignup marks a signup as used. It fails with ErrNotFound if
// the signup does not exist or was already promoted.
func (r *Repository) PromotePendingSignup(ctx context.Context, id int64, now time.Time) error {
	return exactlyOne(r.db.ExecContext(ctx,
		`UPDATE pending_signups SET promoted_at = ? WHERE id = ? AND promoted_at IS NULL`,
		now.UTC(), id))
}

// DeletePendingSignupsBefore removes signups created before cutoff together
// with their passcodes.
func (r *Repository) DeletePendingSignupsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return rowsAffected(r.db.ExecContext(ctx,
		`DELETE FROM pending_signups WHERE created_at < ?`, cutoff.UTC()))
}
