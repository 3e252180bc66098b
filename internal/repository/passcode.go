// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"errors"
	"time"

	"codeberg.org/oliverandrich/resumekit/internal/models"
)

// CreatePasscode inserts a live passcode and sets its ID. A second live code
// for the same subject fails with ErrDuplicate.
func (r *Repository) CreatePasscode(ctx context.Context, p *models.Passcode) error {
	p.IssuedAt = p.IssuedAt.UTC()

	err := r.db.GetContext(ctx, &p.ID,
		`INSERT INTO passcodes (purpose, subject, user_id, pending_signup_id, code_hash, issued_at)
		 VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
		p.Purpose, p.Subject, p.UserID, p.PendingSignupID, p.CodeHash, p.IssuedAt)
	return wrapError(err)
}

// LatestLivePasscode returns the live passcode of a subject.
func (r *Repository) LatestLivePasscode(ctx context.Context, subject string) (*models.Passcode, error) {
	var p models.Passcode
	err := r.db.GetContext(ctx, &p,
		`SELECT * FROM passcodes
		 WHERE subject = ? AND consumed = 0 AND invalidated_at IS NULL
		 ORDER BY issued_at DESC, id DESC LIMIT 1`, subject)
	if err != nil {
		return nil, wrapError(err)
	}
	return &p, nil
}

// LastIssuedAt returns when the most recent passcode of a subject was issued,
// whatever its state. The zero time means none was ever issued.
func (r *Repository) LastIssuedAt(ctx context.Context, subject string) (time.Time, error) {
	var issuedAt time.Time
	err := r.db.GetContext(ctx, &issuedAt,
		`SELECT issued_at FROM passcodes WHERE subject = ? ORDER BY issued_at DESC, id DESC LIMIT 1`, subject)
	if err != nil {
		if err = wrapError(err); errors.Is(err, ErrNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return issuedAt, nil
}

// ListPasscodes returns every stored passcode of a subject, newest first.
func (r *Repository) ListPasscodes(ctx context.Context, subject string) ([]models.Passcode, error) {
	var codes []models.Passcode
	err := r.db.SelectContext(ctx, &codes,
		`SELECT * FROM passcodes WHERE subject = ? ORDER BY issued_at DESC, id DESC`, subject)
	return codes, wrapError(err)
}

// InvalidateLivePasscodes supersedes all live codes of a subject.
func (r *Repository) InvalidateLivePasscodes(ctx context.Context, subject string, now time.Time) (int64, error) {
	return rowsAffected(r.db.ExecContext(ctx,
		`UPDATE passcodes SET invalidated_at = ?
		 WHERE subject = ? AND consumed = 0 AND invalidated_at IS NULL`,
		now.UTC(), subject))
}

// ConsumePasscode marks a live code consumed. Only one caller can win; the
// others get false.
func (r *Repository) ConsumePasscode(ctx context.Context, id int64, now time.Time) (bool, error) {
	n, err := rowsAffected(r.db.ExecContext(ctx,
		`UPDATE passcodes SET consumed = 1, consumed_at = ?
		 WHERE id = ? AND consumed = 0 AND invalidated_at IS NULL`,
		now.UTC(), id))
	return n == 1, err
}

// RestorePasscode makes a superseded, unconsumed code live again. It does
// nothing and returns false while its subject has another live code.
func (r *Repository) RestorePasscode(ctx context.Context, id int64) (bool, error) {
	n, err := rowsAffected(r.db.ExecContext(ctx,
		`UPDATE passcodes SET invalidated_at = NULL
		 WHERE id = ? AND consumed = 0 AND invalidated_at IS NOT NULL
		   AND NOT EXISTS (
		       SELECT 1 FROM passcodes AS live
		       WHERE live.subject = passcodes.subject
		         AND live.consumed = 0 AND live.invalidated_at IS NULL)`,
		id))
	return n == 1, err
}

// DeletePasscode removes a passcode by ID.
func (r *Repository) DeletePasscode(ctx context.Context, id int64) error {
	return exactlyOne(r.db.ExecContext(ctx, `DELETE FROM passcodes WHERE id = ?`, id))
}

// DeleteUserPasscodes removes the codes bound to a user or to one of the
// given subjects.
func (r *Repository) DeleteUserPasscodes(ctx context.Context, userID int64, subjects ...string) (int64, error) {
	total, err := rowsAffected(r.db.ExecContext(ctx, `DELETE FROM passcodes WHERE user_id = ?`, userID))
	if err != nil {
		return 0, err
	}
	for _, subject := range subjects {
		n, err := rowsAffected(r.db.ExecContext(ctx, `DELETE FROM passcodes WHERE subject = ?`, subject))
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// DeletePasscodesIssuedBefore removes codes issued before cutoff.
func (r *Repository) DeletePasscodesIssuedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return rowsAffected(r.db.ExecContext(ctx,
		`DELETE FROM passcodes WHERE issued_at < ?`, cutoff.UTC()))
}
