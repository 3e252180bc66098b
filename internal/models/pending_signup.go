// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// PendingSignup holds a signup request until its email address is verified.
// Once PromotedAt is set the record can never create another account.
type PendingSignup struct { //nolint:govet // fieldalignment: readability over optimization
	ID           int64      `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	FirstName    string     `db:"first_name" json:"first_name"`
	LastName     string     `db:"last_name" json:"last_name"`
	PasswordHash string     `db:"password_hash" json:"-"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	PromotedAt   *time.Time `db:"promoted_at" json:"promoted_at,omitempty"`
}

// Promoted reports whether the signup already produced an account.
func (p *PendingSignup) Promoted() bool {
	return p.PromotedAt != nil
}
