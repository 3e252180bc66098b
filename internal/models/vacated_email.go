// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// VacatedEmail records the address of a deleted account.
type VacatedEmail struct {
	ID        int64     `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	VacatedAt time.Time `db:"vacated_at" json:"vacated_at"`
}

// BlockedAt reports whether the address is still cooling down at now.
func (v *VacatedEmail) BlockedAt(now time.Time, cooldown time.Duration) bool {
	return now.Sub(v.VacatedAt) < cooldown
}
