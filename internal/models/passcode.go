// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// Purpose distinguishes signup codes from password reset codes.
type Purpose string

const (
	PurposeSignup Purpose = "signup"
	PurposeReset  Purpose = "reset"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	return p == PurposeSignup || p == PurposeReset
}

// Subject is what a passcode is bound to: a purpose and a normalized address.
type Subject struct {
	Purpose Purpose
	Email   string
}

// NewSubject builds a subject with a normalized email.
func NewSubject(purpose Purpose, email string) Subject {
	return Subject{Purpose: purpose, Email: NormalizeEmail(email)}
}

// String returns the storage key, e.g. "reset:alice@example.com".
func (s Subject) String() string {
	return string(s.Purpose) + ":" + s.Email
}

// IsZero reports whether the subject is unset.
func (s Subject) IsZero() bool {
	return s.Purpose == "" && s.Email == ""
}

// Passcode is a hashed one-time code. Only the SHA-256 of the code is stored.
type Passcode struct { //nolint:govet // fieldalignment: readability over optimization
	ID              int64      `db:"id" json:"id"`
	Purpose         Purpose    `db:"purpose" json:"purpose"`
	Subject         string     `db:"subject" json:"subject"`
	UserID          *int64     `db:"user_id" json:"user_id,omitempty"`
	PendingSignupID *int64     `db:"pending_signup_id" json:"pending_signup_id,omitempty"`
	CodeHash        string     `db:"code_hash" json:"-"`
	IssuedAt        time.Time  `db:"issued_at" json:"issued_at"`
	Consumed        bool       `db:"consumed" json:"consumed"`
	ConsumedAt      *time.Time `db:"consumed_at" json:"consumed_at,omitempty"`
	InvalidatedAt   *time.Time `db:"invalidated_at" json:"invalidated_at,omitempty"`
}

// Live reports whether the code is neither consumed nor superseded.
func (p *Passcode) Live() bool {
	return !p.Consumed && p.InvalidatedAt == nil
}

// Expired reports whether ttl has fully elapsed since issuance.
func (p *Passcode) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(p.IssuedAt) >= ttl
}
