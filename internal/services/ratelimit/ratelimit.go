// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package ratelimit enforces the minimum interval between two passcodes
// issued for the same subject.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/oliverandrich/resumekit/internal/config"
	"codeberg.org/oliverandrich/resumekit/internal/models"
)

// IssuanceHistory reports when a subject last received a passcode. A zero
// time means never.
type IssuanceHistory interface {
	LastIssuedAt(ctx context.Context, subject string) (time.Time, error)
}

// Decision is the outcome of a rate check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter derives issuance permission from the persisted passcode history.
type Limiter struct {
	cfg     *config.OTPConfig
	history IssuanceHistory
	now     func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a limiter backed by history.
func New(cfg *config.OTPConfig, history IssuanceHistory, opts ...Option) *Limiter {
	l := &Limiter{cfg: cfg, history: history, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Cooldown returns the minimum interval between two codes of a purpose.
func (l *Limiter) Cooldown(purpose models.Purpose) time.Duration {
	if purpose == models.PurposeSignup {
		return l.cfg.SignupCooldown
	}
	return l.cfg.ResetCooldown
}

// Check decides whether a code may be issued at now given the last issuance.
func (l *Limiter) Check(purpose models.Purpose, last, now time.Time) Decision {
	if last.IsZero() {
		return Decision{Allowed: true}
	}
	elapsed := now.Sub(last)
	cooldown := l.Cooldown(purpose)
	if elapsed >= cooldown {
		return Decision{Allowed: true}
	}
	return Decision{RetryAfter: cooldown - elapsed}
}

// MayIssue checks the subject's persisted history against the cooldown.
func (l *Limiter) MayIssue(ctx context.Context, subject models.Subject) (Decision, error) {
	last, err := l.history.LastIssuedAt(ctx, subject.String())
	if err != nil {
		return Decision{}, fmt.Errorf("reading issuance history: %w", err)
	}
	return l.Check(subject.Purpose, last, l.now()), nil
}

// RetrySeconds rounds a wait up to whole seconds for clients.
func RetrySeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
