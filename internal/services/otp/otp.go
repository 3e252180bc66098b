// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package otp issues, validates and consumes one-time passcodes. Codes are
// stored as SHA-256 hashes; at most one code per subject is live.
package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"codeberg.org/oliverandrich/resumekit/internal/config"
	"codeberg.org/oliverandrich/resumekit/internal/models"
	"codeberg.org/oliverandrich/resumekit/internal/repository"
	"codeberg.org/oliverandrich/resumekit/internal/services/ratelimit"
)

var (
	ErrCodeNotFound = errors.New("no active passcode")
	ErrCodeExpired  = errors.New("passcode expired")
	ErrCodeMismatch = errors.New("passcode does not match")
	ErrRateLimited  = errors.New("passcode requested too soon")
)

// RateLimitedError is returned when a subject is still in its cooldown.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s, retry in %s", ErrRateLimited, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// IsCodeFailure reports whether err is one of the validation failures that
// count as a failed attempt.
func IsCodeFailure(err error) bool {
	return errors.Is(err, ErrCodeNotFound) || errors.Is(err, ErrCodeExpired) || errors.Is(err, ErrCodeMismatch)
}

// IssueParams describes whom a new code is for.
type IssueParams struct {
	Subject         models.Subject
	UserID          *int64
	PendingSignupID *int64
}

// Issued is a freshly stored passcode with its plaintext code. The plaintext
// exists only here and in the outgoing message.
type Issued struct {
	Passcode *models.Passcode
	Code     string
	// Superseded is the code that was live before this one, if any.
	Superseded *int64
}

// ApplyFunc runs inside the consuming transaction.
type ApplyFunc func(ctx context.Context, tx *repository.Repository, p *models.Passcode) error

// Manager owns the passcode lifecycle.
type Manager struct {
	repo     *repository.Repository
	limiter  *ratelimit.Limiter
	ttl      time.Duration
	now      func() time.Time
	generate func() (string, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithGenerator replaces the code generator.
func WithGenerator(generate func() (string, error)) Option {
	return func(m *Manager) {
		m.generate = generate
	}
}

// NewManager creates a passcode manager.
func NewManager(repo *repository.Repository, limiter *ratelimit.Limiter, cfg *config.OTPConfig, opts ...Option) *Manager {
	m := &Manager{
		repo:     repo,
		limiter:  limiter,
		ttl:      cfg.TTL,
		now:      time.Now,
		generate: GenerateCode,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL returns how long a code stays valid.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue stores a new code for a subject. The cooldown check, superseding of
// earlier codes and the insert run in one write transaction.
func (m *Manager) Issue(ctx context.Context, params IssueParams) (*Issued, error) {
	subject := params.Subject
	if !subject.Purpose.Valid() || subject.Email == "" {
		return nil, fmt.Errorf("invalid passcode subject %q", subject)
	}

	var issued *Issued
	err := m.repo.WithTx(ctx, func(ctx context.Context, tx *repository.Repository) error {
		now := m.now().UTC()

		last, err := tx.LastIssuedAt(ctx, subject.String())
		if err != nil {
			return fmt.Errorf("reading issuance history: %w", err)
		}
		if d := m.limiter.Check(subject.Purpose, last, now); !d.Allowed {
			return &RateLimitedError{RetryAfter: d.RetryAfter}
		}

		code, err := m.generate()
		if err != nil {
			return err
		}

		var superseded *int64
		prev, err := tx.LatestLivePasscode(ctx, subject.String())
		switch {
		case err == nil:
			superseded = &prev.ID
		case !errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("loading live passcode: %w", err)
		}

		if _, err := tx.InvalidateLivePasscodes(ctx, subject.String(), now); err != nil {
			return fmt.Errorf("superseding passcodes: %w", err)
		}

		p := &models.Passcode{
			Purpose:         subject.Purpose,
			Subject:         subject.String(),
			UserID:          params.UserID,
			PendingSignupID: params.PendingSignupID,
			CodeHash:        HashCode(code),
			IssuedAt:        now,
		}
		if err := tx.CreatePasscode(ctx, p); err != nil {
			return fmt.Errorf("storing passcode: %w", err)
		}

		issued = &Issued{Passcode: p, Code: code, Superseded: superseded}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return issued, nil
}

// Check validates a code without consuming it.
func (m *Manager) Check(ctx context.Context, subject models.Subject, code string) (*models.Passcode, error) {
	return m.validate(ctx, m.repo, subject, code)
}

// Verify validates and consumes a code.
func (m *Manager) Verify(ctx context.Context, subject models.Subject, code string) (*models.Passcode, error) {
	return m.VerifyAndApply(ctx, subject, code, nil)
}

// VerifyAndApply validates and consumes a code and runs apply in the same
// transaction. If apply fails the code stays live.
func (m *Manager) VerifyAndApply(ctx context.Context, subject models.Subject, code string, apply ApplyFunc) (*models.Passcode, error) {
	var consumed *models.Passcode
	err := m.repo.WithTx(ctx, func(ctx context.Context, tx *repository.Repository) error {
		p, err := m.validate(ctx, tx, subject, code)
		if err != nil {
			return err
		}

		won, err := tx.ConsumePasscode(ctx, p.ID, m.now())
		if err != nil {
			return fmt.Errorf("consuming passcode: %w", err)
		}
		if !won {
			return ErrCodeNotFound
		}

		if apply != nil {
			if err := apply(ctx, tx, p); err != nil {
				return err
			}
		}
		consumed = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return consumed, nil
}

func (m *Manager) validate(ctx context.Context, q *repository.Repository, subject models.Subject, code string) (*models.Passcode, error) {
	p, err := q.LatestLivePasscode(ctx, subject.String())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("loading passcode: %w", err)
	}
	if p.Expired(m.now(), m.ttl) {
		return nil, ErrCodeExpired
	}
	if !CodeEqual(code, p.CodeHash) {
		return nil, ErrCodeMismatch
	}
	return p, nil
}

// Revoke undoes an issuance whose code could not be delivered. The new code
// is deleted, so it neither stays usable nor counts against the cooldown,
// and the code it superseded becomes live again unless another issuance
// has happened since.
func (m *Manager) Revoke(ctx context.Context, issued *Issued) error {
	return m.repo.WithTx(ctx, func(ctx context.Context, tx *repository.Repository) error {
		if err := tx.DeletePasscode(ctx, issued.Passcode.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("revoking passcode: %w", err)
		}
		if issued.Superseded == nil {
			return nil
		}
		if _, err := tx.RestorePasscode(ctx, *issued.Superseded); err != nil {
			return fmt.Errorf("restoring superseded passcode: %w", err)
		}
		return nil
	})
}

// Invalidate supersedes every live code of a subject.
func (m *Manager) Invalidate(ctx context.Context, subject models.Subject) error {
	if _, err := m.repo.InvalidateLivePasscodes(ctx, subject.String(), m.now()); err != nil {
		return fmt.Errorf("invalidating passcodes: %w", err)
	}
	return nil
}

// Sweep deletes codes issued longer than retention ago.
func (m *Manager) Sweep(ctx context.Context, retention time.Duration) (int64, error) {
	return m.repo.DeletePasscodesIssuedBefore(ctx, m.now().Add(-retention))
}
