// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package cleanup periodically removes stale passcodes, signups, vacated
// email rows and idle flows.
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"codeberg.org/oliverandrich/resumekit/internal/config"
	"codeberg.org/oliverandrich/resumekit/internal/repository"
	"codeberg.org/oliverandrich/resumekit/internal/services/account"
	"codeberg.org/oliverandrich/resumekit/internal/services/flow"
	"codeberg.org/oliverandrich/resumekit/internal/services/otp"
)

// Report counts what one pass removed.
type Report struct {
	Passcodes      int64
	PendingSignups int64
	VacatedEmails  int64
	Flows          int
}

// Empty reports whether nothing was removed.
func (r Report) Empty() bool {
	return r.Passcodes == 0 && r.PendingSignups == 0 && r.VacatedEmails == 0 && r.Flows == 0
}

type Janitor struct {
	repo     *repository.Repository
	otp      *otp.Manager
	accounts *account.Service
	flows    *flow.Store
	cfg      *config.CleanupConfig
	now      func() time.Time
}

// Option configures a Janitor.
type Option func(*Janitor)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(j *Janitor) {
		j.now = now
	}
}

func New(repo *repository.Repository, otps *otp.Manager, accounts *account.Service, flows *flow.Store, cfg *config.CleanupConfig, opts ...Option) *Janitor {
	j := &Janitor{
		repo:     repo,
		otp:      otps,
		accounts: accounts,
		flows:    flows,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// RunOnce performs a single sweep.
func (j *Janitor) RunOnce(ctx context.Context) (Report, error) {
	var (
		r   Report
		err error
	)

	if r.Passcodes, err = j.otp.Sweep(ctx, j.cfg.PasscodeRetention); err != nil {
		return r, fmt.Errorf("sweeping passcodes: %w", err)
	}

	cutoff := j.now().Add(-j.cfg.PendingSignupRetention)
	if r.PendingSignups, err = j.repo.DeletePendingSignupsBefore(ctx, cutoff); err != nil {
		return r, fmt.Errorf("sweeping pending signups: %w", err)
	}

	if r.VacatedEmails, err = j.accounts.SweepVacated(ctx); err != nil {
		return r, fmt.Errorf("sweeping vacated emails: %w", err)
	}

	r.Flows = j.flows.Sweep()

	if r.Empty() {
		slog.Debug("cleanup_nothing_to_do")
	} else {
		slog.Info("cleanup_completed",
			"passcodes", r.Passcodes,
			"pending_signups", r.PendingSignups,
			"vacated_emails", r.VacatedEmails,
			"flows", r.Flows,
		)
	}
	return r, nil
}

// Run sweeps every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.RunOnce(ctx); err != nil && ctx.Err() == nil {
				slog.Error("cleanup_failed", "error", err)
			}
		}
	}
}
