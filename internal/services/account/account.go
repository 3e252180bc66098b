// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package account deletes accounts and guards vacated email addresses
// against reuse during the cool-down window.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"codeberg.org/oliverandrich/resumekit/internal/config"
	"codeberg.org/oliverandrich/resumekit/internal/models"
	"codeberg.org/oliverandrich/resumekit/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailBlocked        = errors.New("email address was recently released by a deleted account")
	ErrInvalidConfirmation = errors.New("account deletion not confirmed")
	ErrAccountNotFound     = errors.New("account not found")
)

// Deletion reports what an account deletion removed, or would remove.
type Deletion struct {
	UserID    int64
	Email     string
	Records   models.OwnedRecords
	Passcodes int64
	DryRun    bool
}

// Service deletes accounts and answers email reuse questions.
type Service struct {
	repo     *repository.Repository
	cooldown time.Duration
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates an account service.
func NewService(repo *repository.Repository, cfg *config.AccountConfig, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		cooldown: cfg.EmailReuseCooldown,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Delete removes the account of userID after re-checking its password.
func (s *Service) Delete(ctx context.Context, userID int64, password string) (*Deletion, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("loading account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		slog.Warn("account_delete_rejected", "user_id", user.ID, "reason", "invalid_confirmation")
		return nil, ErrInvalidConfirmation
	}

	return s.purge(ctx, user)
}

// Purge removes the account registered for email without confirmation.
func (s *Service) Purge(ctx context.Context, email string) (*Deletion, error) {
	user, err := s.userByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.purge(ctx, user)
}

// Preview reports what Purge would remove.
func (s *Service) Preview(ctx context.Context, email string) (*Deletion, error) {
	user, err := s.userByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	records, err := s.repo.CountOwnedRecords(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("counting records: %w", err)
	}
	return &Deletion{UserID: user.ID, Email: user.Email, Records: records, DryRun: true}, nil
}

func (s *Service) userByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("loading account: %w", err)
	}
	return user, nil
}

// purge deletes owned records, passcodes and the user, and registers the
// vacated email, all in one transaction.
func (s *Service) purge(ctx context.Context, user *models.User) (*Deletion, error) {
	d := &Deletion{UserID: user.ID, Email: user.Email}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx *repository.Repository) error {
		records, err := tx.DeleteOwnedRecords(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("deleting owned records: %w", err)
		}
		d.Records = records

		d.Passcodes, err = tx.DeleteUserPasscodes(ctx, user.ID,
			models.NewSubject(models.PurposeReset, user.Email).String(),
			models.NewSubject(models.PurposeSignup, user.Email).String(),
		)
		if err != nil {
			return fmt.Errorf("deleting passcodes: %w", err)
		}

		if _, err := tx.CreateVacatedEmail(ctx, user.Email, s.now()); err != nil {
			return fmt.Errorf("registering vacated email: %w", err)
		}

		if err := tx.DeleteUser(ctx, user.ID); err != nil {
			return fmt.Errorf("deleting account: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("account_deleted",
		"user_id", d.UserID,
		"email", d.Email,
		"records", d.Records.Total(),
		"passcodes", d.Passcodes,
	)
	return d, nil
}

// IsEmailBlocked reports whether email belongs to an account deleted less
// than the cool-down ago.
func (s *Service) IsEmailBlocked(ctx context.Context, email string) (bool, error) {
	return s.EmailBlockedIn(ctx, s.repo, email)
}

// EmailBlockedIn is IsEmailBlocked on q, which may be a transaction.
func (s *Service) EmailBlockedIn(ctx context.Context, q *repository.Repository, email string) (bool, error) {
	v, err := q.LatestVacatedEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("checking vacated emails: %w", err)
	}
	return v.BlockedAt(s.now(), s.cooldown), nil
}

// SweepVacated deletes registry rows whose cool-down has passed.
func (s *Service) SweepVacated(ctx context.Context) (int64, error) {
	return s.repo.DeleteVacatedEmailsBefore(ctx, s.now().Add(-s.cooldown))
}
