// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth implements the passcode-verified signup and password reset
// flows and password login.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"codeberg.org/oliverandrich/resumekit/internal/config"
	"codeberg.org/oliverandrich/resumekit/internal/models"
	"codeberg.org/oliverandrich/resumekit/internal/repository"
	"codeberg.org/oliverandrich/resumekit/internal/services/email"
	"codeberg.org/oliverandrich/resumekit/internal/services/flow"
	"codeberg.org/oliverandrich/resumekit/internal/services/otp"
	"codeberg.org/oliverandrich/resumekit/internal/services/ratelimit"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailTaken         = errors.New("email address already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAttemptsExhausted  = errors.New("too many failed verification attempts")
)

// dummyHash is used for constant-time login to prevent timing attacks
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), bcrypt.DefaultCost)

// CodeError is a failed verification that left attempts in the flow.
type CodeError struct {
	Err               error
	AttemptsRemaining int
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("%v (%d attempts remaining)", e.Err, e.AttemptsRemaining)
}

func (e *CodeError) Unwrap() error {
	return e.Err
}

// Notifier delivers passcodes.
type Notifier interface {
	SendPasscode(ctx context.Context, m email.PasscodeMail) error
}

// EmailGuard reports addresses that may not be registered yet.
type EmailGuard interface {
	IsEmailBlocked(ctx context.Context, email string) (bool, error)
	EmailBlockedIn(ctx context.Context, q *repository.Repository, email string) (bool, error)
}

// Deps are the collaborators of the auth service.
type Deps struct {
	Repo     *repository.Repository
	OTP      *otp.Manager
	Limiter  *ratelimit.Limiter
	Flows    *flow.Store
	Notifier Notifier
	Guard    EmailGuard
}

type Service struct {
	repo       *repository.Repository
	otp        *otp.Manager
	limiter    *ratelimit.Limiter
	flows      *flow.Store
	notifier   Notifier
	guard      EmailGuard
	passwords  *PasswordValidator
	bcryptCost int
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(deps Deps, cfg *config.AccountConfig, opts ...Option) *Service {
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	s := &Service{
		repo:       deps.Repo,
		otp:        deps.OTP,
		limiter:    deps.Limiter,
		flows:      deps.Flows,
		notifier:   deps.Notifier,
		guard:      deps.Guard,
		passwords:  NewPasswordValidator(cfg),
		bcryptCost: cost,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PasswordValidator returns the password validator for use in handlers
func (s *Service) PasswordValidator() *PasswordValidator {
	return s.passwords
}

// Login authenticates by email or username.
func (s *Service) Login(ctx context.Context, identifier, password string) (*models.User, error) {
	identifier = strings.TrimSpace(identifier)

	var (
		user *models.User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = s.repo.GetUserByEmail(ctx, identifier)
	} else {
		user, err = s.repo.GetUserByUsername(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Constant-time: always perform bcrypt comparison to prevent timing attacks
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			slog.Warn("login_failed", "identifier", identifier, "reason", "user_not_found")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		slog.Warn("login_failed", "user_id", user.ID, "reason", "invalid_password")
		return nil, ErrInvalidCredentials
	}

	slog.Info("login_success", "user_id", user.ID, "email", user.Email)
	return user, nil
}

// FlowStatus describes an open flow for the UI.
type FlowStatus struct {
	Kind              flow.Kind
	Email             string
	Verified          bool
	AttemptsRemaining int
	ResendIn          time.Duration
	CodeTTL           time.Duration
}

// FlowStatus reports the state of the kind flow of a session.
func (s *Service) FlowStatus(sid string, kind flow.Kind) (*FlowStatus, error) {
	st, err := s.flows.Get(sid, kind)
	if err != nil {
		return nil, err
	}
	d := s.limiter.Check(kind.Purpose(), st.LastIssuedAt, s.now())
	return &FlowStatus{
		Kind:              kind,
		Email:             st.Subject.Email,
		Verified:          st.Verified,
		AttemptsRemaining: max(0, s.flows.MaxAttempts()-st.Attempts),
		ResendIn:          d.RetryAfter,
		CodeTTL:           s.otp.TTL(),
	}, nil
}

func (s *Service) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// deliver sends an issued code and rolls the issuance back when delivery
// fails, so the previous code keeps working.
func (s *Service) deliver(ctx context.Context, issued *otp.Issued, m email.PasscodeMail) error {
	m.Code = issued.Code
	if err := s.notifier.SendPasscode(ctx, m); err != nil {
		if rerr := s.otp.Revoke(ctx, issued); rerr != nil {
			slog.Error("otp_revoke_failed", "passcode_id", issued.Passcode.ID, "error", rerr)
		}
		slog.Error("otp_delivery_failed", "purpose", m.Purpose, "email", m.To, "error", err)
		return err
	}
	return nil
}

// codeFailure counts a failed verification against the flow. The last
// allowed failure ends the flow and supersedes the live code.
func (s *Service) codeFailure(ctx context.Context, sid string, kind flow.Kind, subject models.Subject, err error) error {
	if !otp.IsCodeFailure(err) {
		return err
	}

	remaining, exhausted, ferr := s.flows.RecordFailedAttempt(sid, kind)
	if ferr != nil {
		return ferr
	}
	if exhausted {
		if ierr := s.otp.Invalidate(ctx, subject); ierr != nil {
			slog.Error("otp_invalidate_failed", "email", subject.Email, "error", ierr)
		}
		slog.Warn("otp_attempts_exhausted", "kind", kind, "email", subject.Email)
		return ErrAttemptsExhausted
	}

	slog.Info("otp_verify_failed", "kind", kind, "email", subject.Email, "reason", err, "remaining", remaining)
	return &CodeError{Err: err, AttemptsRemaining: remaining}
}
