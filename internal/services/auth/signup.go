// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"codeberg.org/oliverandrich/resumekit/internal/models"
	"codeberg.org/oliverandrich/resumekit/internal/repository"
	"codeberg.org/oliverandrich/resumekit/internal/services/account"
	"codeberg.org/oliverandrich/resumekit/internal/services/email"
	"codeberg.org/oliverandrich/resumekit/internal/services/flow"
	"codeberg.org/oliverandrich/resumekit/internal/services/otp"
)

// RequestSignupOTP stores the signup details and mails a passcode to the
// address. The account is only created by VerifySignupOTP.
func (s *Service) RequestSignupOTP(ctx context.Context, sid string, req SignupRequest) (*FlowStatus, error) {
	subject := models.NewSubject(models.PurposeSignup, req.Email)

	blocked, err := s.guard.IsEmailBlocked(ctx, subject.Email)
	if err != nil {
		return nil, err
	}
	if blocked {
		slog.Warn("signup_rejected", "email", subject.Email, "reason", "email_cooling_down")
		return nil, account.ErrEmailBlocked
	}

	exists, err := s.repo.EmailExists(ctx, subject.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if exists {
		slog.Warn("signup_rejected", "email", subject.Email, "reason", "email_taken")
		return nil, ErrEmailTaken
	}

	// Refuse early so a throttled request does not overwrite the stored
	// signup details.
	decision, err := s.limiter.MayIssue(ctx, subject)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, &otp.RateLimitedError{RetryAfter: decision.RetryAfter}
	}

	hash, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	pending := &models.PendingSignup{
		Email:        subject.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	if err := s.repo.SavePendingSignup(ctx, pending); err != nil {
		return nil, fmt.Errorf("failed to store signup: %w", err)
	}

	issued, err := s.otp.Issue(ctx, otp.IssueParams{Subject: subject, PendingSignupID: &pending.ID})
	if err != nil {
		return nil, err
	}

	err = s.deliver(ctx, issued, email.PasscodeMail{
		To:      subject.Email,
		Name:    req.FirstName,
		Purpose: models.PurposeSignup,
	})
	if err != nil {
		return nil, err
	}

	s.flows.Start(sid, flow.KindSignup, subject, issued.Passcode.IssuedAt)
	if err := s.flows.BindPendingSignup(sid, flow.KindSignup, pending.ID); err != nil {
		return nil, err
	}
	slog.Info("signup_otp_issued", "email", subject.Email, "pending_signup_id", pending.ID)

	return s.FlowStatus(sid, flow.KindSignup)
}

// VerifySignupOTP consumes the signup passcode and creates the account in
// the same transaction. It does not log the user in.
func (s *Service) VerifySignupOTP(ctx context.Context, sid, addr, code string) (*models.User, error) {
	st, err := s.flows.Match(sid, flow.KindSignup, addr)
	if err != nil {
		return nil, err
	}
	subject := st.Subject

	var user *models.User
	_, err = s.otp.VerifyAndApply(ctx, subject, code, func(ctx context.Context, tx *repository.Repository, p *models.Passcode) error {
		u, err := s.createAccount(ctx, tx, p, st.PendingSignupID)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		if errors.Is(err, account.ErrEmailBlocked) || errors.Is(err, ErrEmailTaken) {
			s.flows.Clear(sid, flow.KindSignup)
			if ierr := s.otp.Invalidate(ctx, subject); ierr != nil {
				slog.Error("otp_invalidate_failed", "email", subject.Email, "error", ierr)
			}
			slog.Warn("signup_rejected", "email", subject.Email, "reason", err)
			return nil, err
		}
		return nil, s.codeFailure(ctx, sid, flow.KindSignup, subject, err)
	}

	s.flows.Clear(sid, flow.KindSignup)
	slog.Info("signup_completed", "user_id", user.ID, "email", user.Email, "username", user.Username)
	return user, nil
}

// createAccount promotes the pending signup behind p to a user. A code
// issued for another session's request is treated as unknown. The email
// guards are re-checked because time has passed since the request.
func (s *Service) createAccount(ctx context.Context, tx *repository.Repository, p *models.Passcode, pendingID int64) (*models.User, error) {
	if p.PendingSignupID == nil {
		return nil, fmt.Errorf("signup passcode %d has no pending signup", p.ID)
	}
	if *p.PendingSignupID != pendingID {
		return nil, otp.ErrCodeNotFound
	}

	pending, err := tx.GetPendingSignup(ctx, *p.PendingSignupID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, otp.ErrCodeNotFound
		}
		return nil, fmt.Errorf("failed to load signup: %w", err)
	}
	if pending.Promoted() {
		return nil, otp.ErrCodeNotFound
	}

	blocked, err := s.guard.EmailBlockedIn(ctx, tx, pending.Email)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, account.ErrEmailBlocked
	}

	exists, err := tx.EmailExists(ctx, pending.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if exists {
		return nil, ErrEmailTaken
	}

	username, err := uniqueUsername(ctx, tx, pending.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to pick username: %w", err)
	}

	now := s.now()
	user := &models.User{
		Username:     username,
		Email:        pending.Email,
		FirstName:    pending.FirstName,
		LastName:     pending.LastName,
		PasswordHash: pending.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tx.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if err := tx.PromotePendingSignup(ctx, pending.ID, now); err != nil {
		return nil, fmt.Errorf("failed to promote signup: %w", err)
	}
	return user, nil
}

// ResendSignupOTP mails a fresh passcode for the open signup flow.
func (s *Service) ResendSignupOTP(ctx context.Context, sid string) (*FlowStatus, error) {
	st, err := s.flows.Get(sid, flow.KindSignup)
	if err != nil {
		return nil, err
	}

	pending, err := s.repo.GetPendingSignup(ctx, st.PendingSignupID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to load signup: %w", err)
	}
	if pending == nil || pending.Promoted() {
		s.flows.Clear(sid, flow.KindSignup)
		return nil, flow.ErrNoActiveFlow
	}

	issued, err := s.otp.Issue(ctx, otp.IssueParams{Subject: st.Subject, PendingSignupID: &pending.ID})
	if err != nil {
		return nil, err
	}

	err = s.deliver(ctx, issued, email.PasscodeMail{
		To:      st.Subject.Email,
		Name:    pending.FirstName,
		Purpose: models.PurposeSignup,
		Resend:  true,
	})
	if err != nil {
		return nil, err
	}

	if err := s.flows.RecordIssued(sid, flow.KindSignup, issued.Passcode.IssuedAt); err != nil {
		return nil, err
	}
	slog.Info("signup_otp_resent", "email", st.Subject.Email)

	return s.FlowStatus(sid, flow.KindSignup)
}
