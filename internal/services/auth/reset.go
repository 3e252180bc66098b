// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"codeberg.org/oliverandrich/resumekit/internal/models"
	"codeberg.org/oliverandrich/resumekit/internal/repository"
	"codeberg.org/oliverandrich/resumekit/internal/services/email"
	"codeberg.org/oliverandrich/resumekit/internal/services/flow"
	"codeberg.org/oliverandrich/resumekit/internal/services/otp"
)

// RequestPasswordResetOTP starts a reset flow. The answer is the same
// whether or not an account uses the address; only known accounts get mail.
func (s *Service) RequestPasswordResetOTP(ctx context.Context, sid, addr string) (*FlowStatus, error) {
	normalized, verr := ValidateEmail("email", addr)
	if verr != nil {
		return nil, inputError([]ValidationError{*verr})
	}
	subject := models.NewSubject(models.PurposeReset, normalized)

	var previous *flow.State
	if st, err := s.flows.Get(sid, flow.KindReset); err == nil && st.Subject == subject {
		previous = &st
	}

	issuedAt, err := s.issueReset(ctx, subject, previous, false)
	if err != nil {
		return nil, err
	}

	s.flows.Start(sid, flow.KindReset, subject, issuedAt)
	return s.FlowStatus(sid, flow.KindReset)
}

// ResendPasswordResetOTP mails a fresh passcode for the open reset flow.
func (s *Service) ResendPasswordResetOTP(ctx context.Context, sid string) (*FlowStatus, error) {
	st, err := s.flows.Get(sid, flow.KindReset)
	if err != nil {
		return nil, err
	}

	issuedAt, err := s.issueReset(ctx, st.Subject, &st, true)
	if err != nil {
		return nil, err
	}

	if err := s.flows.RecordIssued(sid, flow.KindReset, issuedAt); err != nil {
		return nil, err
	}
	return s.FlowStatus(sid, flow.KindReset)
}

// issueReset issues and mails a reset code when an account uses the
// address. Unknown addresses get no code but the same cooldown, measured
// from the session's own last request.
func (s *Service) issueReset(ctx context.Context, subject models.Subject, previous *flow.State, resend bool) (issuedAt time.Time, err error) {
	user, err := s.repo.GetUserByEmail(ctx, subject.Email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return time.Time{}, fmt.Errorf("failed to get user: %w", err)
	}

	if user == nil {
		now := s.now()
		if previous != nil {
			if d := s.limiter.Check(models.PurposeReset, previous.LastIssuedAt, now); !d.Allowed {
				return time.Time{}, &otp.RateLimitedError{RetryAfter: d.RetryAfter}
			}
		}
		slog.Info("password_reset_requested", "email", subject.Email, "known", false)
		return now, nil
	}

	issued, err := s.otp.Issue(ctx, otp.IssueParams{Subject: subject, UserID: &user.ID})
	if err != nil {
		return time.Time{}, err
	}

	err = s.deliver(ctx, issued, email.PasscodeMail{
		To:      user.Email,
		Name:    user.FirstName,
		Purpose: models.PurposeReset,
		Resend:  resend,
	})
	if err != nil {
		return time.Time{}, err
	}

	slog.Info("password_reset_otp_issued", "user_id", user.ID, "email", user.Email, "resend", resend)
	return issued.Passcode.IssuedAt, nil
}

// VerifyPasswordResetOTP checks the reset code without consuming it and
// marks the flow verified.
func (s *Service) VerifyPasswordResetOTP(ctx context.Context, sid, addr, code string) (*FlowStatus, error) {
	st, err := s.flows.Match(sid, flow.KindReset, addr)
	if err != nil {
		return nil, err
	}

	if _, err := s.otp.Check(ctx, st.Subject, code); err != nil {
		return nil, s.codeFailure(ctx, sid, flow.KindReset, st.Subject, err)
	}

	if err := s.flows.MarkVerified(sid, flow.KindReset); err != nil {
		return nil, err
	}
	slog.Info("password_reset_otp_verified", "email", st.Subject.Email)

	return s.FlowStatus(sid, flow.KindReset)
}

// SetNewPassword consumes the verified reset code and replaces the
// password in one transaction.
func (s *Service) SetNewPassword(ctx context.Context, sid, addr, code, password, confirm string) error {
	st, err := s.flows.Match(sid, flow.KindReset, addr)
	if err != nil {
		return err
	}
	if err := s.flows.Verified(sid, flow.KindReset, st.Subject); err != nil {
		return err
	}

	attrs := []string{st.Subject.Email}
	if user, err := s.repo.GetUserByEmail(ctx, st.Subject.Email); err == nil {
		attrs = append(attrs, user.Username, user.FirstName, user.LastName)
	}
	if err := ValidateNewPassword(s.passwords, password, confirm, attrs...); err != nil {
		return err
	}

	hash, err := s.hashPassword(password)
	if err != nil {
		return err
	}

	p, err := s.otp.VerifyAndApply(ctx, st.Subject, code, func(ctx context.Context, tx *repository.Repository, p *models.Passcode) error {
		if p.UserID == nil {
			return fmt.Errorf("reset passcode %d has no user", p.ID)
		}
		if err := tx.UpdateUserPassword(ctx, *p.UserID, hash, s.now()); err != nil {
			return fmt.Errorf("failed to update password: %w", err)
		}
		return nil
	})
	if err != nil {
		return s.codeFailure(ctx, sid, flow.KindReset, st.Subject, err)
	}

	s.flows.Clear(sid, flow.KindReset)
	slog.Info("password_reset_completed", "user_id", *p.UserID, "email", st.Subject.Email)
	return nil
}
