// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package email composes and delivers the passcode notifications.
package email

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"codeberg.org/oliverandrich/resumekit/internal/i18n"
	"codeberg.org/oliverandrich/resumekit/internal/models"
	"codeberg.org/oliverandrich/resumekit/internal/templates"
	"github.com/a-h/templ"
)

// ErrDeliveryFailed wraps every failure to hand a message to the sender.
var ErrDeliveryFailed = errors.New("email delivery failed")

// PasscodeMail describes a passcode notification.
type PasscodeMail struct {
	To      string
	Name    string
	Code    string
	Purpose models.Purpose
	Resend  bool
}

// Service renders passcode emails and hands them to a Sender.
type Service struct {
	sender Sender
	ttl    time.Duration
}

// NewService creates an email service. ttl is the passcode lifetime quoted in
// the message.
func NewService(sender Sender, ttl time.Duration) *Service {
	return &Service{sender: sender, ttl: ttl}
}

// SendPasscode renders and delivers a passcode email in the locale of ctx.
func (s *Service) SendPasscode(ctx context.Context, m PasscodeMail) error {
	msg, err := s.Compose(ctx, m)
	if err != nil {
		return err
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	return nil
}

// Compose renders the subject, plain text and HTML parts of a passcode email.
func (s *Service) Compose(ctx context.Context, m PasscodeMail) (Message, error) {
	subjectID, introID := "email_reset_subject", "email_reset_intro"
	if m.Purpose == models.PurposeSignup {
		subjectID, introID = "email_signup_subject", "email_signup_intro"
	}
	if m.Resend {
		subjectID, introID = "email_resend_subject", "email_resend_intro"
	}

	greeting := i18n.T(ctx, "email_greeting_anonymous")
	if name := strings.TrimSpace(m.Name); name != "" {
		greeting = i18n.TData(ctx, "email_greeting", map[string]any{"Name": name})
	}

	parts := templates.PasscodeEmail{
		Greeting: greeting,
		Intro:    i18n.T(ctx, introID),
		Code:     m.Code,
		Expiry:   i18n.TPlural(ctx, "email_code_expiry", max(1, int(s.ttl/time.Minute))),
		Ignore:   i18n.T(ctx, "email_ignore_notice"),
		Signoff:  i18n.T(ctx, "email_signoff"),
	}

	html, err := renderHTML(ctx, templates.PasscodeEmailHTML(parts))
	if err != nil {
		return Message{}, fmt.Errorf("rendering email: %w", err)
	}

	text := strings.Join([]string{
		parts.Greeting,
		parts.Intro,
		"    " + parts.Code,
		parts.Expiry,
		parts.Ignore,
		parts.Signoff,
	}, "\n\n")

	return Message{
		To:      m.To,
		Subject: i18n.T(ctx, subjectID),
		Text:    text,
		HTML:    html,
	}, nil
}

func renderHTML(ctx context.Context, c templ.Component) (string, error) {
	buf := templ.GetBuffer()
	defer templ.ReleaseBuffer(buf)

	if err := c.Render(ctx, buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
