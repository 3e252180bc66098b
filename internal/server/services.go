// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"fmt"

	"codeberg.org/oliverandrich/resumekit/internal/config"
	"codeberg.org/oliverandrich/resumekit/internal/repository"
	"codeberg.org/oliverandrich/resumekit/internal/services/account"
	"codeberg.org/oliverandrich/resumekit/internal/services/auth"
	"codeberg.org/oliverandrich/resumekit/internal/services/cleanup"
	"codeberg.org/oliverandrich/resumekit/internal/services/email"
	"codeberg.org/oliverandrich/resumekit/internal/services/flow"
	"codeberg.org/oliverandrich/resumekit/internal/services/otp"
	"codeberg.org/oliverandrich/resumekit/internal/services/ratelimit"
	"codeberg.org/oliverandrich/resumekit/internal/services/session"
)

// Services holds the wired application services.
type Services struct {
	Repo     *repository.Repository
	Sessions *session.Manager
	OTP      *otp.Manager
	Flows    *flow.Store
	Auth     *auth.Service
	Accounts *account.Service
	Janitor  *cleanup.Janitor
}

// NewServices wires the services on top of a repository and a mail sender.
func NewServices(cfg *config.Config, repo *repository.Repository, sender email.Sender) (*Services, error) {
	sessions, err := session.NewManager(&cfg.Session, cfg.SecureCookies())
	if err != nil {
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	limiter := ratelimit.New(&cfg.OTP, repo)
	otps := otp.NewManager(repo, limiter, &cfg.OTP)
	flows := flow.NewStore(cfg.Flow.TTL, cfg.OTP.MaxAttempts)
	accounts := account.NewService(repo, &cfg.Account)

	authService := auth.NewService(auth.Deps{
		Repo:     repo,
		OTP:      otps,
		Limiter:  limiter,
		Flows:    flows,
		Notifier: email.NewService(sender, cfg.OTP.TTL),
		Guard:    accounts,
	}, &cfg.Account)

	return &Services{
		Repo:     repo,
		Sessions: sessions,
		OTP:      otps,
		Flows:    flows,
		Auth:     authService,
		Accounts: accounts,
		Janitor:  cleanup.New(repo, otps, accounts, flows, &cfg.Cleanup),
	}, nil
}
