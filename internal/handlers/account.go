// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"codeberg.org/oliverandrich/resumekit/internal/appcontext"
	"codeberg.org/oliverandrich/resumekit/internal/i18n"
	"codeberg.org/oliverandrich/resumekit/internal/models"
	"codeberg.org/oliverandrich/resumekit/internal/repository"
	"codeberg.org/oliverandrich/resumekit/internal/services/account"
	"codeberg.org/oliverandrich/resumekit/internal/services/flow"
	"codeberg.org/oliverandrich/resumekit/internal/services/session"
	"github.com/labstack/echo/v4"
)

// AccountHandlers serves the signed-in user's account.
type AccountHandlers struct {
	repo     *repository.Repository
	accounts *account.Service
	sessions *session.Manager
	flows    *flow.Store
}

// NewAccount creates a new AccountHandlers instance.
func NewAccount(repo *repository.Repository, accounts *account.Service, sessions *session.Manager, flows *flow.Store) *AccountHandlers {
	return &AccountHandlers{
		repo:     repo,
		accounts: accounts,
		sessions: sessions,
		flows:    flows,
	}
}

// AccountResponse describes the signed-in account.
type AccountResponse struct {
	Status  string              `json:"status"`
	User    *models.User        `json:"user"`
	Records models.OwnedRecords `json:"records"`
}

// DeleteAccountForm confirms a deletion with the account password.
type DeleteAccountForm struct {
	Password string `form:"password" json:"password"`
}

// Show returns the account and how many records it owns.
func (h *AccountHandlers) Show(c echo.Context) error {
	user := currentUser(c)
	if user == nil {
		return echo.ErrUnauthorized
	}

	records, err := h.repo.CountOwnedRecords(c.Request().Context(), user.ID)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusOK, AccountResponse{Status: "ok", User: user, Records: records})
}

// Delete removes the account after re-checking the password and ends the
// session.
func (h *AccountHandlers) Delete(c echo.Context) error {
	user := currentUser(c)
	if user == nil {
		return echo.ErrUnauthorized
	}

	var form DeleteAccountForm
	if err := c.Bind(&form); err != nil {
		return badRequest(c)
	}

	ctx := c.Request().Context()
	if _, err := h.accounts.Delete(ctx, user.ID, form.Password); err != nil {
		return fail(c, err)
	}

	if sid, err := sessionID(c); err == nil {
		h.flows.ClearSession(sid)
	}
	c.SetCookie(h.sessions.Clear())

	return c.JSON(http.StatusOK, Response{
		Status:  "account_deleted",
		Message: i18n.T(ctx, "msg_account_deleted"),
		Next:    "/",
	})
}

func currentUser(c echo.Context) *models.User {
	if ac := appcontext.From(c); ac != nil {
		return ac.GetUser()
	}
	return nil
}
