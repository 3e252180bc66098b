// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"context"
	"net/http"

	"codeberg.org/oliverandrich/resumekit/internal/i18n"
	"codeberg.org/oliverandrich/resumekit/internal/services/auth"
	"codeberg.org/oliverandrich/resumekit/internal/services/flow"
	"codeberg.org/oliverandrich/resumekit/internal/services/session"
	"github.com/labstack/echo/v4"
)

// AuthHandlers contains the signup, password reset and login handlers.
type AuthHandlers struct {
	auth     *auth.Service
	sessions *session.Manager
	flows    *flow.Store
}

// NewAuth creates a new AuthHandlers instance.
func NewAuth(svc *auth.Service, sessions *session.Manager, flows *flow.Store) *AuthHandlers {
	return &AuthHandlers{
		auth:     svc,
		sessions: sessions,
		flows:    flows,
	}
}

// SignupForm is the body of a signup request.
type SignupForm struct {
	FirstName       string `form:"first_name" json:"first_name"`
	LastName        string `form:"last_name" json:"last_name"`
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	PasswordConfirm string `form:"password_confirm" json:"password_confirm"`
}

// EmailForm carries only an email address.
type EmailForm struct {
	Email string `form:"email" json:"email"`
}

// CodeForm is the body of a code verification.
type CodeForm struct {
	Email string `form:"email" json:"email"`
	Code  string `form:"code" json:"code"`
}

// NewPasswordForm is the body of the final password reset step.
type NewPasswordForm struct {
	Email           string `form:"email" json:"email"`
	Code            string `form:"code" json:"code"`
	Password        string `form:"password" json:"password"`
	PasswordConfirm string `form:"password_confirm" json:"password_confirm"`
}

// LoginForm is the body of a login request.
type LoginForm struct {
	Identifier string `form:"identifier" json:"identifier"`
	Password   string `form:"password" json:"password"`
}

// Signup validates the signup form and mails a verification code.
func (h *AuthHandlers) Signup(c echo.Context) error {
	var form SignupForm
	if err := c.Bind(&form); err != nil {
		return badRequest(c)
	}
	sid, err := sessionID(c)
	if err != nil {
		return fail(c, err)
	}

	req, err := auth.NewSignupRequest(form.FirstName, form.LastName, form.Email, form.Password, form.PasswordConfirm, h.auth.PasswordValidator())
	if err != nil {
		return fail(c, err)
	}

	ctx := c.Request().Context()
	status, err := h.auth.RequestSignupOTP(ctx, sid, req)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusOK, Response{
		Status:  "otp_sent",
		Message: i18n.TData(ctx, "msg_signup_code_sent", map[string]any{"Email": status.Email}),
		Next:    "/auth/signup/verify",
		Flow:    newFlowResponse(status),
	})
}

// SignupVerify checks the code and creates the account. The user logs in
// separately afterwards.
func (h *AuthHandlers) SignupVerify(c echo.Context) error {
	var form CodeForm
	if err := c.Bind(&form); err != nil {
		return badRequest(c)
	}
	sid, err := sessionID(c)
	if err != nil {
		return fail(c, err)
	}

	ctx := c.Request().Context()
	if _, err := h.auth.VerifySignupOTP(ctx, sid, form.Email, form.Code); err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusCreated, Response{
		Status:  "signup_complete",
		Message: i18n.T(ctx, "msg_signup_complete"),
		Next:    "/auth/login",
	})
}

// SignupResend mails a fresh signup code.
func (h *AuthHandlers) SignupResend(c echo.Context) error {
	return h.resend(c, h.auth.ResendSignupOTP)
}

// PasswordReset starts a password reset. The response does not reveal
// whether an account exists.
func (h *AuthHandlers) PasswordReset(c echo.Context) error {
	var form EmailForm
	if err := c.Bind(&form); err != nil {
		return badRequest(c)
	}
	sid, err := sessionID(c)
	if err != nil {
		return fail(c, err)
	}

	ctx := c.Request().Context()
	status, err := h.auth.RequestPasswordResetOTP(ctx, sid, form.Email)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusOK, Response{
		Status:  "otp_sent",
		Message: i18n.TData(ctx, "msg_reset_code_sent", map[string]any{"Email": status.Email}),
		Next:    "/auth/password-reset/verify",
		Flow:    newFlowResponse(status),
	})
}

// PasswordResetVerify checks the reset code without consuming it.
func (h *AuthHandlers) PasswordResetVerify(c echo.Context) error {
	var form CodeForm
	if err := c.Bind(&form); err != nil {
		return badRequest(c)
	}
	sid, err := sessionID(c)
	if err != nil {
		return fail(c, err)
	}

	ctx := c.Request().Context()
	status, err := h.auth.VerifyPasswordResetOTP(ctx, sid, form.Email, form.Code)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusOK, Response{
		Status:  "otp_verified",
		Message: i18n.T(ctx, "msg_reset_code_verified"),
		Next:    "/auth/password-reset/confirm",
		Flow:    newFlowResponse(status),
	})
}

// PasswordResetConfirm sets the new password.
func (h *AuthHandlers) PasswordResetConfirm(c echo.Context) error {
	var form NewPasswordForm
	if err := c.Bind(&form); err != nil {
		return badRequest(c)
	}
	sid, err := sessionID(c)
	if err != nil {
		return fail(c, err)
	}

	ctx := c.Request().Context()
	if err := h.auth.SetNewPassword(ctx, sid, form.Email, form.Code, form.Password, form.PasswordConfirm); err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusOK, Response{
		Status:  "password_updated",
		Message: i18n.T(ctx, "msg_password_updated"),
		Next:    "/auth/login",
	})
}

// PasswordResetResend mails a fresh reset code.
func (h *AuthHandlers) PasswordResetResend(c echo.Context) error {
	return h.resend(c, h.auth.ResendPasswordResetOTP)
}

func (h *AuthHandlers) resend(c echo.Context, fn func(ctx context.Context, sid string) (*auth.FlowStatus, error)) error {
	sid, err := sessionID(c)
	if err != nil {
		return fail(c, err)
	}

	ctx := c.Request().Context()
	status, err := fn(ctx, sid)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusOK, Response{
		Status:  "otp_resent",
		Message: i18n.T(ctx, "msg_code_resent"),
		Flow:    newFlowResponse(status),
	})
}

// FlowStatus reports the open flow of the kind named in the path.
func (h *AuthHandlers) FlowStatus(c echo.Context) error {
	kind, ok := flow.ParseKind(c.Param("kind"))
	if !ok {
		return echo.ErrNotFound
	}
	sid, err := sessionID(c)
	if err != nil {
		return fail(c, err)
	}

	status, err := h.auth.FlowStatus(sid, kind)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusOK, Response{
		Status:  "ok",
		Message: i18n.T(c.Request().Context(), "msg_flow_status"),
		Flow:    newFlowResponse(status),
	})
}

// Login authenticates by email or username and issues a fresh session.
func (h *AuthHandlers) Login(c echo.Context) error {
	var form LoginForm
	if err := c.Bind(&form); err != nil {
		return badRequest(c)
	}

	ctx := c.Request().Context()
	user, err := h.auth.Login(ctx, form.Identifier, form.Password)
	if err != nil {
		return fail(c, err)
	}

	cookie, err := h.sessions.Create(user.ID, user.Username)
	if err != nil {
		return fail(c, err)
	}
	if sid, err := sessionID(c); err == nil {
		h.flows.ClearSession(sid)
	}
	c.SetCookie(cookie)

	return c.JSON(http.StatusOK, Response{
		Status:  "logged_in",
		Message: i18n.T(ctx, "msg_logged_in"),
		Next:    "/",
	})
}

// Logout drops the session and its flows.
func (h *AuthHandlers) Logout(c echo.Context) error {
	if sid, err := sessionID(c); err == nil {
		h.flows.ClearSession(sid)
	}
	c.SetCookie(h.sessions.Clear())

	return c.JSON(http.StatusOK, Response{
		Status:  "logged_out",
		Message: i18n.T(c.Request().Context(), "msg_logged_out"),
		Next:    "/",
	})
}
