// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"codeberg.org/oliverandrich/resumekit/internal/handlers"
	"github.com/labstack/echo/v4"
	"github.com/vinovest/sqlx"
)

func setupRoutes(e *echo.Echo, db *sqlx.DB, svc *Services) {
	h := handlers.New(db)

	e.GET("/health", h.Health)
	e.GET("/", h.Home)

	a := handlers.NewAuth(svc.Auth, svc.Sessions, svc.Flows)
	g := e.Group("/auth")
	g.GET("/flow/:kind", a.FlowStatus)
	g.POST("/signup", a.Signup)
	g.POST("/signup/verify", a.SignupVerify)
	g.POST("/signup/resend", a.SignupResend)
	g.POST("/password-reset", a.PasswordReset)
	g.POST("/password-reset/verify", a.PasswordResetVerify)
	g.POST("/password-reset/confirm", a.PasswordResetConfirm)
	g.POST("/password-reset/resend", a.PasswordResetResend)
	g.POST("/login", a.Login)
	g.POST("/logout", a.Logout)

	acc := handlers.NewAccount(svc.Repo, svc.Accounts, svc.Sessions, svc.Flows)
	ag := e.Group("/account", RequireAuth())
	ag.GET("", acc.Show)
	ag.POST("/delete", acc.Delete)
}
