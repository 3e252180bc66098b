// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package appcontext provides the custom Echo context and context keys.
package appcontext

import (
	"codeberg.org/oliverandrich/resumekit/internal/models"
	"codeberg.org/oliverandrich/resumekit/internal/services/session"
	"github.com/labstack/echo/v4"
)

// Context keys for storing values in context.Context.
type (
	// CSRFToken is the context key for the CSRF token.
	CSRFToken struct{}
	// User is the context key for the authenticated user.
	User struct{}
)

// Context is a custom Echo context carrying the session and the user.
type Context struct {
	echo.Context
	Session *session.Data
	User    *models.User // nil if not authenticated
}

// GetUser returns the authenticated user, or nil if not authenticated.
func (c *Context) GetUser() *models.User {
	return c.User
}

// IsAuthenticated returns true if the user is authenticated.
func (c *Context) IsAuthenticated() bool {
	return c.User != nil
}

// SessionID returns the ID keying server-side flow state, or "" without a
// session.
func (c *Context) SessionID() string {
	if c.Session == nil {
		return ""
	}
	return c.Session.ID
}

// From returns the application context of an echo context, or nil when the
// session middleware did not run.
func From(c echo.Context) *Context {
	if ac, ok := c.(*Context); ok {
		return ac
	}
	return nil
}
