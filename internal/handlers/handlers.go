// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"codeberg.org/oliverandrich/resumekit/internal/templates"
	"github.com/labstack/echo/v4"
	"github.com/vinovest/sqlx"
)

// Handlers contains the page and health check handlers.
type Handlers struct {
	db *sqlx.DB
}

// New creates a new Handlers instance.
func New(db *sqlx.DB) *Handlers {
	return &Handlers{db: db}
}

// Health reports whether the service and its database respond.
func (h *Handlers) Health(c echo.Context) error {
	if h.db != nil {
		if err := h.db.PingContext(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Home renders the home page.
func (h *Handlers) Home(c echo.Context) error {
	return Render(c, http.StatusOK, templates.Home())
}
