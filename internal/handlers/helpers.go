// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"

	"codeberg.org/oliverandrich/resumekit/internal/appcontext"
	"codeberg.org/oliverandrich/resumekit/internal/services/auth"
	"codeberg.org/oliverandrich/resumekit/internal/services/ratelimit"
	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
)

var errNoSession = errors.New("request has no session")

// Render renders a templ component with the given status code.
func Render(c echo.Context, statusCode int, component templ.Component) error {
	buf := templ.GetBuffer()
	defer templ.ReleaseBuffer(buf)

	if err := component.Render(c.Request().Context(), buf); err != nil {
		return err
	}

	return c.HTML(statusCode, buf.String())
}

// Response is the JSON body of the auth and account endpoints.
type Response struct {
	Status            string              `json:"status"`
	Message           string              `json:"message"`
	Next              string              `json:"next,omitempty"`
	RetryAfterSeconds int                 `json:"retry_after_seconds,omitempty"`
	AttemptsRemaining *int                `json:"attempts_remaining,omitempty"`
	Restart           bool                `json:"restart,omitempty"`
	Errors            map[string][]string `json:"errors,omitempty"`
	Flow              *FlowResponse       `json:"flow,omitempty"`
}

// FlowResponse describes an open signup or reset flow.
type FlowResponse struct {
	Kind              string `json:"kind"`
	Email             string `json:"email"`
	Verified          bool   `json:"verified"`
	AttemptsRemaining int    `json:"attempts_remaining"`
	ResendInSeconds   int    `json:"resend_in_seconds"`
	CodeTTLSeconds    int    `json:"code_ttl_seconds"`
}

func newFlowResponse(s *auth.FlowStatus) *FlowResponse {
	if s == nil {
		return nil
	}
	return &FlowResponse{
		Kind:              string(s.Kind),
		Email:             s.Email,
		Verified:          s.Verified,
		AttemptsRemaining: s.AttemptsRemaining,
		ResendInSeconds:   ratelimit.RetrySeconds(s.ResendIn),
		CodeTTLSeconds:    int(s.CodeTTL.Seconds()),
	}
}

// sessionID returns the ID keying the flow state of the request.
func sessionID(c echo.Context) (string, error) {
	if ac := appcontext.From(c); ac != nil && ac.SessionID() != "" {
		return ac.SessionID(), nil
	}
	return "", errNoSession
}
