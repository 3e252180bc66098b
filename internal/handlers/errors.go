// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"codeberg.org/oliverandrich/resumekit/internal/i18n"
	"codeberg.org/oliverandrich/resumekit/internal/services/account"
	"codeberg.org/oliverandrich/resumekit/internal/services/auth"
	"codeberg.org/oliverandrich/resumekit/internal/services/email"
	"codeberg.org/oliverandrich/resumekit/internal/services/flow"
	"codeberg.org/oliverandrich/resumekit/internal/services/otp"
	"codeberg.org/oliverandrich/resumekit/internal/services/ratelimit"
	"codeberg.org/oliverandrich/resumekit/internal/templates"
	"github.com/labstack/echo/v4"
)

// fail writes the JSON response for a service error. Unknown errors are
// logged and answered with a generic 500.
func fail(c echo.Context, err error) error {
	ctx := c.Request().Context()
	code, resp := errorResponse(ctx, err)
	if code == http.StatusInternalServerError {
		slog.Error("request_failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"error", err,
		)
	}
	return c.JSON(code, resp)
}

func errorResponse(ctx context.Context, err error) (int, Response) {
	var (
		rateLimited *otp.RateLimitedError
		codeErr     *auth.CodeError
		inputErr    *auth.InputError
	)

	switch {
	case errors.As(err, &rateLimited):
		secs := ratelimit.RetrySeconds(rateLimited.RetryAfter)
		return http.StatusTooManyRequests, Response{
			Status:            "rate_limited",
			Message:           i18n.TData(ctx, "error_rate_limited", map[string]any{"Seconds": secs}),
			RetryAfterSeconds: secs,
		}

	case errors.As(err, &codeErr):
		remaining := codeErr.AttemptsRemaining
		return http.StatusBadRequest, Response{
			Status:            "invalid_code",
			Message:           i18n.T(ctx, "error_code_invalid") + " " + i18n.TPlural(ctx, "attempts_remaining", remaining),
			AttemptsRemaining: &remaining,
		}

	case otp.IsCodeFailure(err):
		return http.StatusBadRequest, Response{Status: "invalid_code", Message: i18n.T(ctx, "error_code_invalid")}

	case errors.Is(err, auth.ErrAttemptsExhausted):
		return http.StatusConflict, Response{
			Status:  "attempts_exhausted",
			Message: i18n.T(ctx, "error_attempts_exhausted"),
			Restart: true,
		}

	case errors.Is(err, flow.ErrNoActiveFlow):
		return http.StatusConflict, Response{
			Status:  "no_active_flow",
			Message: i18n.T(ctx, "error_no_active_flow"),
			Restart: true,
		}

	case errors.Is(err, flow.ErrSubjectMismatch):
		return http.StatusBadRequest, Response{Status: "subject_mismatch", Message: i18n.T(ctx, "error_subject_mismatch")}

	case errors.Is(err, flow.ErrNotVerified):
		return http.StatusConflict, Response{Status: "not_verified", Message: i18n.T(ctx, "error_not_verified")}

	case errors.Is(err, email.ErrDeliveryFailed):
		return http.StatusServiceUnavailable, Response{Status: "delivery_failed", Message: i18n.T(ctx, "error_delivery_failed")}

	case errors.Is(err, account.ErrEmailBlocked):
		return http.StatusConflict, Response{Status: "email_blocked", Message: i18n.T(ctx, "error_email_blocked")}

	case errors.Is(err, auth.ErrEmailTaken):
		return http.StatusConflict, Response{Status: "email_taken", Message: i18n.T(ctx, "error_email_taken")}

	case errors.As(err, &inputErr):
		return http.StatusUnprocessableEntity, Response{
			Status:  "validation_failed",
			Message: i18n.T(ctx, "error_validation"),
			Errors:  fieldErrors(ctx, inputErr),
		}

	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, Response{Status: "invalid_credentials", Message: i18n.T(ctx, "error_invalid_credentials")}

	case errors.Is(err, account.ErrInvalidConfirmation):
		return http.StatusForbidden, Response{Status: "invalid_confirmation", Message: i18n.T(ctx, "error_invalid_confirmation")}

	case errors.Is(err, account.ErrAccountNotFound):
		return http.StatusNotFound, Response{Status: "not_found", Message: i18n.T(ctx, "error_not_found")}

	case errors.Is(err, errNoSession):
		return http.StatusBadRequest, Response{Status: "bad_request", Message: i18n.T(ctx, "error_bad_request")}
	}

	return http.StatusInternalServerError, Response{Status: "error", Message: i18n.T(ctx, "error_internal")}
}

func fieldErrors(ctx context.Context, e *auth.InputError) map[string][]string {
	out := make(map[string][]string, len(e.Errors))
	for _, ve := range e.Errors {
		out[ve.Field] = append(out[ve.Field], i18n.TData(ctx, ve.MessageID(), ve.Params))
	}
	return out
}

// badRequest answers a request whose body could not be bound.
func badRequest(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, Response{
		Status:  "bad_request",
		Message: i18n.T(c.Request().Context(), "error_bad_request"),
	})
}

// ErrorHandler renders echo errors as JSON for API clients and as an HTML
// page for browsers.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
	} else {
		slog.Error("unhandled_error", "method", c.Request().Method, "path", c.Path(), "error", err)
	}

	ctx := c.Request().Context()
	messageID := "error_internal"
	switch code {
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		messageID = "error_not_found"
	case http.StatusBadRequest, http.StatusForbidden, http.StatusRequestEntityTooLarge:
		messageID = "error_bad_request"
	case http.StatusUnauthorized:
		messageID = "error_unauthorized"
	}
	message := i18n.T(ctx, messageID)

	var writeErr error
	switch {
	case c.Request().Method == http.MethodHead:
		writeErr = c.NoContent(code)
	case wantsJSON(c.Request()):
		writeErr = c.JSON(code, Response{Status: "error", Message: message})
	default:
		title := http.StatusText(code)
		if title == "" {
			title = "Error"
		}
		writeErr = Render(c, code, templates.Error(code, title, message))
	}
	if writeErr != nil {
		slog.Error("error_response_failed", "error", writeErr)
	}
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON) ||
		strings.HasPrefix(r.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON)
}
