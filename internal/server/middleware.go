// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"codeberg.org/oliverandrich/resumekit/internal/appcontext"
	"codeberg.org/oliverandrich/resumekit/internal/config"
	"codeberg.org/oliverandrich/resumekit/internal/i18n"
	"codeberg.org/oliverandrich/resumekit/internal/models"
	"codeberg.org/oliverandrich/resumekit/internal/repository"
	"codeberg.org/oliverandrich/resumekit/internal/services/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func setupMiddleware(e *echo.Echo, cfg *config.Config, svc *Services) {
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger())
	e.Use(middleware.Secure())
	e.Use(middleware.Gzip())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", cfg.Server.MaxBodySize)))
	e.Use(csrfMiddleware(cfg))
	e.Use(csrfToContext())
	e.Use(i18nMiddleware())
	e.Use(customContext())
	e.Use(AuthMiddleware(svc.Sessions, svc.Repo))
}

// csrfMiddleware configures CSRF protection.
func csrfMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	return middleware.CSRFWithConfig(middleware.CSRFConfig{
		TokenLookup:    "form:csrf_token,header:X-CSRF-Token",
		CookieName:     "_csrf",
		CookiePath:     "/",
		CookieSecure:   cfg.SecureCookies(),
		CookieHTTPOnly: true,
		CookieSameSite: http.SameSiteLaxMode,
	})
}

// csrfToContext copies the CSRF token to the request context.
func csrfToContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token, ok := c.Get("csrf").(string); ok {
				ctx := context.WithValue(c.Request().Context(), appcontext.CSRFToken{}, token)
				c.SetRequest(c.Request().WithContext(ctx))
			}
			return next(c)
		}
	}
}

// requestLogger returns middleware that logs requests using slog.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/health"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			}

			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
				slog.LogAttrs(c.Request().Context(), slog.LevelError, "request", attrs...)
			} else {
				slog.LogAttrs(c.Request().Context(), slog.LevelInfo, "request", attrs...)
			}

			return nil
		},
	})
}

// i18nMiddleware sets the locale based on Accept-Language header.
func i18nMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			acceptLang := c.Request().Header.Get("Accept-Language")
			lang := i18n.MatchLanguage(acceptLang)
			ctx := i18n.WithLocale(c.Request().Context(), lang)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// customContext wraps the Echo context with the application Context.
func customContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return next(&appcontext.Context{Context: c})
		}
	}
}

// UserLoader loads the account behind a session.
type UserLoader interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// AuthMiddleware attaches the session to the request. Requests without a
// valid session cookie get a fresh anonymous session, so signup and reset
// flows always have an ID to key on. A session whose user no longer exists
// continues as anonymous.
func AuthMiddleware(sessions *session.Manager, users UserLoader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc, ok := c.(*appcontext.Context)
			if !ok {
				return next(c)
			}

			data, err := sessions.Parse(c.Request())
			if err != nil {
				return err
			}
			if data == nil {
				data = sessions.NewAnonymous()
				cookie, err := sessions.Encode(data)
				if err != nil {
					return err
				}
				c.SetCookie(cookie)
			}
			cc.Session = data

			if data.IsAuthenticated() {
				ctx := c.Request().Context()
				user, err := users.GetUserByID(ctx, data.UserID)
				switch {
				case err == nil:
					cc.User = user
					c.SetRequest(c.Request().WithContext(context.WithValue(ctx, appcontext.User{}, user)))
				case errors.Is(err, repository.ErrNotFound):
					slog.Debug("session user no longer exists", "user_id", data.UserID)
				default:
					return err
				}
			}

			return next(cc)
		}
	}
}

// RequireAuth rejects requests without a logged-in user.
func RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if ac := appcontext.From(c); ac == nil || !ac.IsAuthenticated() {
				return echo.ErrUnauthorized
			}
			return next(c)
		}
	}
}
