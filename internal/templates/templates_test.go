// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package templates_test

import (
	"bytes"
	"context"
	"testing"

	"codeberg.org/oliverandrich/resumekit/internal/appcontext"
	"codeberg.org/oliverandrich/resumekit/internal/i18n"
	"codeberg.org/oliverandrich/resumekit/internal/models"
	"codeberg.org/oliverandrich/resumekit/internal/templates"
	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func render(t *testing.T, ctx context.Context, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, c.Render(ctx, &buf))
	return buf.String()
}

func englishContext(t *testing.T) context.Context {
	t.Helper()
	require.NoError(t, i18n.Init())
	return i18n.WithLocale(context.Background(), language.English)
}

func TestHome_Anonymous(t *testing.T) {
	ctx := englishContext(t)

	html := render(t, ctx, templates.Home())

	assert.Contains(t, html, `<html lang="en">`)
	assert.Contains(t, html, "Your resume workspace")
	assert.Contains(t, html, "Create an account")
}

func TestHome_Authenticated(t *testing.T) {
	ctx := englishContext(t)
	ctx = context.WithValue(ctx, appcontext.User{}, &models.User{FirstName: "Ada", LastName: "<Lovelace>", Email: "ada@example.com"})

	html := render(t, ctx, templates.Home())

	assert.Contains(t, html, "Welcome back, Ada &lt;Lovelace&gt;.")
	assert.Contains(t, html, "ada@example.com")
	assert.NotContains(t, html, "<Lovelace>")
}

func TestLayout_CSRFToken(t *testing.T) {
	ctx := context.WithValue(englishContext(t), appcontext.CSRFToken{}, "tok123")

	html := render(t, ctx, templates.Home())

	assert.Contains(t, html, `<meta name="csrf-token" content="tok123">`)
}

func TestError(t *testing.T) {
	ctx := englishContext(t)

	html := render(t, ctx, templates.Error(404, "Not Found", "<script>alert(1)</script>"))

	assert.Contains(t, html, "404 Not Found")
	assert.NotContains(t, html, "<script>")
}

func TestPasscodeEmailHTML(t *testing.T) {
	ctx := englishContext(t)

	html := render(t, ctx, templates.PasscodeEmailHTML(templates.PasscodeEmail{
		Greeting: "Hello <b>Ada</b>,",
		Intro:    "Use this code:",
		Code:     "042042",
		Expiry:   "The code expires in 10 minutes.",
		Ignore:   "Ignore otherwise.",
		Signoff:  "Team",
	}))

	assert.Contains(t, html, "042042")
	assert.Contains(t, html, "Hello &lt;b&gt;Ada&lt;/b&gt;,")
	assert.Contains(t, html, "The code expires in 10 minutes.")
}

func TestGetUser(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, templates.GetUser(ctx))
	assert.False(t, templates.IsAuthenticated(ctx))

	ctx = context.WithValue(ctx, appcontext.User{}, &models.User{ID: 7})
	assert.True(t, templates.IsAuthenticated(ctx))
}
