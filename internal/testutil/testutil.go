// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package testutil provides test helpers and fixtures.
package testutil

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"codeberg.org/oliverandrich/resumekit/internal/database"
	"codeberg.org/oliverandrich/resumekit/internal/models"
	"codeberg.org/oliverandrich/resumekit/internal/repository"
	"codeberg.org/oliverandrich/resumekit/internal/services/email"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// TestPassword satisfies the default password policy.
const TestPassword = "Sturdy-Pass42"

// NewTestDB creates an in-memory SQLite database for tests.
// Returns both the database connection and the repository for convenience.
func NewTestDB(t *testing.T) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	repo := repository.New(db)
	return db, repo
}

// NewTestUser creates an account for email whose password is TestPassword.
func NewTestUser(t *testing.T, repo *repository.Repository, email string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	require.NoError(t, err)

	now := time.Now().UTC()
	user := &models.User{
		Username:     strings.SplitN(email, "@", 2)[0],
		Email:        email,
		FirstName:    "Test",
		LastName:     "User",
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, repo.CreateUser(context.Background(), user))
	return user
}

// NewTestRecords gives a user one record of every owned kind plus a second
// generated document.
func NewTestRecords(t *testing.T, repo *repository.Repository, userID int64) models.OwnedRecords {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.CreateProfile(ctx, &models.Profile{UserID: userID, Headline: "Engineer", CreatedAt: now}))
	require.NoError(t, repo.CreateEducation(ctx, &models.Education{UserID: userID, Institution: "TU Berlin", CreatedAt: now}))
	require.NoError(t, repo.CreateExperience(ctx, &models.Experience{UserID: userID, Company: "Acme", CreatedAt: now}))
	require.NoError(t, repo.CreateProject(ctx, &models.Project{UserID: userID, Name: "Compiler", CreatedAt: now}))
	require.NoError(t, repo.CreateGeneratedDocument(ctx, &models.GeneratedDocument{UserID: userID, Kind: models.DocumentResume, CreatedAt: now}))
	require.NoError(t, repo.CreateGeneratedDocument(ctx, &models.GeneratedDocument{UserID: userID, Kind: models.DocumentCoverLetter, CreatedAt: now}))

	return models.OwnedRecords{Profiles: 1, Educations: 1, Experiences: 1, Projects: 1, GeneratedDocuments: 2}
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock frozen at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start.UTC()}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Codes returns a passcode generator that hands out codes in order and then
// repeats the last one.
func Codes(codes ...string) func() (string, error) {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		code := codes[min(i, len(codes)-1)]
		i++
		return code, nil
	}
}

// RecordingSender is an email.Sender that keeps every message in memory.
type RecordingSender struct {
	mu       sync.Mutex
	Messages []email.Message
	Err      error
}

// Send records msg, or fails with Err when set.
func (s *RecordingSender) Send(_ context.Context, msg email.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Messages = append(s.Messages, msg)
	return nil
}

// SetErr makes subsequent sends fail with err.
func (s *RecordingSender) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Err = err
}

// Sent returns a copy of the recorded messages.
func (s *RecordingSender) Sent() []email.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]email.Message(nil), s.Messages...)
}

// NewEchoContext creates an Echo context for handler tests.
func NewEchoContext(e *echo.Echo, method, path string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

// NewRequest creates an HTTP request for testing.
func NewRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}
