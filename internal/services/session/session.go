// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package session stores the session in a signed and optionally encrypted
// cookie. Every visitor gets a session ID that keys server-side flow state.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"codeberg.org/oliverandrich/resumekit/internal/config"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
)

const keyLength = 32

// Data is the payload carried in the session cookie.
type Data struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"uid,omitempty"`
	Username  string    `json:"u,omitempty"`
	ExpiresAt time.Time `json:"exp"`
}

// IsAuthenticated reports whether the session belongs to a logged-in user.
func (d *Data) IsAuthenticated() bool {
	return d != nil && d.UserID != 0
}

// Manager encodes and decodes session cookies.
type Manager struct {
	codec  *securecookie.SecureCookie
	name   string
	maxAge int
	secure bool
}

// NewManager creates a session manager. An empty hash key generates a random
// one, which invalidates all sessions on restart.
func NewManager(cfg *config.SessionConfig, secure bool) (*Manager, error) {
	hashKey, err := decodeKey(cfg.HashKey)
	if err != nil {
		return nil, fmt.Errorf("invalid session hash key: %w", err)
	}
	if hashKey == nil {
		hashKey = make([]byte, keyLength)
		if _, err := rand.Read(hashKey); err != nil {
			return nil, fmt.Errorf("generating session hash key: %w", err)
		}
		slog.Warn("no session hash key configured, sessions will not survive a restart")
	}

	blockKey, err := decodeKey(cfg.BlockKey)
	if err != nil {
		return nil, fmt.Errorf("invalid session block key: %w", err)
	}

	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(cfg.MaxAge)
	codec.SetSerializer(securecookie.JSONEncoder{})

	return &Manager{
		codec:  codec,
		name:   cfg.CookieName,
		maxAge: cfg.MaxAge,
		secure: secure,
	}, nil
}

func decodeKey(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(key) != keyLength {
		return nil, fmt.Errorf("must be %d bytes, got %d", keyLength, len(key))
	}
	return key, nil
}

// CookieName returns the name of the session cookie.
func (m *Manager) CookieName() string {
	return m.name
}

// NewAnonymous returns a fresh session without a user.
func (m *Manager) NewAnonymous() *Data {
	return &Data{
		ID:        uuid.NewString(),
		ExpiresAt: time.Now().Add(time.Duration(m.maxAge) * time.Second),
	}
}

// Create starts a new authenticated session. The session ID is always fresh.
func (m *Manager) Create(userID int64, username string) (*http.Cookie, error) {
	data := m.NewAnonymous()
	data.UserID = userID
	data.Username = username
	return m.Encode(data)
}

// Encode serializes data into a session cookie.
func (m *Manager) Encode(data *Data) (*http.Cookie, error) {
	value, err := m.codec.Encode(m.name, data)
	if err != nil {
		return nil, fmt.Errorf("encoding session: %w", err)
	}
	return m.cookie(value, m.maxAge), nil
}

// Parse reads the session from a request. A missing, invalid, tampered or
// expired cookie yields nil without an error.
func (m *Manager) Parse(r *http.Request) (*Data, error) {
	cookie, err := r.Cookie(m.name)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return nil, nil
		}
		return nil, err
	}

	var data Data
	if err := m.codec.Decode(m.name, cookie.Value, &data); err != nil {
		slog.Debug("discarding session cookie", "error", err)
		return nil, nil
	}
	if data.ID == "" || time.Now().After(data.ExpiresAt) {
		return nil, nil
	}
	return &data, nil
}

// Clear returns a cookie that removes the session.
func (m *Manager) Clear() *http.Cookie {
	return m.cookie("", -1)
}

func (m *Manager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     m.name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
