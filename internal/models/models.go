// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package models defines the database records of the account lifecycle.
package models

import (
	"strings"
)

// NormalizeEmail lowercases and trims an address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
