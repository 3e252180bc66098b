// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"codeberg.org/oliverandrich/resumekit/internal/repository"
)

const (
	maxUsernameLength = 140
	defaultUsername   = "user"
)

var usernameUnsafe = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// baseUsername derives a username from the local part of an address.
func baseUsername(email string) string {
	local, _, _ := strings.Cut(email, "@")
	base := usernameUnsafe.ReplaceAllString(local, "")
	if len(base) > maxUsernameLength {
		base = base[:maxUsernameLength]
	}
	if base == "" {
		return defaultUsername
	}
	return base
}

// uniqueUsername appends a counter to the base username until it is free.
func uniqueUsername(ctx context.Context, q *repository.Repository, email string) (string, error) {
	base := baseUsername(email)
	candidate := base
	for n := 1; ; n++ {
		taken, err := q.UsernameExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		suffix := strconv.Itoa(n)
		candidate = base[:min(len(base), maxUsernameLength-len(suffix))] + suffix
	}
}
