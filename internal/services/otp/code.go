// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// CodeDigits is the length of a passcode.
const CodeDigits = 6

var codeSpace = big.NewInt(1_000_000)

// GenerateCode returns a uniformly random zero-padded 6-digit code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generating passcode: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeDigits, n.Int64()), nil
}

// HashCode returns the hex-encoded SHA-256 of a code.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// CodeEqual compares a submitted code against a stored hash in constant time.
func CodeEqual(code, storedHash string) bool {
	provided := HashCode(strings.TrimSpace(code))
	return subtle.ConstantTimeCompare([]byte(provided), []byte(storedHash)) == 1
}
