// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"bufio"
	"embed"
	"strings"
	"unicode"

	"codeberg.org/oliverandrich/resumekit/internal/config"
)

//go:embed common_passwords.txt
var commonPasswordsFS embed.FS

var commonPasswords map[string]struct{}

func init() {
	commonPasswords = make(map[string]struct{})
	file, err := commonPasswordsFS.Open("common_passwords.txt")
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		password := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if password != "" {
			commonPasswords[password] = struct{}{}
		}
	}
}

// minAttributePart is the shortest piece of a user attribute compared
// against a password.
const minAttributePart = 4

// PasswordValidator validates passwords against various criteria
type PasswordValidator struct {
	MinLength            int
	RequireUppercase     bool
	RequireLowercase     bool
	RequireDigit         bool
	CheckCommonPasswords bool
	CheckUserSimilarity  bool
}

// NewPasswordValidator returns the account password policy: a minimum
// length plus upper case, lower case and digit.
func NewPasswordValidator(cfg *config.AccountConfig) *PasswordValidator {
	return &PasswordValidator{
		MinLength:            cfg.PasswordMinLength,
		RequireUppercase:     true,
		RequireLowercase:     true,
		RequireDigit:         true,
		CheckCommonPasswords: true,
		CheckUserSimilarity:  true,
	}
}

// ValidationResult holds all validation errors
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// Validate checks a password against all configured validators. Errors are
// reported for field.
func (v *PasswordValidator) Validate(field, password string, userAttributes ...string) ValidationResult {
	var errs []ValidationError
	fail := func(code string, params map[string]any) {
		errs = append(errs, ValidationError{Field: field, Code: code, Params: params})
	}

	if password == "" {
		fail(CodeRequired, nil)
		return ValidationResult{Errors: errs}
	}

	if len([]rune(password)) < v.MinLength {
		fail(CodePasswordTooShort, map[string]any{"Min": v.MinLength})
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	if v.RequireUppercase && !hasUpper {
		fail(CodePasswordNoUpper, nil)
	}
	if v.RequireLowercase && !hasLower {
		fail(CodePasswordNoLower, nil)
	}
	if v.RequireDigit && !hasDigit {
		fail(CodePasswordNoDigit, nil)
	}

	if isEntirelyNumeric(password) {
		fail(CodePasswordNumeric, nil)
	}

	if v.CheckCommonPasswords && isCommonPassword(password) {
		fail(CodePasswordCommon, nil)
	}

	if v.CheckUserSimilarity && isSimilarToUserAttributes(password, userAttributes) {
		fail(CodePasswordSimilar, nil)
	}

	return ValidationResult{
		Valid:  len(errs) == 0,
		Errors: errs,
	}
}

func isEntirelyNumeric(password string) bool {
	for _, r := range password {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(password) > 0
}

func isCommonPassword(password string) bool {
	_, exists := commonPasswords[strings.ToLower(password)]
	return exists
}

func isSimilarToUserAttributes(password string, attributes []string) bool {
	passwordLower := strings.ToLower(password)

	for _, attr := range attributes {
		attrLower := strings.ToLower(strings.TrimSpace(attr))
		if attrLower == "" {
			continue
		}

		if strings.Contains(attrLower, passwordLower) {
			return true
		}
		if similarity(passwordLower, attrLower) > 0.7 {
			return true
		}

		// "alice@example.com" is checked as alice, example and com
		parts := strings.FieldsFunc(attrLower, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, part := range parts {
			if len(part) < minAttributePart {
				continue
			}
			if strings.Contains(passwordLower, part) || similarity(passwordLower, part) > 0.7 {
				return true
			}
		}
	}

	return false
}

func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	lcs := longestCommonSubsequence(a, b)
	maxLen := max(len(a), len(b))

	return float64(lcs) / float64(maxLen)
}

func longestCommonSubsequence(a, b string) int {
	m, n := len(a), len(b)
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}

	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if a[i-1] == b[j-1] {
				dp[i][j] = dp[i-1][j-1] + 1
			} else {
				dp[i][j] = max(dp[i-1][j], dp[i][j-1])
			}
		}
	}

	return dp[m][n]
}
