// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"

	"codeberg.org/oliverandrich/resumekit/internal/models"
)

// Validation codes. The translated message is "validation_" + code.
const (
	CodeRequired         = "required"
	CodeNameLength       = "name_length"
	CodeEmailInvalid     = "email_invalid"
	CodePasswordTooShort = "password_too_short"
	CodePasswordNumeric  = "password_numeric"
	CodePasswordCommon   = "password_common"
	CodePasswordSimilar  = "password_similar"
	CodePasswordNoUpper  = "password_no_upper"
	CodePasswordNoLower  = "password_no_lower"
	CodePasswordNoDigit  = "password_no_digit"
	CodePasswordMismatch = "password_mismatch"
)

// MaxNameLength bounds first and last names.
const MaxNameLength = 30

// ErrValidation matches every *InputError.
var ErrValidation = errors.New("validation failed")

// ValidationError is a single rejected field.
type ValidationError struct {
	Params map[string]any
	Field  string
	Code   string
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Code
}

// MessageID returns the translation key of the error.
func (e ValidationError) MessageID() string {
	return "validation_" + e.Code
}

// InputError collects the field errors of a request.
type InputError struct {
	Errors []ValidationError
}

func (e *InputError) Error() string {
	if len(e.Errors) == 0 {
		return ErrValidation.Error()
	}
	return ErrValidation.Error() + ": " + e.Errors[0].Error()
}

func (e *InputError) Is(target error) bool {
	return target == ErrValidation
}

// Codes returns the codes reported for field.
func (e *InputError) Codes(field string) []string {
	var codes []string
	for _, ve := range e.Errors {
		if ve.Field == field {
			codes = append(codes, ve.Code)
		}
	}
	return codes
}

func inputError(errs []ValidationError) error {
	if len(errs) == 0 {
		return nil
	}
	return &InputError{Errors: errs}
}

// SignupRequest is a validated signup form.
type SignupRequest struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// NewSignupRequest validates and normalizes signup input.
func NewSignupRequest(firstName, lastName, email, password, confirm string, v *PasswordValidator) (SignupRequest, error) {
	var errs []ValidationError

	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	errs = append(errs, validateName("first_name", firstName)...)
	errs = append(errs, validateName("last_name", lastName)...)

	normalized, emailErr := ValidateEmail("email", email)
	if emailErr != nil {
		errs = append(errs, *emailErr)
	}

	errs = append(errs, validateNewPassword(v, password, confirm, normalized, firstName, lastName)...)

	if err := inputError(errs); err != nil {
		return SignupRequest{}, err
	}

	return SignupRequest{
		FirstName: firstName,
		LastName:  lastName,
		Email:     normalized,
		Password:  password,
	}, nil
}

// ValidateEmail checks for a bare RFC 5322 address and returns it
// normalized.
func ValidateEmail(field, email string) (string, *ValidationError) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", &ValidationError{Field: field, Code: CodeRequired}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return "", &ValidationError{Field: field, Code: CodeEmailInvalid}
	}
	return models.NormalizeEmail(email), nil
}

// ValidateNewPassword checks a new password and its confirmation.
func ValidateNewPassword(v *PasswordValidator, password, confirm string, userAttributes ...string) error {
	return inputError(validateNewPassword(v, password, confirm, userAttributes...))
}

func validateNewPassword(v *PasswordValidator, password, confirm string, userAttributes ...string) []ValidationError {
	errs := v.Validate("password", password, userAttributes...).Errors
	if password != "" && password != confirm {
		errs = append(errs, ValidationError{Field: "password_confirm", Code: CodePasswordMismatch})
	}
	return errs
}

func validateName(field, name string) []ValidationError {
	if name == "" {
		return []ValidationError{{Field: field, Code: CodeRequired}}
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return []ValidationError{{Field: field, Code: CodeNameLength, Params: map[string]any{"Max": MaxNameLength}}}
	}
	return nil
}
