// Package service provides business logic for the application.
package service

import (
	"errors"
	"fmt"
)

// Service errors.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrCannotDeleteSelf   = errors.New("cannot delete your own account")
	ErrScriptNotFound     = errors.New("script not found")
	ErrLanguageNotFound   = errors.New("language not found")
	ErrLanguageExists     = errors.New("language already exists")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrNotPending         = errors.New("only pending submissions can be deleted")
	ErrAudioNotFound      = errors.New("audio file not found")
	ErrProfileIncomplete  = errors.New("please complete your profile (gender and age group) first")
	ErrEarningsDisabled   = errors.New("earnings display is disabled")
	ErrDemoDisabled       = errors.New("demo login is disabled in production")
	ErrFallbackDisabled   = errors.New("webview fallback is disabled")
	ErrOAuthDisabled      = errors.New("google sign-in is not configured")
	ErrInvalidState       = errors.New("invalid oauth state")
	ErrEmailUnverified    = errors.New("google account email is not verified")
)

// ValidationError names the offending field. It unwraps to ErrInvalidInput.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
