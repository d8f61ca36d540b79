package portal

import (
	"github.com/goliatone/go-errors"
)

const (
	textCodeInvalidCredentials = "INVALID_CREDENTIALS"
	textCodeSessionExpired     = "SESSION_EXPIRED"
	textCodeRefreshRejected    = "REFRESH_REJECTED"
	textCodeFieldValidation    = "FIELD_VALIDATION"
	textCodeNotPermitted       = "NOT_PERMITTED"
	textCodeBackendUnavailable = "BACKEND_UNAVAILABLE"
)

// ErrInvalidCredentials is returned when the token endpoint rejects a login pair.
var ErrInvalidCredentials = errors.New("invalid email or password", errors.CategoryAuth).
	WithTextCode(textCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrSessionExpired is returned when a stored credential is confirmed invalid
// by the backend after the one-shot refresh attempt.
var ErrSessionExpired = errors.New("session expired", errors.CategoryAuth).
	WithTextCode(textCodeSessionExpired).
	WithCode(errors.CodeUnauthorized)

// ErrRefreshRejected is returned when the refresh endpoint itself rejects the
// stored refresh token.
var ErrRefreshRejected = errors.New("refresh token rejected", errors.CategoryAuth).
	WithTextCode(textCodeRefreshRejected).
	WithCode(errors.CodeUnauthorized)

// ErrNotPermitted is returned when an authenticated user lacks the role an
// admin operation requires.
var ErrNotPermitted = errors.New("not permitted", errors.CategoryAuthz).
	WithTextCode(textCodeNotPermitted).
	WithCode(errors.CodeForbidden)

// ErrNoCredentials signals that no credential pair is in durable storage.
var ErrNoCredentials = errors.New("no stored credentials", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized)

// ErrNotAuthenticated signals an operation that requires an identity was
// called while the store is anonymous.
var ErrNotAuthenticated = errors.New("not authenticated", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized)

// FieldErrors holds backend-reported field validation messages, keyed by the
// wire field name (e.g. "email", "number", "old_password").
type FieldErrors map[string][]string

// First returns the first message recorded for a field, or "".
func (f FieldErrors) First(field string) string {
	if msgs, ok := f[field]; ok && len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// NewValidationError wraps backend field errors in a rich error so callers
// can surface them next to the relevant form fields.
func NewValidationError(fields FieldErrors) *errors.Error {
	return errors.New("validation failed", errors.CategoryValidation).
		WithTextCode(textCodeFieldValidation).
		WithCode(errors.CodeBadRequest).
		WithMetadata(map[string]any{"fields": fields})
}

// ValidationFields extracts backend field errors from an error chain, if any.
func ValidationFields(err error) (FieldErrors, bool) {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return nil, false
	}
	if richErr.Metadata == nil {
		return nil, false
	}
	fields, ok := richErr.Metadata["fields"].(FieldErrors)
	return fields, ok
}

// IsCredentialInvalid reports whether the backend confirmed the stored
// credential as unusable (401/403 after the refresh attempt). Only this class
// of failure may clear session state.
func IsCredentialInvalid(err error) bool {
	if err == nil {
		return false
	}

	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}

	switch richErr.Category {
	case errors.CategoryAuth, errors.CategoryAuthz:
		return true
	default:
		return false
	}
}

// IsTransient reports whether the failure is a network/server-side condition
// that must never mutate session state.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		// Unwrapped errors come from the transport, not the backend.
		return true
	}

	switch richErr.Category {
	case errors.CategoryOperation, errors.CategoryInternal:
		return true
	default:
		return false
	}
}

// IsValidationError reports whether the error carries backend field errors.
func IsValidationError(err error) bool {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.Category == errors.CategoryValidation
}
