package tasks

import (
	"github.com/goliatone/go-errors"
)

// ErrTokenExpired is returned when a token fails validation only because
// its expiry has passed.
var ErrTokenExpired = errors.New("token has expired", errors.CategoryAuth).
	WithTextCode("TOKEN_EXPIRED").
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed covers every other token validation failure: bad
// signature, garbage input, wrong issuer or audience.
var ErrTokenMalformed = errors.New("could not validate credentials", errors.CategoryAuth).
	WithTextCode("TOKEN_MALFORMED").
	WithCode(errors.CodeUnauthorized)

// ErrMismatchedHashAndPassword is the uniform login failure. Unknown users
// and wrong passwords produce this same error so callers cannot probe which
// usernames exist.
var ErrMismatchedHashAndPassword = errors.New("incorrect username or password", errors.CategoryAuth).
	WithTextCode("INVALID_CREDENTIALS").
	WithCode(errors.CodeUnauthorized)

// ErrRefreshInvalid collapses every refresh failure mode into one answer.
var ErrRefreshInvalid = errors.New("invalid or expired refresh token", errors.CategoryAuth).
	WithTextCode("REFRESH_INVALID").
	WithCode(errors.CodeUnauthorized)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryAuth).
	WithTextCode("IDENTITY_NOT_FOUND").
	WithCode(errors.CodeUnauthorized)

// ErrNoEmptyString rejects empty passwords before they reach bcrypt
var ErrNoEmptyString = errors.New("value must not be empty", errors.CategoryValidation).
	WithTextCode("EMPTY_VALUE").
	WithCode(errors.CodeBadRequest)

// ErrEmailRegistered signals a registration against a taken email
var ErrEmailRegistered = errors.New("Email already registered", errors.CategoryConflict).
	WithTextCode("EMAIL_TAKEN").
	WithCode(errors.CodeConflict)

// ErrUsernameRegistered signals a registration against a taken username
var ErrUsernameRegistered = errors.New("Username already registered", errors.CategoryConflict).
	WithTextCode("USERNAME_TAKEN").
	WithCode(errors.CodeConflict)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTokenExpired) {
		return true
	}
	var richErr *errors.Error
	return errors.As(err, &richErr) && richErr.TextCode == ErrTokenExpired.TextCode
}

// IsConflictError reports whether an error carries the conflict category
func IsConflictError(err error) bool {
	var richErr *errors.Error
	return errors.As(err, &richErr) && richErr.Category == errors.CategoryConflict
}
