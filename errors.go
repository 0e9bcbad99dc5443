package accounts

import (
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	// TextCodeTokenExpired tags verification failures past expiry
	TextCodeTokenExpired = "AUTH_TOKEN_EXPIRED"
	// TextCodeTokenMalformed tags structurally invalid or tampered tokens
	TextCodeTokenMalformed = "AUTH_TOKEN_MALFORMED"
	// TextCodeUserBanned tags requests from banned accounts
	TextCodeUserBanned = "ACCOUNT_BANNED"
	// TextCodeUserInactive tags requests from unverified accounts
	TextCodeUserInactive = "ACCOUNT_INACTIVE"
	// TextCodeInsufficientCoins tags debits that would go below zero
	TextCodeInsufficientCoins = "INSUFFICIENT_COINS"
	// TextCodeUsageLimitExceeded tags requests past the daily usage cap
	TextCodeUsageLimitExceeded = "USAGE_LIMIT_EXCEEDED"
	// TextCodeDuplicateIdentity tags an identity uniqueness violation. This
	// is a defect: resolver serialization should make it unreachable.
	TextCodeDuplicateIdentity = "DUPLICATE_IDENTITY"
	// TextCodeTooManyAttempts tags logins blocked by the attempt cooldown
	TextCodeTooManyAttempts = "TOO_MANY_LOGIN_ATTEMPTS"
	// TextCodeIdentityNotFound tags lookups for accounts that do not exist
	TextCodeIdentityNotFound = "IDENTITY_NOT_FOUND"
)

// ErrTokenExpired is returned when a session token is past its expiry.
var ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed is returned for tokens with a bad structure or signature.
var ErrTokenMalformed = errors.New("token is malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrUserBanned is returned when a banned account presents a valid token.
var ErrUserBanned = errors.New("account has been banned", errors.CategoryAuthz).
	WithTextCode(TextCodeUserBanned).
	WithCode(errors.CodeForbidden)

// ErrUserInactive is returned for accounts that never verified their email.
var ErrUserInactive = errors.New("account is inactive, please verify your email", errors.CategoryAuthz).
	WithTextCode(TextCodeUserInactive).
	WithCode(errors.CodeForbidden)

// ErrDuplicateIdentity marks a broken uniqueness invariant on provider id or
// email. Treated as a defect, not a recoverable condition.
var ErrDuplicateIdentity = errors.New("duplicate account identity", errors.CategoryInternal).
	WithTextCode(TextCodeDuplicateIdentity).
	WithCode(errors.CodeInternal)

// ErrTooManyLoginAttempts is returned when an account exceeds the login
// attempt budget inside the cooldown window.
var ErrTooManyLoginAttempts = errors.New("too many login attempts", errors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts)

// ErrIdentityNotFound is returned when no account matches an identifier.
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
	WithTextCode(TextCodeIdentityNotFound).
	WithCode(errors.CodeNotFound)

// NewInsufficientCoinsError reports a rejected debit together with the
// balance the client needs to react (e.g. prompt a top-up).
func NewInsufficientCoinsError(balance, requested int64) *errors.Error {
	return errors.New("insufficient coins", errors.CategoryValidation).
		WithTextCode(TextCodeInsufficientCoins).
		WithCode(errors.CodeBadRequest).
		WithMetadata(map[string]any{
			"balance":   balance,
			"requested": requested,
		})
}

// NewUsageLimitError reports an exhausted daily quota with the current
// count and limit.
func NewUsageLimitError(count, limit int) *errors.Error {
	return errors.New("daily usage limit exceeded", errors.CategoryRateLimit).
		WithTextCode(TextCodeUsageLimitExceeded).
		WithMetadata(map[string]any{
			"daily_usage_count": count,
			"daily_usage_limit": limit,
		})
}

// IsInsufficientCoins checks for rejected debits
func IsInsufficientCoins(err error) bool {
	return hasTextCode(err, TextCodeInsufficientCoins)
}

// IsUsageLimitExceeded checks for exhausted daily quotas
func IsUsageLimitExceeded(err error) bool {
	return hasTextCode(err, TextCodeUsageLimitExceeded)
}

// IsOperational reports whether err represents an expected, user-facing
// failure. Non-operational errors are defects: logged verbosely and masked
// from clients outside of diagnostic mode.
func IsOperational(err error) bool {
	if err == nil {
		return true
	}

	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}

	return richErr.Category != errors.CategoryInternal
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if hasTextCode(err, TextCodeTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if hasTextCode(err, TextCodeTokenMalformed) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
