package social

import "github.com/goliatone/go-errors"

const (
	TextCodeProviderNotFound  = "social_provider_not_found"
	TextCodeInvalidState      = "social_invalid_state"
	TextCodeStateExpired      = "social_state_expired"
	TextCodeTokenExchangeFail = "social_token_exchange_failed"
	TextCodeUserInfoFail      = "social_user_info_failed"
	TextCodeMissingEmail      = "social_missing_email"
	TextCodeMissingSubject    = "social_missing_subject"
	TextCodeEmailNotVerified  = "social_email_not_verified"
)

// ErrProviderNotFound is returned when a requested provider is not configured.
var ErrProviderNotFound = errors.New("social provider not found", errors.CategoryNotFound).
	WithTextCode(TextCodeProviderNotFound).
	WithCode(errors.CodeNotFound)

// ErrInvalidState is returned when the OAuth state is invalid or tampered.
var ErrInvalidState = errors.New("invalid oauth state", errors.CategoryBadInput).
	WithTextCode(TextCodeInvalidState).
	WithCode(errors.CodeBadRequest)

// ErrStateExpired is returned when the OAuth state has expired.
var ErrStateExpired = errors.New("oauth state expired", errors.CategoryBadInput).
	WithTextCode(TextCodeStateExpired).
	WithCode(errors.CodeBadRequest)

// ErrTokenExchangeFailed is returned when a provider token exchange fails.
var ErrTokenExchangeFailed = errors.New("token exchange failed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExchangeFail).
	WithCode(errors.CodeUnauthorized)

// ErrUserInfoFailed is returned when fetching user info fails.
var ErrUserInfoFailed = errors.New("failed to fetch user info", errors.CategoryAuth).
	WithTextCode(TextCodeUserInfoFail).
	WithCode(errors.CodeUnauthorized)

// ErrMissingProviderEmail is returned when the provider profile carries no
// email address. Accounts are keyed by email so resolution cannot proceed;
// the caller should surface this as an upstream provider failure, not as a
// client mistake.
var ErrMissingProviderEmail = errors.New("provider profile missing email", errors.CategoryOperation).
	WithTextCode(TextCodeMissingEmail)

// ErrMissingProviderSubject is returned when the provider profile carries no
// stable subject identifier.
var ErrMissingProviderSubject = errors.New("provider profile missing subject id", errors.CategoryOperation).
	WithTextCode(TextCodeMissingSubject)

// ErrEmailNotVerified is returned when the provider reports the profile's
// email as unverified. Linking an unverified email onto an existing password
// account would let anyone claiming that address take it over.
var ErrEmailNotVerified = errors.New("provider email is not verified", errors.CategoryAuth).
	WithTextCode(TextCodeEmailNotVerified).
	WithCode(errors.CodeUnauthorized)
