package accounts_test

import (
	stderrors "errors"
	"testing"

	"github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accounts "github.com/texttools/go-accounts"
)

func TestErrorCategoriesAndCodes(t *testing.T) {
	// Authentication failures carry a 401 and the Auth category so the
	// transport layer can collapse them into one generic response.
	assert.Equal(t, errors.CategoryAuth, accounts.ErrTokenExpired.Category)
	assert.Equal(t, errors.CodeUnauthorized, accounts.ErrTokenExpired.Code)
	assert.Equal(t, errors.CategoryAuth, accounts.ErrTokenMalformed.Category)
	assert.Equal(t, errors.CodeUnauthorized, accounts.ErrTokenMalformed.Code)

	// Authorization failures are specific on purpose.
	assert.Equal(t, errors.CategoryAuthz, accounts.ErrUserBanned.Category)
	assert.Equal(t, errors.CodeForbidden, accounts.ErrUserBanned.Code)
	assert.Equal(t, errors.CategoryAuthz, accounts.ErrUserInactive.Category)
	assert.Equal(t, errors.CodeForbidden, accounts.ErrUserInactive.Code)

	// A duplicate identity is a defect, not a user error.
	assert.Equal(t, errors.CategoryInternal, accounts.ErrDuplicateIdentity.Category)
}

func TestNewInsufficientCoinsError(t *testing.T) {
	err := accounts.NewInsufficientCoinsError(3, 10)

	assert.True(t, accounts.IsInsufficientCoins(err))
	assert.False(t, accounts.IsUsageLimitExceeded(err))
	assert.Equal(t, errors.CodeBadRequest, err.Code)
	assert.Equal(t, int64(3), err.Metadata["balance"])
	assert.Equal(t, int64(10), err.Metadata["requested"])
}

func TestNewUsageLimitError(t *testing.T) {
	err := accounts.NewUsageLimitError(50, 50)

	assert.True(t, accounts.IsUsageLimitExceeded(err))
	assert.Equal(t, errors.CategoryRateLimit, err.Category)
	assert.Equal(t, 50, err.Metadata["daily_usage_count"])
	assert.Equal(t, 50, err.Metadata["daily_usage_limit"])
}

func TestIsOperational(t *testing.T) {
	assert.True(t, accounts.IsOperational(nil))
	assert.True(t, accounts.IsOperational(accounts.ErrTokenExpired))
	assert.True(t, accounts.IsOperational(accounts.NewUsageLimitError(1, 1)))

	assert.False(t, accounts.IsOperational(accounts.ErrDuplicateIdentity))
	assert.False(t, accounts.IsOperational(stderrors.New("some raw failure")))
}

func TestIsTokenExpiredError(t *testing.T) {
	assert.True(t, accounts.IsTokenExpiredError(accounts.ErrTokenExpired))
	assert.True(t, accounts.IsTokenExpiredError(stderrors.New("token is expired")))
	assert.False(t, accounts.IsTokenExpiredError(accounts.ErrTokenMalformed))
	assert.False(t, accounts.IsTokenExpiredError(nil))
}

func TestIsMalformedError(t *testing.T) {
	assert.True(t, accounts.IsMalformedError(accounts.ErrTokenMalformed))
	assert.True(t, accounts.IsMalformedError(stderrors.New("missing or malformed JWT")))
	assert.False(t, accounts.IsMalformedError(accounts.ErrTokenExpired))
	assert.False(t, accounts.IsMalformedError(nil))
}

func TestErrorsSurviveWrapping(t *testing.T) {
	wrapped := errors.Wrap(accounts.NewInsufficientCoinsError(0, 1), errors.CategoryInternal, "while charging")

	// Wrap keeps the category of an already rich error, so callers
	// can classify on the original failure rather than the wrap site.
	var richErr *errors.Error
	require.True(t, errors.As(wrapped, &richErr))
	assert.Equal(t, errors.CategoryValidation, richErr.Category)
	assert.True(t, accounts.IsInsufficientCoins(wrapped))
}
