package accounts_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"

	accounts "github.com/texttools/go-accounts"
)

func TestJWTClaims_UserID(t *testing.T) {
	t.Run("prefers the uid claim", func(t *testing.T) {
		claims := &accounts.JWTClaims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "subject-id"},
			UID:              "uid-id",
		}
		assert.Equal(t, "uid-id", claims.UserID())
	})

	t.Run("falls back to the subject", func(t *testing.T) {
		claims := &accounts.JWTClaims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "subject-id"},
		}
		assert.Equal(t, "subject-id", claims.UserID())
	})

	t.Run("empty claims yield an empty id", func(t *testing.T) {
		assert.Empty(t, (&accounts.JWTClaims{}).UserID())
	})
}

func TestJWTClaims_Roles(t *testing.T) {
	claims := &accounts.JWTClaims{UserRole: accounts.RolePremium}

	assert.Equal(t, accounts.RolePremium, claims.Role())
	assert.True(t, claims.HasRole(accounts.RolePremium))
	assert.False(t, claims.HasRole(accounts.RoleAdmin))

	assert.True(t, claims.IsAtLeast(accounts.RoleUser))
	assert.True(t, claims.IsAtLeast(accounts.RolePremium))
	assert.False(t, claims.IsAtLeast(accounts.RoleAdmin))
}

func TestJWTClaims_Timestamps(t *testing.T) {
	t.Run("returns the registered timestamps", func(t *testing.T) {
		issued := time.Now().Truncate(time.Second)
		expires := issued.Add(time.Hour)
		claims := &accounts.JWTClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				IssuedAt:  jwt.NewNumericDate(issued),
				ExpiresAt: jwt.NewNumericDate(expires),
			},
		}

		assert.True(t, claims.IssuedAt().Equal(issued))
		assert.True(t, claims.Expires().Equal(expires))
	})

	t.Run("missing timestamps are zero", func(t *testing.T) {
		claims := &accounts.JWTClaims{}

		assert.True(t, claims.IssuedAt().IsZero())
		assert.True(t, claims.Expires().IsZero())
	})
}
