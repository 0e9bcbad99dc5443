package accounts

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// MaxLoginAttempts is the maximum number of attempts a user gets
// in a period
var MaxLoginAttempts = 5

// CoolDownPeriod is the period in which we enforce a cool down
var CoolDownPeriod = "24h"

// Authenticator handles password logins: it verifies credentials, applies
// the attempt cooldown, checks account status, and issues a session token.
type Authenticator struct {
	users  Users
	tokens TokenService
	logger Logger
}

// NewAuthenticator creates an Authenticator over the given stores.
func NewAuthenticator(users Users, tokens TokenService) *Authenticator {
	return &Authenticator{
		users:  users,
		tokens: tokens,
		logger: DefaultLogger(),
	}
}

// WithLogger sets the logger.
func (a *Authenticator) WithLogger(logger Logger) *Authenticator {
	if logger != nil {
		a.logger = logger
	}
	return a
}

// Login verifies the credentials and returns a signed session token with
// the authenticated account. A missing account and a wrong password both
// surface as ErrMismatchedHashAndPassword so the response does not reveal
// which one it was.
func (a *Authenticator) Login(ctx context.Context, identifier, password string) (string, *User, error) {
	user, err := a.VerifyIdentity(ctx, identifier, password)
	if err != nil {
		return "", nil, err
	}

	token, err := a.tokens.Generate(user.ID, user.Role)
	if err != nil {
		return "", nil, err
	}

	return token, user, nil
}

// VerifyIdentity will find the user, compare the password, and return the
// account when the credentials check out.
func (a *Authenticator) VerifyIdentity(ctx context.Context, identifier, password string) (*User, error) {
	user, err := a.users.GetByIdentifier(ctx, identifier)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrMismatchedHashAndPassword
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve user during verification")
	}

	if err := ensureAuthenticatableUser(user); err != nil {
		return nil, err
	}

	if user.LoginAttemptAt != nil {
		expired, err := IsOutsideThresholdPeriod(*user.LoginAttemptAt, CoolDownPeriod)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to calculate login attempt cooldown")
		}

		if expired {
			user.LoginAttempts = 0
		}
	}

	// if we have too many attempts in the given window, cool off!
	if user.LoginAttempts > MaxLoginAttempts {
		return nil, ErrTooManyLoginAttempts
	}

	if !user.HasPassword() {
		// Federated-only account; there is no hash to compare against.
		return nil, ErrMismatchedHashAndPassword
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		// increment the login_attempts counter and login_attempt_at
		if err2 := a.users.TrackAttemptedLogin(ctx, user); err2 != nil {
			return nil, errors.Wrap(err2, errors.CategoryInternal, "failed to track login attempt")
		}

		return nil, ErrMismatchedHashAndPassword
	}

	// reset the login_attempts counter and login_attempt_at
	if err := a.users.TrackSuccessfulLogin(ctx, user); err != nil {
		a.logger.Error("failed to track successful login: %v", err)
	}

	return user, nil
}

func ensureAuthenticatableUser(user *User) error {
	if user == nil {
		return ErrIdentityNotFound
	}

	user.EnsureStatus()
	if err := StatusAuthError(user.Status); err != nil {
		return err
	}

	return nil
}
