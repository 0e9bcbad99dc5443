package accounts

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Registrar creates password accounts and manages password changes. The
// account row and its registration bonus ledger entry are written in a
// single transaction.
type Registrar struct {
	repos     RepositoryManager
	ledger    *Ledger
	logger    Logger
	hashCost  int
	useHashid bool
}

// RegistrarOption configures a Registrar.
type RegistrarOption func(*Registrar)

// WithRegistrarLogger sets the logger.
func WithRegistrarLogger(logger Logger) RegistrarOption {
	return func(r *Registrar) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRegistrarLedger grants the registration bonus through the given
// ledger when an account is created.
func WithRegistrarLedger(ledger *Ledger) RegistrarOption {
	return func(r *Registrar) {
		r.ledger = ledger
	}
}

// WithHashCost sets the bcrypt cost used for new password hashes.
func WithHashCost(cost int) RegistrarOption {
	return func(r *Registrar) {
		r.hashCost = cost
	}
}

// WithDeterministicIDs derives account ids from the email via hashid
// instead of random UUIDs. Useful for seeded environments.
func WithDeterministicIDs() RegistrarOption {
	return func(r *Registrar) {
		r.useHashid = true
	}
}

// NewRegistrar creates a Registrar backed by the given repositories.
func NewRegistrar(repos RepositoryManager, opts ...RegistrarOption) *Registrar {
	r := &Registrar{
		repos:    repos,
		logger:   DefaultLogger(),
		hashCost: DefaultHashCost,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Register validates the payload and creates the account.
func (r *Registrar) Register(ctx context.Context, payload RegisterPayload) (*User, error) {
	if err := payload.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "invalid registration payload").
			WithCode(errors.CodeBadRequest)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user := &User{}
	err := r.repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(payload.Password, r.hashCost)
		if err != nil {
			// Wrap keeps an already rich error's category, so an
			// empty-password rejection still surfaces as validation.
			return errors.Wrap(err, errors.CategoryInternal, "failed to hash password")
		}

		user.PasswordHash = hash
		user.Email = payload.Email
		user.Phone = payload.Phone
		user.FirstName = payload.FirstName
		user.LastName = payload.LastName
		if r.useHashid {
			if id, err := hashid.NewUUID(NormalizeEmail(payload.Email)); err == nil {
				user.ID = id
			}
		}

		if user, err = r.repos.Users().CreateTx(ctx, tx, user); err != nil {
			return errors.Wrap(err, errors.CategoryConflict, "could not create user").
				WithCode(errors.CodeConflict)
		}

		if r.ledger != nil {
			if _, err := r.ledger.GrantSignupBonusTx(ctx, tx, user); err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		var richErr *errors.Error
		if errors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "user registration transaction failed")
	}

	return user, nil
}

// ChangePassword verifies the current password and stores a new hash.
func (r *Registrar) ChangePassword(ctx context.Context, userID uuid.UUID, payload ChangePasswordPayload) error {
	if err := payload.Validate(); err != nil {
		return errors.Wrap(err, errors.CategoryValidation, "invalid password change payload").
			WithCode(errors.CodeBadRequest)
	}

	user, err := r.repos.Users().GetByIdentifier(ctx, userID.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return errors.New("account not found", errors.CategoryNotFound).
				WithCode(errors.CodeNotFound)
		}
		return errors.Wrap(err, errors.CategoryInternal, "failed to load account")
	}

	if !user.HasPassword() {
		return errors.New("account has no password set", errors.CategoryValidation).
			WithCode(errors.CodeBadRequest)
	}

	if err := ComparePasswordAndHash(payload.CurrentPassword, user.PasswordHash); err != nil {
		return errors.New("current password does not match", errors.CategoryAuth).
			WithCode(errors.CodeUnauthorized)
	}

	hash, err := HashPassword(payload.NewPassword, r.hashCost)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to hash password")
	}

	if err := r.repos.Users().ResetPassword(ctx, user.ID, hash); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to store new password")
	}

	r.logger.Info("password changed for account %s", user.ID)
	return nil
}
