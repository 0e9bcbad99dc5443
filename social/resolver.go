package social

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	accounts "github.com/texttools/go-accounts"
)

// DefaultAvatarPrefixes identify avatar URLs that were sourced from a
// provider rather than uploaded by the user. Only avatars matching one of
// these prefixes (or blank avatars) are overwritten on subsequent logins.
var DefaultAvatarPrefixes = []string{
	"https://lh3.googleusercontent.com/",
	"https://lh4.googleusercontent.com/",
	"https://lh5.googleusercontent.com/",
}

// Result contains the resolved account and resolution metadata.
type Result struct {
	User      *accounts.User
	IsNewUser bool
	Linked    bool
}

// Resolver maps a federated provider profile to the single canonical
// account it belongs to, creating the account on first login.
//
// Resolution order, first match wins:
//  1. by provider id: refresh stored tokens and provider-sourced avatar
//  2. by email: link the provider id onto the existing account
//  3. create a new account from the profile
//
// Calls for the same provider id or email are serialized in-process so two
// near-simultaneous first-time callbacks cannot race past the existence
// check and create two accounts.
type Resolver struct {
	repos          accounts.RepositoryManager
	ledger         *accounts.Ledger
	logger         accounts.Logger
	avatarPrefixes []string
	locks          *keyLocks
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithResolverLogger sets the logger used for non-fatal resolution notices.
func WithResolverLogger(logger accounts.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithSignupLedger grants the registration bonus through the given ledger
// when a new account is created.
func WithSignupLedger(ledger *accounts.Ledger) ResolverOption {
	return func(r *Resolver) {
		r.ledger = ledger
	}
}

// WithAvatarPrefixes overrides the URL prefixes that mark an avatar as
// provider-sourced and therefore safe to overwrite.
func WithAvatarPrefixes(prefixes ...string) ResolverOption {
	return func(r *Resolver) {
		if len(prefixes) > 0 {
			r.avatarPrefixes = prefixes
		}
	}
}

// NewResolver creates a Resolver backed by the given repositories.
func NewResolver(repos accounts.RepositoryManager, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		repos:          repos,
		avatarPrefixes: DefaultAvatarPrefixes,
		locks:          newKeyLocks(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

// Resolve finds or creates the account for the given provider profile and
// stores the session tokens on it. Repeated callbacks for the same provider
// identity always return the same account.
func (r *Resolver) Resolve(ctx context.Context, profile *Profile, token *Token) (*Result, error) {
	if profile == nil {
		return nil, ErrUserInfoFailed
	}
	if profile.ProviderUserID == "" {
		return nil, ErrMissingProviderSubject.Clone().WithMetadata(map[string]any{
			"provider": profile.Provider,
		})
	}
	if profile.Email == "" {
		return nil, ErrMissingProviderEmail.Clone().WithMetadata(map[string]any{
			"provider":    profile.Provider,
			"provider_id": profile.ProviderUserID,
		})
	}
	if !profile.EmailVerified {
		// An unverified address must never link onto or create an
		// account; anyone can claim an address they do not own.
		return nil, ErrEmailNotVerified.Clone().WithMetadata(map[string]any{
			"provider":    profile.Provider,
			"provider_id": profile.ProviderUserID,
			"email":       profile.Email,
		})
	}

	email := accounts.NormalizeEmail(profile.Email)

	// Lock the provider id and the email, always in that order so two
	// resolutions can never deadlock against each other.
	unlockID := r.locks.acquire("provider:" + profile.ProviderUserID)
	defer unlockID()
	unlockEmail := r.locks.acquire("email:" + email)
	defer unlockEmail()

	var result *Result
	err := r.repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		result, err = r.resolveTx(ctx, tx, profile, email, token)
		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *Resolver) resolveTx(ctx context.Context, tx bun.Tx, profile *Profile, email string, token *Token) (*Result, error) {
	users := r.repos.Users()

	existing, err := users.GetByGoogleIDTx(ctx, tx, profile.ProviderUserID)
	if err == nil && existing != nil {
		if err := r.refreshExisting(ctx, tx, existing, profile, token); err != nil {
			return nil, err
		}
		return &Result{User: existing}, nil
	}
	if err != nil && !repository.IsRecordNotFound(err) {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to look up account by provider id")
	}

	byEmail, err := users.GetByEmailTx(ctx, tx, email)
	if err == nil && byEmail != nil {
		if err := r.linkExisting(ctx, tx, byEmail, profile, token); err != nil {
			return nil, err
		}
		return &Result{User: byEmail, Linked: true}, nil
	}
	if err != nil && !repository.IsRecordNotFound(err) {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to look up account by email")
	}

	created, err := r.createFromProfile(ctx, tx, profile, email, token)
	if err != nil {
		return nil, err
	}

	return &Result{User: created, IsNewUser: true}, nil
}

// refreshExisting handles a repeat login for an already federated account.
// Only session tokens and a provider-sourced avatar are touched.
func (r *Resolver) refreshExisting(ctx context.Context, tx bun.Tx, user *accounts.User, profile *Profile, token *Token) error {
	applyTokens(user, token)

	if profile.AvatarURL != "" && r.shouldReplaceAvatar(user.ProfilePicture) {
		user.ProfilePicture = profile.AvatarURL
	}

	return r.updateUser(ctx, tx, user)
}

// linkExisting attaches the provider identity to an account that was found
// by email. The password hash, role, and non-blank profile fields stay as
// they are.
func (r *Resolver) linkExisting(ctx context.Context, tx bun.Tx, user *accounts.User, profile *Profile, token *Token) error {
	user.GoogleID = profile.ProviderUserID
	if profile.EmailVerified {
		user.EmailValidated = true
	}
	applyTokens(user, token)

	first, last := splitName(profile)
	if user.FirstName == "" {
		user.FirstName = first
	}
	if user.LastName == "" {
		user.LastName = last
	}
	if user.DisplayName == "" {
		user.DisplayName = profile.Name
	}
	if user.Locale == "" {
		user.Locale = profile.Locale
	}

	if profile.AvatarURL != "" && r.shouldReplaceAvatar(user.ProfilePicture) {
		user.ProfilePicture = profile.AvatarURL
	}

	if r.logger != nil {
		r.logger.Info("linked %s identity to existing account %s", profile.Provider, user.ID)
	}

	return r.updateUser(ctx, tx, user)
}

func (r *Resolver) createFromProfile(ctx context.Context, tx bun.Tx, profile *Profile, email string, token *Token) (*accounts.User, error) {
	first, last := splitName(profile)

	user := &accounts.User{
		Email:          email,
		EmailValidated: profile.EmailVerified,
		GoogleID:       profile.ProviderUserID,
		Role:           accounts.RoleUser,
		Status:         accounts.UserStatusActive,
		FirstName:      first,
		LastName:       last,
		DisplayName:    profile.Name,
		ProfilePicture: profile.AvatarURL,
		Locale:         profile.Locale,
	}
	applyTokens(user, token)

	created, err := r.repos.Users().CreateTx(ctx, tx, user)
	if err != nil {
		if isUniqueViolation(err) {
			// The serialization above should make this unreachable; a
			// duplicate here means the locking discipline was bypassed.
			return nil, accounts.ErrDuplicateIdentity.Clone().WithMetadata(map[string]any{
				"provider":    profile.Provider,
				"provider_id": profile.ProviderUserID,
			})
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to create account from provider profile")
	}

	if r.ledger != nil {
		if _, err := r.ledger.GrantSignupBonusTx(ctx, tx, created); err != nil {
			return nil, err
		}
	}

	return created, nil
}

func (r *Resolver) updateUser(ctx context.Context, tx bun.Tx, user *accounts.User) error {
	now := time.Now()
	user.UpdatedAt = &now
	_, err := r.repos.Users().UpdateTx(ctx, tx, user, repository.UpdateByID(user.ID.String()))
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to update account from provider profile")
	}
	return nil
}

func (r *Resolver) shouldReplaceAvatar(current string) bool {
	if current == "" {
		return true
	}
	for _, prefix := range r.avatarPrefixes {
		if strings.HasPrefix(current, prefix) {
			return true
		}
	}
	return false
}

// applyTokens stores the session tokens on the account. The refresh token
// is only replaced when the provider sent a new one; providers omit it on
// repeat authorizations.
func applyTokens(user *accounts.User, token *Token) {
	if token == nil {
		return
	}

	user.GoogleAccessToken = token.AccessToken
	if token.RefreshToken != "" {
		user.GoogleRefreshToken = token.RefreshToken
	}
	if !token.ExpiresAt.IsZero() {
		expiry := token.ExpiresAt
		user.GoogleTokenExpiry = &expiry
	}
}

func splitName(profile *Profile) (string, string) {
	if profile.FirstName != "" || profile.LastName != "" {
		return profile.FirstName, profile.LastName
	}
	if profile.Name == "" {
		return "", ""
	}
	parts := strings.SplitN(profile.Name, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

// keyLocks serializes resolution per provider id and per email. Entries are
// refcounted so the map does not grow with every identity ever seen.
type keyLocks struct {
	mu      sync.Mutex
	entries map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{entries: make(map[string]*keyLock)}
}

func (k *keyLocks) acquire(key string) func() {
	k.mu.Lock()
	entry, ok := k.entries[key]
	if !ok {
		entry = &keyLock{}
		k.entries[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
