package accounts_test

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	accounts "github.com/texttools/go-accounts"
)

type logCall struct {
	level  string
	format string
	args   []any
}

// loggerSpy records log calls so tests can assert on non-fatal notices.
type loggerSpy struct {
	mu    sync.Mutex
	calls []logCall
}

func (l *loggerSpy) record(level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, logCall{level: level, format: format, args: args})
}

func (l *loggerSpy) Debug(format string, args ...any) { l.record("debug", format, args...) }
func (l *loggerSpy) Info(format string, args ...any)  { l.record("info", format, args...) }
func (l *loggerSpy) Warn(format string, args ...any)  { l.record("warn", format, args...) }
func (l *loggerSpy) Error(format string, args ...any) { l.record("error", format, args...) }

func (l *loggerSpy) has(level, substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.calls {
		if c.level == level && strings.Contains(c.format, substr) {
			return true
		}
	}
	return false
}

// memStore is the shared state behind the in-memory repositories.
type memStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*accounts.User
	rows  []*accounts.CoinTransaction
}

// memRepos implements accounts.RepositoryManager over memStore. RunInTx
// passes a zero transaction through; the in-memory repositories ignore it.
type memRepos struct {
	store *memStore
	users *memUsers
	coins *memCoins
}

func newMemRepos() *memRepos {
	store := &memStore{users: make(map[uuid.UUID]*accounts.User)}
	return &memRepos{
		store: store,
		users: &memUsers{store: store},
		coins: &memCoins{store: store},
	}
}

func (m *memRepos) Validate() error { return nil }
func (m *memRepos) MustValidate()   {}

func (m *memRepos) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	return f(ctx, bun.Tx{})
}

func (m *memRepos) Users() accounts.Users                       { return m.users }
func (m *memRepos) CoinTransactions() accounts.CoinTransactions { return m.coins }

// seedUser inserts an account directly into the store.
func (m *memRepos) seedUser(user *accounts.User) *accounts.User {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Role == "" {
		user.Role = accounts.RoleUser
	}
	user.EnsureStatus()
	user.Email = accounts.NormalizeEmail(user.Email)

	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.store.users[user.ID] = user
	return user
}

// memUsers overrides the read and write paths the package under test
// exercises; the rest of the embedded interface stays nil and would panic
// if a test wandered into it.
type memUsers struct {
	accounts.Users

	store *memStore

	failIncrement    error
	failTrackSuccess error
}

func notFound(key, val string) error {
	return repository.NewRecordNotFound().WithMetadata(map[string]any{key: val})
}

func (m *memUsers) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*accounts.User, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	if id, err := uuid.Parse(identifier); err == nil {
		if user, ok := m.store.users[id]; ok {
			return user, nil
		}
		return nil, notFound("identifier", identifier)
	}

	email := accounts.NormalizeEmail(identifier)
	for _, user := range m.store.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, notFound("identifier", identifier)
}

func (m *memUsers) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*accounts.User, error) {
	return m.GetByIdentifier(ctx, identifier, criteria...)
}

func (m *memUsers) GetByEmail(ctx context.Context, email string) (*accounts.User, error) {
	return m.GetByEmailTx(ctx, nil, email)
}

func (m *memUsers) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*accounts.User, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	normalized := accounts.NormalizeEmail(email)
	for _, user := range m.store.users {
		if user.Email == normalized {
			return user, nil
		}
	}
	return nil, notFound("email", normalized)
}

func (m *memUsers) GetByGoogleID(ctx context.Context, googleID string) (*accounts.User, error) {
	return m.GetByGoogleIDTx(ctx, nil, googleID)
}

func (m *memUsers) GetByGoogleIDTx(ctx context.Context, tx bun.IDB, googleID string) (*accounts.User, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	for _, user := range m.store.users {
		if user.GoogleID != "" && user.GoogleID == googleID {
			return user, nil
		}
	}
	return nil, notFound("google_id", googleID)
}

func (m *memUsers) Create(ctx context.Context, record *accounts.User, criteria ...repository.InsertCriteria) (*accounts.User, error) {
	return m.CreateTx(ctx, nil, record, criteria...)
}

func (m *memUsers) CreateTx(ctx context.Context, tx bun.IDB, record *accounts.User, criteria ...repository.InsertCriteria) (*accounts.User, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	if record.Role == "" {
		record.Role = accounts.RoleUser
	}
	record.EnsureStatus()
	record.Email = accounts.NormalizeEmail(record.Email)
	if record.DailyUsageLimit == 0 {
		record.DailyUsageLimit = 50
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	for _, existing := range m.store.users {
		if existing.Email == record.Email {
			return nil, errUniqueViolation("users.email")
		}
		if record.GoogleID != "" && existing.GoogleID == record.GoogleID {
			return nil, errUniqueViolation("users.google_id")
		}
	}

	m.store.users[record.ID] = record
	return record, nil
}

func (m *memUsers) UpdateTx(ctx context.Context, tx bun.IDB, record *accounts.User, criteria ...repository.UpdateCriteria) (*accounts.User, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	if _, ok := m.store.users[record.ID]; !ok {
		return nil, notFound("id", record.ID.String())
	}
	m.store.users[record.ID] = record
	return record, nil
}

func (m *memUsers) SetCoinsTx(ctx context.Context, tx bun.IDB, id uuid.UUID, coins int64) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	user, ok := m.store.users[id]
	if !ok {
		return notFound("id", id.String())
	}
	user.Coins = coins
	return nil
}

func (m *memUsers) IncrementDailyUsage(ctx context.Context, id uuid.UUID) error {
	return m.IncrementDailyUsageTx(ctx, nil, id)
}

func (m *memUsers) IncrementDailyUsageTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	if m.failIncrement != nil {
		return m.failIncrement
	}

	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	user, ok := m.store.users[id]
	if !ok {
		return notFound("id", id.String())
	}
	user.DailyUsageCount++
	return nil
}

func (m *memUsers) ResetDailyUsage(ctx context.Context) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	for _, user := range m.store.users {
		user.DailyUsageCount = 0
	}
	return nil
}

func (m *memUsers) TrackAttemptedLogin(ctx context.Context, user *accounts.User) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	stored, ok := m.store.users[user.ID]
	if !ok {
		return notFound("id", user.ID.String())
	}
	now := time.Now()
	stored.LoginAttempts = user.LoginAttempts + 1
	stored.LoginAttemptAt = &now
	return nil
}

func (m *memUsers) TrackSuccessfulLogin(ctx context.Context, user *accounts.User) error {
	if m.failTrackSuccess != nil {
		return m.failTrackSuccess
	}

	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	stored, ok := m.store.users[user.ID]
	if !ok {
		return notFound("id", user.ID.String())
	}
	now := time.Now()
	stored.LoggedInAt = &now
	stored.LoginAttempts = 0
	stored.LoginAttemptAt = nil
	return nil
}

func (m *memUsers) ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return m.ResetPasswordTx(ctx, nil, id, passwordHash)
}

func (m *memUsers) ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	user, ok := m.store.users[id]
	if !ok {
		return notFound("id", id.String())
	}
	user.PasswordHash = passwordHash
	user.EmailValidated = true
	return nil
}

// memCoins is an append-only in-memory coin transaction store.
type memCoins struct {
	store *memStore
}

func (m *memCoins) Record(ctx context.Context, entry *accounts.CoinTransaction) (*accounts.CoinTransaction, error) {
	return m.RecordTx(ctx, nil, entry)
}

func (m *memCoins) RecordTx(ctx context.Context, tx bun.IDB, entry *accounts.CoinTransaction) (*accounts.CoinTransaction, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	m.store.rows = append(m.store.rows, entry)
	return entry, nil
}

func (m *memCoins) LatestByUser(ctx context.Context, userID uuid.UUID) (*accounts.CoinTransaction, error) {
	return m.LatestByUserTx(ctx, nil, userID)
}

func (m *memCoins) LatestByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*accounts.CoinTransaction, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	for i := len(m.store.rows) - 1; i >= 0; i-- {
		if m.store.rows[i].UserID == userID {
			return m.store.rows[i], nil
		}
	}
	return nil, notFound("user_id", userID.String())
}

func (m *memCoins) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*accounts.CoinTransaction, error) {
	if limit <= 0 {
		limit = 50
	}

	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	var entries []*accounts.CoinTransaction
	for i := len(m.store.rows) - 1; i >= 0 && len(entries) < limit; i-- {
		if m.store.rows[i].UserID == userID {
			entries = append(entries, m.store.rows[i])
		}
	}
	return entries, nil
}

func (m *memCoins) CountByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	count := 0
	for _, row := range m.store.rows {
		if row.UserID == userID {
			count++
		}
	}
	return count, nil
}

func errUniqueViolation(constraint string) error {
	return &uniqueViolation{constraint: constraint}
}

type uniqueViolation struct {
	constraint string
}

func (e *uniqueViolation) Error() string {
	return "UNIQUE constraint failed: " + e.constraint
}
