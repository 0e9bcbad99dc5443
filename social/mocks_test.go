package social_test

import (
	"context"
	"database/sql"
	"sync"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	accounts "github.com/texttools/go-accounts"
)

// fakeRepos is a minimal in-memory accounts.RepositoryManager: just enough
// surface for identity resolution and the signup bonus grant.
type fakeRepos struct {
	users *fakeUsers
	coins *fakeCoins
}

func newFakeRepos() *fakeRepos {
	mu := &sync.Mutex{}
	users := &fakeUsers{mu: mu, byID: make(map[uuid.UUID]*accounts.User)}
	coins := &fakeCoins{mu: mu}
	return &fakeRepos{users: users, coins: coins}
}

func (f *fakeRepos) Validate() error { return nil }
func (f *fakeRepos) MustValidate()   {}

func (f *fakeRepos) RunInTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx bun.Tx) error) error {
	return fn(ctx, bun.Tx{})
}

func (f *fakeRepos) Users() accounts.Users                       { return f.users }
func (f *fakeRepos) CoinTransactions() accounts.CoinTransactions { return f.coins }

func (f *fakeRepos) add(user *accounts.User) *accounts.User {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.Email = accounts.NormalizeEmail(user.Email)
	f.users.mu.Lock()
	defer f.users.mu.Unlock()
	f.users.byID[user.ID] = user
	return user
}

type fakeUsers struct {
	accounts.Users

	mu   *sync.Mutex
	byID map[uuid.UUID]*accounts.User

	failCreate error
	creates    int
	updates    int
}

func missing(key, val string) error {
	return repository.NewRecordNotFound().WithMetadata(map[string]any{key: val})
}

func (f *fakeUsers) GetByGoogleIDTx(ctx context.Context, tx bun.IDB, googleID string) (*accounts.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.byID {
		if user.GoogleID != "" && user.GoogleID == googleID {
			return user, nil
		}
	}
	return nil, missing("google_id", googleID)
}

func (f *fakeUsers) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*accounts.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	normalized := accounts.NormalizeEmail(email)
	for _, user := range f.byID {
		if user.Email == normalized {
			return user, nil
		}
	}
	return nil, missing("email", normalized)
}

func (f *fakeUsers) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*accounts.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, err := uuid.Parse(identifier)
	if err != nil {
		return nil, missing("identifier", identifier)
	}
	if user, ok := f.byID[id]; ok {
		return user, nil
	}
	return nil, missing("identifier", identifier)
}

func (f *fakeUsers) CreateTx(ctx context.Context, tx bun.IDB, record *accounts.User, criteria ...repository.InsertCriteria) (*accounts.User, error) {
	if f.failCreate != nil {
		return nil, f.failCreate
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.creates++
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.Email = accounts.NormalizeEmail(record.Email)
	f.byID[record.ID] = record
	return record, nil
}

func (f *fakeUsers) UpdateTx(ctx context.Context, tx bun.IDB, record *accounts.User, criteria ...repository.UpdateCriteria) (*accounts.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.byID[record.ID]; !ok {
		return nil, missing("id", record.ID.String())
	}
	f.updates++
	f.byID[record.ID] = record
	return record, nil
}

func (f *fakeUsers) SetCoinsTx(ctx context.Context, tx bun.IDB, id uuid.UUID, coins int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.byID[id]
	if !ok {
		return missing("id", id.String())
	}
	user.Coins = coins
	return nil
}

type fakeCoins struct {
	mu   *sync.Mutex
	rows []*accounts.CoinTransaction
}

func (f *fakeCoins) Record(ctx context.Context, entry *accounts.CoinTransaction) (*accounts.CoinTransaction, error) {
	return f.RecordTx(ctx, nil, entry)
}

func (f *fakeCoins) RecordTx(ctx context.Context, tx bun.IDB, entry *accounts.CoinTransaction) (*accounts.CoinTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	f.rows = append(f.rows, entry)
	return entry, nil
}

func (f *fakeCoins) LatestByUser(ctx context.Context, userID uuid.UUID) (*accounts.CoinTransaction, error) {
	return f.LatestByUserTx(ctx, nil, userID)
}

func (f *fakeCoins) LatestByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*accounts.CoinTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := len(f.rows) - 1; i >= 0; i-- {
		if f.rows[i].UserID == userID {
			return f.rows[i], nil
		}
	}
	return nil, missing("user_id", userID.String())
}

func (f *fakeCoins) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*accounts.CoinTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var entries []*accounts.CoinTransaction
	for i := len(f.rows) - 1; i >= 0; i-- {
		if f.rows[i].UserID == userID {
			entries = append(entries, f.rows[i])
		}
	}
	return entries, nil
}

func (f *fakeCoins) CountByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, row := range f.rows {
		if row.UserID == userID {
			count++
		}
	}
	return count, nil
}
