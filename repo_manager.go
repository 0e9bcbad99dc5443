package accounts

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	Validate() error
	MustValidate()
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
	Users() Users
	CoinTransactions() CoinTransactions
}

type mngr struct {
	db               *bun.DB
	users            Users
	coinTransactions CoinTransactions
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:               db,
		users:            NewUsersRepository(db),
		coinTransactions: NewCoinTransactionsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.coinTransactions == nil {
		return errors.New("repository coinTransactions should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) CoinTransactions() CoinTransactions {
	return m.coinTransactions
}
