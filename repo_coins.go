package accounts

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CoinTransactions persists ledger rows. Entries are append-only: there is
// deliberately no update or delete surface.
type CoinTransactions interface {
	Record(ctx context.Context, entry *CoinTransaction) (*CoinTransaction, error)
	RecordTx(ctx context.Context, tx bun.IDB, entry *CoinTransaction) (*CoinTransaction, error)
	LatestByUser(ctx context.Context, userID uuid.UUID) (*CoinTransaction, error)
	LatestByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*CoinTransaction, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*CoinTransaction, error)
	CountByUser(ctx context.Context, userID uuid.UUID) (int, error)
}

type coinTransactions struct {
	db *bun.DB
}

var _ CoinTransactions = (*coinTransactions)(nil)

func NewCoinTransactionsRepository(db *bun.DB) CoinTransactions {
	return &coinTransactions{db: db}
}

func (r *coinTransactions) Record(ctx context.Context, entry *CoinTransaction) (*CoinTransaction, error) {
	return r.RecordTx(ctx, r.db, entry)
}

func (r *coinTransactions) RecordTx(ctx context.Context, tx bun.IDB, entry *CoinTransaction) (*CoinTransaction, error) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	_, err := tx.NewInsert().
		Model(entry).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	return entry, nil
}

func (r *coinTransactions) LatestByUser(ctx context.Context, userID uuid.UUID) (*CoinTransaction, error) {
	return r.LatestByUserTx(ctx, r.db, userID)
}

// LatestByUserTx returns the newest entry for the account, or a record not
// found error when the ledger has no rows yet.
func (r *coinTransactions) LatestByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*CoinTransaction, error) {
	entry := &CoinTransaction{}
	err := tx.NewSelect().
		Model(entry).
		Where("?TableAlias.user_id = ?", userID).
		OrderExpr("?TableAlias.created_at DESC").
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"user_id": userID.String()})
		}
		return nil, err
	}

	return entry, nil
}

func (r *coinTransactions) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*CoinTransaction, error) {
	if limit <= 0 {
		limit = 50
	}

	var entries []*CoinTransaction
	err := r.db.NewSelect().
		Model(&entries).
		Where("?TableAlias.user_id = ?", userID).
		OrderExpr("?TableAlias.created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return entries, nil
}

func (r *coinTransactions) CountByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	return r.db.NewSelect().
		Model((*CoinTransaction)(nil)).
		Where("?TableAlias.user_id = ?", userID).
		Count(ctx)
}
