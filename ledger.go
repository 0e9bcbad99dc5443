package accounts

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DefaultToolCost applies to tools without an explicit cost entry.
const DefaultToolCost int64 = 1

// DefaultSignupBonus is the initial coin grant on registration.
const DefaultSignupBonus int64 = 25

// Ledger is the only writer of CoinTransaction rows. Every mutation runs the
// read-compute-write-append sequence inside one transaction, serialized per
// account so concurrent calls against the same balance cannot interleave.
// Calls for distinct accounts proceed independently.
type Ledger struct {
	repos       RepositoryManager
	locks       *accountLocks
	logger      Logger
	toolCosts   map[string]int64
	defaultCost int64
	signupBonus int64
}

// LedgerOption customizes Ledger construction.
type LedgerOption func(*Ledger)

// WithLedgerLogger overrides the default logger.
func WithLedgerLogger(logger Logger) LedgerOption {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithToolCosts sets per-tool coin costs; tools not listed fall back to the
// default cost.
func WithToolCosts(costs map[string]int64, defaultCost int64) LedgerOption {
	return func(l *Ledger) {
		l.toolCosts = costs
		if defaultCost > 0 {
			l.defaultCost = defaultCost
		}
	}
}

// WithSignupBonus overrides the initial grant written on registration.
func WithSignupBonus(amount int64) LedgerOption {
	return func(l *Ledger) {
		l.signupBonus = amount
	}
}

// NewLedger creates a Ledger over the shared repositories.
func NewLedger(repos RepositoryManager, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		repos:       repos,
		locks:       newAccountLocks(),
		logger:      defLogger{},
		defaultCost: DefaultToolCost,
		signupBonus: DefaultSignupBonus,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	return l
}

// Debit removes amount coins for a metered tool invocation. If the debit
// would drive the balance below zero it fails with an insufficient coins
// error and writes nothing.
func (l *Ledger) Debit(ctx context.Context, userID uuid.UUID, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, goerrors.New("debit amount must be positive", goerrors.CategoryBadInput)
	}
	return l.mutate(ctx, userID, TransactionToolUsage, -amount, reason, false)
}

// Credit adds amount coins back to the account. No floor check applies.
func (l *Ledger) Credit(ctx context.Context, userID uuid.UUID, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, goerrors.New("credit amount must be positive", goerrors.CategoryBadInput)
	}
	return l.mutate(ctx, userID, TransactionRefund, amount, reason, true)
}

// Adjust applies an administrative delta. Adjustments bypass the
// non-negative floor: the balance may be driven to any value, and the entry
// always records the actual resulting balance.
func (l *Ledger) Adjust(ctx context.Context, userID uuid.UUID, delta int64, reason string) (int64, error) {
	if delta == 0 {
		return 0, goerrors.New("adjustment delta must not be zero", goerrors.CategoryBadInput)
	}
	return l.mutate(ctx, userID, TransactionAdminAdjustment, delta, reason, true)
}

// ChargeForTool debits the configured cost for one tool invocation.
func (l *Ledger) ChargeForTool(ctx context.Context, userID uuid.UUID, toolID string) (int64, error) {
	return l.Debit(ctx, userID, l.ToolCost(toolID), "tool: "+toolID)
}

// ToolCost returns the configured coin cost for a tool.
func (l *Ledger) ToolCost(toolID string) int64 {
	if cost, ok := l.toolCosts[toolID]; ok && cost > 0 {
		return cost
	}
	return l.defaultCost
}

// GrantSignupBonus writes the registration grant as the account's first
// ledger row.
func (l *Ledger) GrantSignupBonus(ctx context.Context, userID uuid.UUID) (int64, error) {
	if l.signupBonus <= 0 {
		return 0, nil
	}
	return l.mutate(ctx, userID, TransactionRegistrationBonus, l.signupBonus, "welcome bonus", true)
}

// GrantSignupBonusTx writes the registration grant inside an enclosing
// transaction, for callers that create the account and grant in one unit.
// The caller must hold no ledger lock for this account.
func (l *Ledger) GrantSignupBonusTx(ctx context.Context, tx bun.Tx, user *User) (int64, error) {
	if l.signupBonus <= 0 {
		return user.Coins, nil
	}

	unlock := l.locks.acquire(user.ID)
	defer unlock()

	return l.applyTx(ctx, tx, user, TransactionRegistrationBonus, l.signupBonus, "welcome bonus", true)
}

// History returns the account's ledger ordered newest first.
func (l *Ledger) History(ctx context.Context, userID uuid.UUID, limit int) ([]*CoinTransaction, error) {
	return l.repos.CoinTransactions().ListByUser(ctx, userID, limit)
}

func (l *Ledger) mutate(ctx context.Context, userID uuid.UUID, txType TransactionType, delta int64, reason string, allowNegative bool) (int64, error) {
	unlock := l.locks.acquire(userID)
	defer unlock()

	var newBalance int64
	err := l.repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := l.repos.Users().GetByIdentifierTx(ctx, tx, userID.String())
		if err != nil {
			return err
		}

		newBalance, err = l.applyTx(ctx, tx, user, txType, delta, reason, allowNegative)
		return err
	})
	if err != nil {
		return 0, err
	}

	return newBalance, nil
}

// applyTx performs the append and cached-balance write. Callers hold the
// account lock and an open transaction.
func (l *Ledger) applyTx(ctx context.Context, tx bun.Tx, user *User, txType TransactionType, delta int64, reason string, allowNegative bool) (int64, error) {
	latest, err := l.repos.CoinTransactions().LatestByUserTx(ctx, tx, user.ID)
	if err != nil && !repository.IsRecordNotFound(err) {
		return 0, err
	}

	if latest != nil && latest.BalanceAfter != user.Coins {
		l.logger.Error(
			"ledger chain mismatch for user %s: cached=%d latest_after=%d",
			user.ID, user.Coins, latest.BalanceAfter,
		)
		return 0, goerrors.New("ledger out of sync with cached balance", goerrors.CategoryInternal).
			WithMetadata(map[string]any{
				"user_id":      user.ID.String(),
				"cached":       user.Coins,
				"latest_after": latest.BalanceAfter,
			})
	}

	candidate := user.Coins + delta
	if !allowNegative && candidate < 0 {
		return 0, NewInsufficientCoinsError(user.Coins, -delta)
	}

	entry := &CoinTransaction{
		UserID:        user.ID,
		Type:          txType,
		Amount:        delta,
		BalanceBefore: user.Coins,
		BalanceAfter:  candidate,
		Reason:        reason,
		CreatedAt:     time.Now(),
	}

	if _, err := l.repos.CoinTransactions().RecordTx(ctx, tx, entry); err != nil {
		return 0, err
	}

	if err := l.repos.Users().SetCoinsTx(ctx, tx, user.ID, candidate); err != nil {
		return 0, err
	}

	user.Coins = candidate

	return candidate, nil
}

// VerifyChain checks the ledger invariants over entries ordered oldest
// first: each entry's arithmetic holds and consecutive entries chain
// balanceAfter into balanceBefore.
func VerifyChain(entries []*CoinTransaction) error {
	for i, entry := range entries {
		if entry.BalanceAfter != entry.BalanceBefore+entry.Amount {
			return goerrors.New("ledger entry arithmetic mismatch", goerrors.CategoryInternal).
				WithMetadata(map[string]any{
					"entry_id": entry.ID.String(),
					"index":    i,
				})
		}

		if i > 0 && entries[i-1].BalanceAfter != entry.BalanceBefore {
			return goerrors.New("ledger entries do not chain", goerrors.CategoryInternal).
				WithMetadata(map[string]any{
					"entry_id": entry.ID.String(),
					"index":    i,
				})
		}
	}

	return nil
}

// accountLocks serializes balance mutations per account. Entries are
// refcounted so the map does not grow with every account ever touched.
type accountLocks struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*accountLock
}

type accountLock struct {
	mu   sync.Mutex
	refs int
}

func newAccountLocks() *accountLocks {
	return &accountLocks{entries: make(map[uuid.UUID]*accountLock)}
}

func (a *accountLocks) acquire(id uuid.UUID) func() {
	a.mu.Lock()
	entry, ok := a.entries[id]
	if !ok {
		entry = &accountLock{}
		a.entries[id] = entry
	}
	entry.refs++
	a.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		a.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(a.entries, id)
		}
		a.mu.Unlock()
	}
}
