package interfaces

import (
	"context"
	"errors"

	"github.com/sheikh-saqib/account-ledger-engine/internal/models"
	"github.com/shopspring/decimal"
)

// ErrStorage wraps every failure of the underlying store.
var ErrStorage = errors.New("ledger storage failure")

// LedgerStore persists ledger transactions and balance entries.
// The only write path is Scope.AppendAll inside RunInTx.
type LedgerStore interface {
	// RunInTx runs fn inside one storage transaction. The transaction commits if fn
	// returns nil and rolls back otherwise; no partial writes ever become visible.
	RunInTx(ctx context.Context, fn func(ctx context.Context, scope Scope) error) error

	// ListTransactions returns one page of the account's transactions, newest first,
	// and the total number of matching transactions.
	ListTransactions(ctx context.Context, q models.TransactionQuery) ([]models.LedgerTransaction, int, error)

	// Entries returns the account's balance chain, oldest first.
	Entries(ctx context.Context, accountID string) ([]models.BalanceEntry, error)

	// LatestBalance reads the last committed balance outside any transaction.
	LatestBalance(ctx context.Context, accountID string) (decimal.Decimal, error)
}

// Scope is the ambient storage transaction handed to RunInTx callbacks.
type Scope interface {
	// LatestBalance returns BalanceAfter of the account's most recent entry,
	// including entries appended earlier in this scope, or zero.
	LatestBalance(ctx context.Context, accountID string) (decimal.Decimal, error)

	// LatestEntry returns the account's most recent entry as seen by this scope.
	// ok is false when the account has no entries yet. New entries must be stamped
	// after the returned CreatedAt, whatever the local clock says.
	LatestEntry(ctx context.Context, accountID string) (entry models.BalanceEntry, ok bool, err error)

	// AppendAll writes one or two transaction+entry pairs.
	AppendAll(ctx context.Context, records ...models.LedgerRecord) error
}
