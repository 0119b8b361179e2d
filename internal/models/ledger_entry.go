package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BalanceEntry is one link of an account's balance chain.
// The current balance of an account is the BalanceAfter of its latest entry.
type BalanceEntry struct {
	ID            string          `json:"id"`
	AccountID     string          `json:"account_id"`
	TransactionID string          `json:"transaction_id"` // owning LedgerTransaction
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	CreatedAt     time.Time       `json:"created_at"`
}

// LedgerRecord is one leg of a mutation: the transaction and the entry it produced.
type LedgerRecord struct {
	Transaction LedgerTransaction
	Entry       BalanceEntry
}

// Consistent reports whether the entry belongs to the transaction and carries the same balances.
func (r LedgerRecord) Consistent() bool {
	tx, e := r.Transaction, r.Entry
	return tx.ID != "" && e.ID != "" &&
		e.TransactionID == tx.ID &&
		e.AccountID == tx.AccountID &&
		e.BalanceBefore.Equal(tx.BalanceBefore) &&
		e.BalanceAfter.Equal(tx.BalanceAfter) &&
		e.CreatedAt.Equal(tx.CreatedAt)
}

// ErrInvalidRecords is returned for an AppendAll batch that is structurally broken.
var ErrInvalidRecords = errors.New("invalid ledger records")

// ValidateBatch checks the shape of an AppendAll batch: one or two consistent legs.
// It never checks balance arithmetic; that is the engine's job.
func ValidateBatch(records []LedgerRecord) error {
	if len(records) == 0 || len(records) > 2 {
		return fmt.Errorf("%w: expected 1 or 2 records, got %d", ErrInvalidRecords, len(records))
	}
	for _, r := range records {
		if !r.Consistent() {
			return fmt.Errorf("%w: entry %s does not match transaction %s", ErrInvalidRecords, r.Entry.ID, r.Transaction.ID)
		}
	}
	return nil
}
