package models

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the kind of balance-affecting intent a LedgerTransaction records.
type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal TransactionType = "WITHDRAWAL"
	TransactionTypeTransfer   TransactionType = "TRANSFER"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal, TransactionTypeTransfer:
		return true
	}
	return false
}

// TransactionStatus is the outcome of a LedgerTransaction.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// LedgerTransaction is the immutable record of one balance-affecting intent and its outcome.
// A transfer is stored as two LedgerTransactions (one per leg) sharing OperationID.
type LedgerTransaction struct {
	ID                    string            `json:"id"`
	OperationID           string            `json:"operation_id"`
	AccountID             string            `json:"account_id"`
	Type                  TransactionType   `json:"type"`
	Amount                decimal.Decimal   `json:"amount"` // always positive, 2 decimal places
	Status                TransactionStatus `json:"status"`
	Description           string            `json:"description"`
	CounterpartyAccountID string            `json:"counterparty_account_id,omitempty"` // only for TRANSFER
	BalanceBefore         decimal.Decimal   `json:"balance_before"`
	BalanceAfter          decimal.Decimal   `json:"balance_after"`
	CreatedAt             time.Time         `json:"created_at"`
}

// SignedAmount is the amount as applied to the account: positive for deposits and
// incoming transfers, negative for withdrawals and outgoing transfers.
func (t LedgerTransaction) SignedAmount() decimal.Decimal {
	switch t.Type {
	case TransactionTypeDeposit:
		return t.Amount
	case TransactionTypeWithdrawal:
		return t.Amount.Neg()
	}
	if t.BalanceAfter.LessThan(t.BalanceBefore) {
		return t.Amount.Neg()
	}
	return t.Amount
}

// TransactionQuery selects a page of an account's transactions.
type TransactionQuery struct {
	AccountID string
	Page      int
	Limit     int
	Type      *TransactionType // nil means all types
}

// Offset is the number of rows skipped before the requested page. Pages too far out
// to address saturate at math.MaxInt, which selects nothing.
func (q TransactionQuery) Offset() int {
	if q.Page < 1 || q.Limit < 1 {
		return 0
	}
	if q.Page-1 > math.MaxInt/q.Limit {
		return math.MaxInt
	}
	return (q.Page - 1) * q.Limit
}

// TransactionPage is one page of an account's history, newest first.
type TransactionPage struct {
	Transactions []LedgerTransaction `json:"transactions"`
	Total        int                 `json:"total"`
	Page         int                 `json:"page"`
	Limit        int                 `json:"limit"`
}
