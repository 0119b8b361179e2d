package models

import "github.com/shopspring/decimal"

// ChangeKind names a committed balance change for audit and notification consumers.
type ChangeKind string

const (
	ChangeDeposit     ChangeKind = "DEPOSIT"
	ChangeWithdrawal  ChangeKind = "WITHDRAWAL"
	ChangeTransferOut ChangeKind = "TRANSFER_OUT"
	ChangeTransferIn  ChangeKind = "TRANSFER_IN"
)

// ChangeKindOf derives the change kind of a committed leg.
func ChangeKindOf(tx LedgerTransaction) ChangeKind {
	switch tx.Type {
	case TransactionTypeDeposit:
		return ChangeDeposit
	case TransactionTypeWithdrawal:
		return ChangeWithdrawal
	}
	if tx.SignedAmount().IsNegative() {
		return ChangeTransferOut
	}
	return ChangeTransferIn
}

// AuditDetails describes one committed balance change.
type AuditDetails struct {
	TransactionID         string
	OperationID           string
	CounterpartyAccountID string
	Amount                decimal.Decimal
	BalanceBefore         decimal.Decimal
	BalanceAfter          decimal.Decimal
}

// AuditDetailsOf builds the audit details of a committed leg.
func AuditDetailsOf(tx LedgerTransaction) AuditDetails {
	return AuditDetails{
		TransactionID:         tx.ID,
		OperationID:           tx.OperationID,
		CounterpartyAccountID: tx.CounterpartyAccountID,
		Amount:                tx.Amount,
		BalanceBefore:         tx.BalanceBefore,
		BalanceAfter:          tx.BalanceAfter,
	}
}
