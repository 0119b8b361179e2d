package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceChanged is published to the audit stream once per committed ledger leg.
type BalanceChanged struct {
	EventID               string          `json:"event_id"`
	Kind                  string          `json:"kind"`
	AccountID             string          `json:"account_id"`
	TransactionID         string          `json:"transaction_id"`
	OperationID           string          `json:"operation_id"`
	CounterpartyAccountID string          `json:"counterparty_account_id,omitempty"`
	Amount                decimal.Decimal `json:"amount"`
	BalanceBefore         decimal.Decimal `json:"balance_before"`
	BalanceAfter          decimal.Decimal `json:"balance_after"`
	OccurredAt            time.Time       `json:"occurred_at"`
}
