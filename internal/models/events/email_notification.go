package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// EmailNotification is the message handed to the mail delivery queue.
type EmailNotification struct {
	ID        string          `json:"id"`
	To        string          `json:"to"`
	Subject   string          `json:"subject"`
	Body      string          `json:"body"`
	Kind      string          `json:"kind"`
	AccountID string          `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	CreatedAt time.Time       `json:"created_at"`
}
