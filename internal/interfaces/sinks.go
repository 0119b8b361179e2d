package interfaces

import (
	"context"

	"github.com/sheikh-saqib/account-ledger-engine/internal/models"
	"github.com/shopspring/decimal"
)

// AuditSink records committed balance changes. Best effort.
type AuditSink interface {
	Record(ctx context.Context, kind models.ChangeKind, accountID string, details models.AuditDetails) error
}

// NotificationSink tells an account holder about a committed balance change. Best effort.
type NotificationSink interface {
	Notify(ctx context.Context, account models.Account, kind models.ChangeKind, amount, balance decimal.Decimal) error
}
