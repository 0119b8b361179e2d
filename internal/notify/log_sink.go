package notify

import (
	"context"

	"github.com/sheikh-saqib/account-ledger-engine/internal/interfaces"
	"github.com/sheikh-saqib/account-ledger-engine/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LogSink writes audit records and notifications to the log instead of delivering them.
// It is the default when no broker is configured.
type LogSink struct {
	logger   *zap.Logger
	currency string
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *zap.Logger, currency string) *LogSink {
	return &LogSink{logger: logger, currency: currency}
}

func (s *LogSink) Record(_ context.Context, kind models.ChangeKind, accountID string, d models.AuditDetails) error {
	s.logger.Info("audit",
		zap.String("kind", string(kind)),
		zap.String("account_id", accountID),
		zap.String("transaction_id", d.TransactionID),
		zap.String("operation_id", d.OperationID),
		zap.String("counterparty_account_id", d.CounterpartyAccountID),
		zap.Stringer("amount", d.Amount),
		zap.Stringer("balance_before", d.BalanceBefore),
		zap.Stringer("balance_after", d.BalanceAfter),
	)
	return nil
}

func (s *LogSink) Notify(_ context.Context, account models.Account, kind models.ChangeKind, amount, balance decimal.Decimal) error {
	s.logger.Info("notification",
		zap.String("account_id", account.ID),
		zap.String("to", account.Email),
		zap.String("body", Body(kind, amount, balance, s.currency)),
	)
	return nil
}

var (
	_ interfaces.AuditSink        = (*LogSink)(nil)
	_ interfaces.NotificationSink = (*LogSink)(nil)
)
