package ledger

import (
	"context"
	"fmt"

	"github.com/sheikh-saqib/account-ledger-engine/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// afterCommit fires one audit record and one notification per committed leg.
// The calls run in their own goroutines and their failures are only logged.
func (l *Ledger) afterCommit(records []models.LedgerRecord, holders ...models.Account) {
	byID := make(map[string]models.Account, len(holders))
	for _, a := range holders {
		byID[a.ID] = a
	}

	for _, r := range records {
		tx := r.Transaction
		kind := models.ChangeKindOf(tx)
		holder := byID[tx.AccountID]
		log := l.logger.With(
			zap.String("transaction_id", tx.ID),
			zap.String("account_id", tx.AccountID),
			zap.String("kind", string(kind)),
		)
		log.Info("balance changed", zap.Stringer("balance_before", tx.BalanceBefore), zap.Stringer("balance_after", tx.BalanceAfter))

		l.spawn(log, "audit", func(ctx context.Context) error {
			return l.audit.Record(ctx, kind, tx.AccountID, models.AuditDetailsOf(tx))
		})
		l.spawn(log, "notification", func(ctx context.Context) error {
			return l.notifier.Notify(ctx, holder, kind, tx.Amount, tx.BalanceAfter)
		})
	}
}

func (l *Ledger) spawn(log *zap.Logger, what string, fn func(ctx context.Context) error) {
	l.effectsMu.Lock()
	if l.draining {
		l.effectsMu.Unlock()
		log.Warn(what + " skipped, engine is draining")
		return
	}
	l.effects.Add(1)
	l.effectsMu.Unlock()

	go func() {
		defer l.effects.Done()
		defer func() {
			if p := recover(); p != nil {
				log.Error(what+" panicked", zap.String("panic", fmt.Sprint(p)))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), l.cfg.SideEffectTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			log.Warn(what+" failed", zap.Error(err))
		}
	}()
}

// nopSink discards audit records and notifications.
type nopSink struct{}

func (nopSink) Record(context.Context, models.ChangeKind, string, models.AuditDetails) error {
	return nil
}

func (nopSink) Notify(context.Context, models.Account, models.ChangeKind, decimal.Decimal, decimal.Decimal) error {
	return nil
}
