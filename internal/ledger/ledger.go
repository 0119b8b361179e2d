// Package ledger is the transaction engine: it turns deposit, withdrawal and transfer
// requests into balance-chain entries.
//
// Every mutation runs the same protocol: validate, lock the involved accounts in
// canonical order, read the latest balances inside one storage transaction, compute,
// append all legs at once, commit, release. Audit and notification calls happen only
// after the commit and can never fail the operation.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sheikh-saqib/account-ledger-engine/internal/interfaces"
	"github.com/sheikh-saqib/account-ledger-engine/internal/locks"
	"github.com/sheikh-saqib/account-ledger-engine/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// Config holds the engine limits.
type Config struct {
	// MaxAmount is the largest amount a single operation may move.
	MaxAmount decimal.Decimal
	// SideEffectTimeout bounds each post-commit audit or notification call.
	SideEffectTimeout time.Duration
}

// DefaultConfig returns the limits used when none are configured.
func DefaultConfig() Config {
	return Config{
		MaxAmount:         decimal.NewFromInt(1_000_000),
		SideEffectTimeout: 10 * time.Second,
	}
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithConfig overrides the default limits. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(l *Ledger) {
		if cfg.MaxAmount.IsPositive() {
			l.cfg.MaxAmount = cfg.MaxAmount
		}
		if cfg.SideEffectTimeout > 0 {
			l.cfg.SideEffectTimeout = cfg.SideEffectTimeout
		}
	}
}

// WithAuditSink sets where committed balance changes are recorded.
func WithAuditSink(s interfaces.AuditSink) Option {
	return func(l *Ledger) { l.audit = s }
}

// WithNotificationSink sets who tells account holders about committed changes.
func WithNotificationSink(s interfaces.NotificationSink) Option {
	return func(l *Ledger) { l.notifier = s }
}

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.clock = newClock(now) }
}

// Ledger is the transaction engine.
type Ledger struct {
	store    interfaces.LedgerStore
	locker   interfaces.LockCoordinator
	accounts interfaces.AccountResolver
	audit    interfaces.AuditSink
	notifier interfaces.NotificationSink
	logger   *zap.Logger
	clock    *clock
	cfg      Config

	effects   sync.WaitGroup // in-flight post-commit calls
	effectsMu sync.Mutex     // orders effects.Add against draining
	draining  bool
}

// NewLedger creates an engine over the given store, lock coordinator and account resolver.
func NewLedger(store interfaces.LedgerStore, locker interfaces.LockCoordinator, accounts interfaces.AccountResolver, opts ...Option) *Ledger {
	l := &Ledger{
		store:    store,
		locker:   locker,
		accounts: accounts,
		audit:    nopSink{},
		notifier: nopSink{},
		logger:   zap.NewNop(),
		clock:    newClock(nil),
		cfg:      DefaultConfig(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.Named("ledger")
	return l
}

// Deposit credits amount to the account.
func (l *Ledger) Deposit(ctx context.Context, accountID string, amount decimal.Decimal, description string) (models.LedgerTransaction, error) {
	amount, err := l.validateAmount(amount)
	if err != nil {
		return models.LedgerTransaction{}, err
	}
	acc, err := l.resolveActive(ctx, accountID)
	if err != nil {
		return models.LedgerTransaction{}, err
	}

	records, err := l.commit(ctx, []string{acc.ID}, func(ctx context.Context, scope interfaces.Scope) ([]models.LedgerRecord, error) {
		b0, last, err := head(ctx, scope, acc.ID)
		if err != nil {
			return nil, err
		}
		opID := uuid.NewString()
		rec := l.newRecord(opID, opID, acc.ID, "", models.TransactionTypeDeposit, amount,
			orDefault(description, "Deposit"), b0, b0.Add(amount), last)
		return []models.LedgerRecord{rec}, nil
	})
	if err != nil {
		l.logger.Info("deposit rejected", zap.String("account_id", acc.ID), zap.Stringer("amount", amount), zap.Error(err))
		return models.LedgerTransaction{}, err
	}

	l.afterCommit(records, acc)
	return records[0].Transaction, nil
}

// Withdraw debits amount from the account unless that would overdraw it.
func (l *Ledger) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal, description string) (models.LedgerTransaction, error) {
	amount, err := l.validateAmount(amount)
	if err != nil {
		return models.LedgerTransaction{}, err
	}
	acc, err := l.resolveActive(ctx, accountID)
	if err != nil {
		return models.LedgerTransaction{}, err
	}

	records, err := l.commit(ctx, []string{acc.ID}, func(ctx context.Context, scope interfaces.Scope) ([]models.LedgerRecord, error) {
		b0, last, err := head(ctx, scope, acc.ID)
		if err != nil {
			return nil, err
		}
		b1 := b0.Sub(amount)
		if b1.IsNegative() {
			return nil, fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientFunds, b0, amount)
		}
		opID := uuid.NewString()
		rec := l.newRecord(opID, opID, acc.ID, "", models.TransactionTypeWithdrawal, amount,
			orDefault(description, "Withdrawal"), b0, b1, last)
		return []models.LedgerRecord{rec}, nil
	})
	if err != nil {
		l.logger.Info("withdrawal rejected", zap.String("account_id", acc.ID), zap.Stringer("amount", amount), zap.Error(err))
		return models.LedgerTransaction{}, err
	}

	l.afterCommit(records, acc)
	return records[0].Transaction, nil
}

// Transfer moves amount from the sender to the account registered under recipientEmail.
// Both legs are written together or not at all; the sender's leg is returned.
func (l *Ledger) Transfer(ctx context.Context, senderID, recipientEmail string, amount decimal.Decimal, description string) (models.LedgerTransaction, error) {
	sender, err := l.resolveActive(ctx, senderID)
	if err != nil {
		return models.LedgerTransaction{}, err
	}
	recipient, err := l.accounts.ResolveByEmail(ctx, recipientEmail)
	if errors.Is(err, interfaces.ErrAccountNotFound) {
		return models.LedgerTransaction{}, fmt.Errorf("%w: %s", ErrRecipientNotFound, recipientEmail)
	}
	if err != nil {
		return models.LedgerTransaction{}, fmt.Errorf("resolve recipient: %w", err)
	}
	if recipient.ID == sender.ID {
		return models.LedgerTransaction{}, ErrSelfTransfer
	}
	if !recipient.Active() {
		return models.LedgerTransaction{}, fmt.Errorf("%w: recipient %s", ErrAccountInactive, recipient.ID)
	}
	amount, err = l.validateAmount(amount)
	if err != nil {
		return models.LedgerTransaction{}, err
	}

	records, err := l.commit(ctx, []string{sender.ID, recipient.ID}, func(ctx context.Context, scope interfaces.Scope) ([]models.LedgerRecord, error) {
		bs0, senderLast, err := head(ctx, scope, sender.ID)
		if err != nil {
			return nil, err
		}
		br0, recipientLast, err := head(ctx, scope, recipient.ID)
		if err != nil {
			return nil, err
		}
		if bs0.LessThan(amount) {
			return nil, fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientFunds, bs0, amount)
		}

		opID := uuid.NewString()
		out := l.newRecord(uuid.NewString(), opID, sender.ID, recipient.ID, models.TransactionTypeTransfer, amount,
			orDefault(description, "Transfer to "+recipient.Email), bs0, bs0.Sub(amount), senderLast)
		in := l.newRecord(uuid.NewString(), opID, recipient.ID, sender.ID, models.TransactionTypeTransfer, amount,
			orDefault(description, "Transfer from "+sender.Email), br0, br0.Add(amount), recipientLast)
		return []models.LedgerRecord{out, in}, nil
	})
	if err != nil {
		l.logger.Info("transfer rejected",
			zap.String("sender_id", sender.ID),
			zap.String("recipient_id", recipient.ID),
			zap.Stringer("amount", amount),
			zap.Error(err))
		return models.LedgerTransaction{}, err
	}

	l.afterCommit(records, sender, recipient)
	return records[0].Transaction, nil
}

// ListTransactions returns one page of the account's history, newest first.
// It takes no locks and may observe any committed state.
func (l *Ledger) ListTransactions(ctx context.Context, accountID string, page, limit int, txType *models.TransactionType) (models.TransactionPage, error) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)
	if txType != nil && !txType.Valid() {
		return models.TransactionPage{}, fmt.Errorf("%w: %q", ErrInvalidType, *txType)
	}

	txs, total, err := l.store.ListTransactions(ctx, models.TransactionQuery{
		AccountID: accountID,
		Page:      page,
		Limit:     limit,
		Type:      txType,
	})
	if err != nil {
		return models.TransactionPage{}, err
	}
	return models.TransactionPage{Transactions: txs, Total: total, Page: page, Limit: limit}, nil
}

// Balance returns the account's current balance as last committed.
func (l *Ledger) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	return l.store.LatestBalance(ctx, accountID)
}

// Wait blocks until every in-flight audit and notification call has finished.
func (l *Ledger) Wait() {
	l.effects.Wait()
}

// Drain stops starting new side effects and waits for the in-flight ones until ctx
// is done. Operations still committing afterwards succeed but skip their effects.
// Call it before closing the sinks.
func (l *Ledger) Drain(ctx context.Context) error {
	l.effectsMu.Lock()
	l.draining = true
	l.effectsMu.Unlock()

	done := make(chan struct{})
	go func() {
		l.effects.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain side effects: %w", ctx.Err())
	}
}

// commit runs the locked region: acquire, build the legs from the balances read in
// scope, append them, commit, release. Once the locks are held the storage work runs
// on a context the caller can no longer cancel.
func (l *Ledger) commit(ctx context.Context, accountIDs []string, build func(ctx context.Context, scope interfaces.Scope) ([]models.LedgerRecord, error)) ([]models.LedgerRecord, error) {
	var committed []models.LedgerRecord
	err := locks.WithAccounts(ctx, l.locker, accountIDs, func(ctx context.Context) error {
		return l.store.RunInTx(context.WithoutCancel(ctx), func(ctx context.Context, scope interfaces.Scope) error {
			records, err := build(ctx, scope)
			if err != nil {
				return err
			}
			for _, r := range records {
				if err := checkLeg(r.Transaction); err != nil {
					return err
				}
			}
			if err := scope.AppendAll(ctx, records...); err != nil {
				return err
			}
			committed = records
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return committed, nil
}

// head reads the account's latest entry in scope: the balance to build on and the
// created_at the next entry has to follow.
func head(ctx context.Context, scope interfaces.Scope, accountID string) (decimal.Decimal, time.Time, error) {
	e, ok, err := scope.LatestEntry(ctx, accountID)
	if err != nil {
		return decimal.Zero, time.Time{}, err
	}
	if !ok {
		return decimal.Zero, time.Time{}, nil
	}
	return e.BalanceAfter, e.CreatedAt, nil
}

// newRecord builds one leg stamped strictly after last, the account's previous entry.
func (l *Ledger) newRecord(id, opID, accountID, counterpartyID string, txType models.TransactionType, amount decimal.Decimal, description string, before, after decimal.Decimal, last time.Time) models.LedgerRecord {
	now := l.clock.After(last)
	return models.LedgerRecord{
		Transaction: models.LedgerTransaction{
			ID:                    id,
			OperationID:           opID,
			AccountID:             accountID,
			Type:                  txType,
			Amount:                amount,
			Status:                models.TransactionStatusCompleted,
			Description:           description,
			CounterpartyAccountID: counterpartyID,
			BalanceBefore:         before,
			BalanceAfter:          after,
			CreatedAt:             now,
		},
		Entry: models.BalanceEntry{
			ID:            uuid.NewString(),
			AccountID:     accountID,
			TransactionID: id,
			BalanceBefore: before,
			BalanceAfter:  after,
			CreatedAt:     now,
		},
	}
}

func (l *Ledger) resolveActive(ctx context.Context, accountID string) (models.Account, error) {
	acc, err := l.accounts.ResolveByID(ctx, accountID)
	if errors.Is(err, interfaces.ErrAccountNotFound) {
		return models.Account{}, fmt.Errorf("%w: %s", ErrNotFound, accountID)
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("resolve account: %w", err)
	}
	if !acc.Active() {
		return models.Account{}, fmt.Errorf("%w: %s is %s", ErrAccountInactive, acc.ID, acc.Status)
	}
	return acc, nil
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}
