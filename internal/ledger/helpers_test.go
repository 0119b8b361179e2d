package ledger

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sheikh-saqib/account-ledger-engine/internal/accounts"
	"github.com/sheikh-saqib/account-ledger-engine/internal/interfaces"
	"github.com/sheikh-saqib/account-ledger-engine/internal/locks"
	"github.com/sheikh-saqib/account-ledger-engine/internal/models"
	"github.com/sheikh-saqib/account-ledger-engine/internal/storage/memory"
	"github.com/sheikh-saqib/account-ledger-engine/internal/storage/postgres"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var (
	alice = models.Account{ID: "acc-a", Email: "alice@example.com", Status: models.AccountStatusActive}
	bob   = models.Account{ID: "acc-b", Email: "bob@example.com", Status: models.AccountStatusActive}
	carol = models.Account{ID: "acc-c", Email: "carol@example.com", Status: models.AccountStatusSuspended}
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type storeCase struct {
	name string
	open func(t *testing.T) interfaces.LedgerStore
}

var storeCases = []storeCase{
	{"memory", func(*testing.T) interfaces.LedgerStore { return memory.NewStore() }},
	{"sqlite", func(t *testing.T) interfaces.LedgerStore {
		db, err := postgres.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		return postgres.NewStore(db)
	}},
}

type fixture struct {
	ledger *Ledger
	store  interfaces.LedgerStore
	sink   *recordingSink
}

func newFixture(t *testing.T, store interfaces.LedgerStore, opts ...Option) *fixture {
	t.Helper()
	sink := &recordingSink{}
	opts = append([]Option{WithAuditSink(sink), WithNotificationSink(sink)}, opts...)
	l := NewLedger(store, locks.NewLocal(30*time.Second, nil), accounts.NewDirectory(alice, bob, carol), opts...)
	t.Cleanup(l.Wait)
	return &fixture{ledger: l, store: store, sink: sink}
}

func (f *fixture) balance(t *testing.T, accountID string) decimal.Decimal {
	t.Helper()
	b, err := f.ledger.Balance(context.Background(), accountID)
	require.NoError(t, err)
	return b
}

func (f *fixture) entries(t *testing.T, accountID string) []models.BalanceEntry {
	t.Helper()
	e, err := f.store.Entries(context.Background(), accountID)
	require.NoError(t, err)
	return e
}

func (f *fixture) deposit(t *testing.T, accountID, amount string) {
	t.Helper()
	_, err := f.ledger.Deposit(context.Background(), accountID, dec(amount), "")
	require.NoError(t, err)
}

// recordingSink captures audit records and notifications; it can be told to fail.
type recordingSink struct {
	mu            sync.Mutex
	fail          error
	audits        []auditCall
	notifications []notifyCall
}

type auditCall struct {
	kind      models.ChangeKind
	accountID string
	details   models.AuditDetails
}

type notifyCall struct {
	account models.Account
	kind    models.ChangeKind
	amount  decimal.Decimal
	balance decimal.Decimal
}

func (s *recordingSink) Record(_ context.Context, kind models.ChangeKind, accountID string, details models.AuditDetails) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, auditCall{kind, accountID, details})
	return s.fail
}

func (s *recordingSink) Notify(_ context.Context, account models.Account, kind models.ChangeKind, amount, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, notifyCall{account, kind, amount, balance})
	return s.fail
}

func (s *recordingSink) snapshot() ([]auditCall, []notifyCall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]auditCall(nil), s.audits...), append([]notifyCall(nil), s.notifications...)
}

// failingStore wraps a store and fails every AppendAll after the inner write.
type failingStore struct {
	interfaces.LedgerStore
}

func (f failingStore) RunInTx(ctx context.Context, fn func(ctx context.Context, scope interfaces.Scope) error) error {
	return f.LedgerStore.RunInTx(ctx, func(ctx context.Context, scope interfaces.Scope) error {
		return fn(ctx, failingScope{scope})
	})
}

type failingScope struct {
	interfaces.Scope
}

func (f failingScope) AppendAll(ctx context.Context, records ...models.LedgerRecord) error {
	if err := f.Scope.AppendAll(ctx, records...); err != nil {
		return err
	}
	return interfaces.ErrStorage
}

// timeoutLocker never grants a lock.
type timeoutLocker struct{}

func (timeoutLocker) Acquire(context.Context, ...string) (interfaces.Lease, error) {
	return nil, interfaces.ErrLockTimeout
}
