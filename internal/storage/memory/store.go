package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/sheikh-saqib/account-ledger-engine/internal/interfaces"
	"github.com/sheikh-saqib/account-ledger-engine/internal/models"
	"github.com/shopspring/decimal"
)

// Store is an in-memory implementation of interfaces.LedgerStore.
// Committed records are kept per account in append order, which is also created-at order.
type Store struct {
	mu       sync.RWMutex                     // protects accounts and byID
	accounts map[string][]models.LedgerRecord // account id -> records, oldest first
	byID     map[string]struct{}              // transaction and entry ids already used
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		accounts: make(map[string][]models.LedgerRecord),
		byID:     make(map[string]struct{}),
	}
}

// RunInTx stages every AppendAll of fn and applies them in one step when fn succeeds.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, scope interfaces.Scope) error) error {
	sc := &scope{store: s}
	if err := fn(ctx, sc); err != nil {
		return err // nothing staged reaches the store
	}
	return s.commit(sc.staged)
}

func (s *Store) commit(staged []models.LedgerRecord) error {
	if len(staged) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range staged {
		if s.used(r.Transaction.ID) || s.used(r.Entry.ID) {
			return fmt.Errorf("%w: duplicate id in %s", interfaces.ErrStorage, r.Transaction.ID)
		}
	}
	for _, r := range staged {
		s.accounts[r.Transaction.AccountID] = append(s.accounts[r.Transaction.AccountID], r)
		s.byID[r.Transaction.ID] = struct{}{}
		s.byID[r.Entry.ID] = struct{}{}
	}
	return nil
}

func (s *Store) used(id string) bool {
	_, ok := s.byID[id]
	return ok
}

// LatestBalance returns the last committed balance of the account, or zero.
func (s *Store) LatestBalance(_ context.Context, accountID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return latest(s.accounts[accountID]), nil
}

// ListTransactions pages the account's transactions newest first.
func (s *Store) ListTransactions(_ context.Context, q models.TransactionQuery) ([]models.LedgerTransaction, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.accounts[q.AccountID]
	matched := make([]models.LedgerTransaction, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		tx := records[i].Transaction
		if q.Type != nil && tx.Type != *q.Type {
			continue
		}
		matched = append(matched, tx)
	}

	total := len(matched)
	from := min(q.Offset(), total)
	to := total
	if q.Limit > 0 {
		to = min(from+q.Limit, total)
	}
	page := make([]models.LedgerTransaction, to-from)
	copy(page, matched[from:to])
	return page, total, nil
}

// Entries returns a copy of the account's balance chain, oldest first.
func (s *Store) Entries(_ context.Context, accountID string) ([]models.BalanceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.accounts[accountID]
	entries := make([]models.BalanceEntry, len(records))
	for i, r := range records {
		entries[i] = r.Entry
	}
	return entries, nil
}

func latest(records []models.LedgerRecord) decimal.Decimal {
	if len(records) == 0 {
		return decimal.Zero
	}
	return records[len(records)-1].Entry.BalanceAfter
}

// scope is the pending state of one RunInTx call.
type scope struct {
	store  *Store
	staged []models.LedgerRecord
}

func (sc *scope) LatestBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	e, _, err := sc.LatestEntry(ctx, accountID)
	return e.BalanceAfter, err
}

func (sc *scope) LatestEntry(_ context.Context, accountID string) (models.BalanceEntry, bool, error) {
	for i := len(sc.staged) - 1; i >= 0; i-- {
		if sc.staged[i].Entry.AccountID == accountID {
			return sc.staged[i].Entry, true, nil
		}
	}

	sc.store.mu.RLock()
	defer sc.store.mu.RUnlock()
	records := sc.store.accounts[accountID]
	if len(records) == 0 {
		return models.BalanceEntry{}, false, nil
	}
	return records[len(records)-1].Entry, true, nil
}

func (sc *scope) AppendAll(_ context.Context, records ...models.LedgerRecord) error {
	if err := models.ValidateBatch(records); err != nil {
		return err
	}
	sc.staged = append(sc.staged, records...)
	return nil
}

// Compile-time check: ensure Store implements LedgerStore interface
var _ interfaces.LedgerStore = (*Store)(nil)
