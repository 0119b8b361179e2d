package ledger

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/sheikh-saqib/account-ledger-engine/internal/accounts"
	"github.com/sheikh-saqib/account-ledger-engine/internal/interfaces"
	"github.com/sheikh-saqib/account-ledger-engine/internal/locks"
	"github.com/sheikh-saqib/account-ledger-engine/internal/models"
	"github.com/sheikh-saqib/account-ledger-engine/internal/storage/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios(t *testing.T) {
	for _, sc := range storeCases {
		t.Run(sc.name, func(t *testing.T) {
			f := newFixture(t, sc.open(t))
			ctx := context.Background()
			f.deposit(t, alice.ID, "100.00")

			// 1. overdraw attempt is rejected without writes
			_, err := f.ledger.Withdraw(ctx, alice.ID, dec("150.00"), "")
			require.ErrorIs(t, err, ErrInsufficientFunds)
			assert.True(t, f.balance(t, alice.ID).Equal(dec("100")))
			assert.Len(t, f.entries(t, alice.ID), 1)

			// 2. deposit extends the chain
			tx, err := f.ledger.Deposit(ctx, alice.ID, dec("50.00"), "")
			require.NoError(t, err)
			assert.Equal(t, models.TransactionTypeDeposit, tx.Type)
			assert.Equal(t, models.TransactionStatusCompleted, tx.Status)
			assert.True(t, tx.BalanceBefore.Equal(dec("100")))
			assert.True(t, tx.BalanceAfter.Equal(dec("150")))
			assert.True(t, f.balance(t, alice.ID).Equal(dec("150")))

			// 3. transfer writes two cross-referenced legs
			out, err := f.ledger.Transfer(ctx, alice.ID, bob.Email, dec("150.00"), "")
			require.NoError(t, err)
			assert.True(t, f.balance(t, alice.ID).IsZero())
			assert.True(t, f.balance(t, bob.ID).Equal(dec("150")))
			assert.Equal(t, bob.ID, out.CounterpartyAccountID)
			assert.Equal(t, "Transfer to bob@example.com", out.Description)

			page, err := f.ledger.ListTransactions(ctx, bob.ID, 1, 10, nil)
			require.NoError(t, err)
			require.Equal(t, 1, page.Total)
			in := page.Transactions[0]
			assert.Equal(t, models.TransactionTypeTransfer, in.Type)
			assert.Equal(t, models.TransactionStatusCompleted, in.Status)
			assert.Equal(t, alice.ID, in.CounterpartyAccountID)
			assert.Equal(t, out.OperationID, in.OperationID)
			assert.NotEqual(t, out.ID, in.ID)
			assert.True(t, in.BalanceBefore.IsZero())
			assert.True(t, in.BalanceAfter.Equal(dec("150")))

			// 4. self transfer
			_, err = f.ledger.Transfer(ctx, alice.ID, alice.Email, dec("10.00"), "")
			require.ErrorIs(t, err, ErrSelfTransfer)

			// 5. unknown recipient
			_, err = f.ledger.Transfer(ctx, bob.ID, "unknown@example.com", dec("10.00"), "")
			require.ErrorIs(t, err, ErrRecipientNotFound)

			assert.Len(t, f.entries(t, alice.ID), 3)
			assert.Len(t, f.entries(t, bob.ID), 1)
			require.NoError(t, f.ledger.VerifyChain(ctx, alice.ID))
			require.NoError(t, f.ledger.VerifyChain(ctx, bob.ID))
		})
	}
}

func TestValidation(t *testing.T) {
	f := newFixture(t, memory.NewStore(), WithConfig(Config{MaxAmount: dec("1000")}))
	ctx := context.Background()
	f.deposit(t, alice.ID, "500")

	tests := []struct {
		name   string
		run    func() error
		wantIs error
	}{
		{"zero amount", func() error { _, err := f.ledger.Deposit(ctx, alice.ID, decimal.Zero, ""); return err }, ErrInvalidAmount},
		{"negative amount", func() error { _, err := f.ledger.Withdraw(ctx, alice.ID, dec("-5"), ""); return err }, ErrInvalidAmount},
		{"three decimals", func() error { _, err := f.ledger.Deposit(ctx, alice.ID, dec("1.005"), ""); return err }, ErrInvalidAmount},
		{"over the limit", func() error { _, err := f.ledger.Deposit(ctx, alice.ID, dec("1000.01"), ""); return err }, ErrInvalidAmount},
		{"transfer amount", func() error { _, err := f.ledger.Transfer(ctx, alice.ID, bob.Email, dec("0.001"), ""); return err }, ErrInvalidAmount},
		{"unknown account", func() error { _, err := f.ledger.Deposit(ctx, "acc-x", dec("1"), ""); return err }, ErrNotFound},
		{"unknown sender", func() error { _, err := f.ledger.Transfer(ctx, "acc-x", bob.Email, dec("1"), ""); return err }, ErrNotFound},
		{"suspended account", func() error { _, err := f.ledger.Deposit(ctx, carol.ID, dec("1"), ""); return err }, ErrAccountInactive},
		{"suspended recipient", func() error { _, err := f.ledger.Transfer(ctx, alice.ID, carol.Email, dec("1"), ""); return err }, ErrAccountInactive},
		{"self transfer by case", func() error { _, err := f.ledger.Transfer(ctx, alice.ID, "ALICE@example.com", dec("1"), ""); return err }, ErrSelfTransfer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.run(), tt.wantIs)
		})
	}

	assert.Len(t, f.entries(t, alice.ID), 1)
	assert.Empty(t, f.entries(t, bob.ID))
	assert.Empty(t, f.entries(t, carol.ID))
}

func TestAmountsAreKeptAtTwoDecimals(t *testing.T) {
	f := newFixture(t, memory.NewStore())
	tx, err := f.ledger.Deposit(context.Background(), alice.ID, dec("12.5"), "  salary  ")
	require.NoError(t, err)
	assert.Equal(t, "12.50", tx.Amount.StringFixed(2))
	assert.Equal(t, int32(-2), tx.Amount.Exponent())
	assert.Equal(t, "salary", tx.Description)
}

func TestSingleAccountConservation(t *testing.T) {
	for _, sc := range storeCases {
		t.Run(sc.name, func(t *testing.T) {
			f := newFixture(t, sc.open(t))
			ctx := context.Background()
			rng := rand.New(rand.NewSource(7))

			expected := decimal.Zero
			for i := 0; i < 60; i++ {
				amount := decimal.New(int64(rng.Intn(10_000)+1), -2)
				if rng.Intn(2) == 0 {
					_, err := f.ledger.Deposit(ctx, alice.ID, amount, "")
					require.NoError(t, err)
					expected = expected.Add(amount)
					continue
				}
				_, err := f.ledger.Withdraw(ctx, alice.ID, amount, "")
				if expected.LessThan(amount) {
					require.ErrorIs(t, err, ErrInsufficientFunds)
					continue
				}
				require.NoError(t, err)
				expected = expected.Sub(amount)
			}

			assert.True(t, f.balance(t, alice.ID).Equal(expected), "balance %s, want %s", f.balance(t, alice.ID), expected)
			require.NoError(t, f.ledger.VerifyChain(ctx, alice.ID))
		})
	}
}

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	for _, sc := range storeCases {
		t.Run(sc.name, func(t *testing.T) {
			f := newFixture(t, sc.open(t))
			ctx := context.Background()
			f.deposit(t, alice.ID, "100.00")

			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				accepted int
			)
			for i := 0; i < 30; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := f.ledger.Withdraw(ctx, alice.ID, dec("10.00"), "")
					if err != nil {
						assert.ErrorIs(t, err, ErrInsufficientFunds)
						return
					}
					mu.Lock()
					accepted++
					mu.Unlock()
				}()
			}
			wg.Wait()

			assert.Equal(t, 10, accepted)
			assert.True(t, f.balance(t, alice.ID).IsZero())
			require.NoError(t, f.ledger.VerifyChain(ctx, alice.ID))
		})
	}
}

func TestOpposingTransfersDoNotDeadlock(t *testing.T) {
	for _, sc := range storeCases {
		t.Run(sc.name, func(t *testing.T) {
			f := newFixture(t, sc.open(t))
			ctx := context.Background()
			f.deposit(t, alice.ID, "1000.00")
			f.deposit(t, bob.ID, "1000.00")

			done := make(chan struct{})
			go func() {
				defer close(done)
				var wg sync.WaitGroup
				for i := 0; i < 40; i++ {
					from, to := alice, bob
					if i%2 == 1 {
						from, to = bob, alice
					}
					wg.Add(1)
					go func() {
						defer wg.Done()
						_, err := f.ledger.Transfer(ctx, from.ID, to.Email, dec("7.25"), fmt.Sprintf("transfer %d", i))
						assert.NoError(t, err)
					}()
				}
				wg.Wait()
			}()

			select {
			case <-done:
			case <-time.After(20 * time.Second):
				t.Fatal("opposing transfers did not complete")
			}

			// 20 transfers each way cancel out
			assert.True(t, f.balance(t, alice.ID).Equal(dec("1000")))
			assert.True(t, f.balance(t, bob.ID).Equal(dec("1000")))
			assert.Len(t, f.entries(t, alice.ID), 41)
			assert.Len(t, f.entries(t, bob.ID), 41)
			require.NoError(t, f.ledger.VerifyChain(ctx, alice.ID))
			require.NoError(t, f.ledger.VerifyChain(ctx, bob.ID))
		})
	}
}

func TestTransferConservesSum(t *testing.T) {
	f := newFixture(t, memory.NewStore())
	ctx := context.Background()
	f.deposit(t, alice.ID, "80.10")
	f.deposit(t, bob.ID, "19.90")

	_, err := f.ledger.Transfer(ctx, alice.ID, bob.Email, dec("30.05"), "rent")
	require.NoError(t, err)

	a, b := f.balance(t, alice.ID), f.balance(t, bob.ID)
	assert.True(t, a.Equal(dec("50.05")))
	assert.True(t, b.Equal(dec("49.95")))
	assert.True(t, a.Add(b).Equal(dec("100")))
}

func TestTransferInsufficientFundsWritesNothing(t *testing.T) {
	f := newFixture(t, memory.NewStore())
	ctx := context.Background()
	f.deposit(t, alice.ID, "10.00")

	_, err := f.ledger.Transfer(ctx, alice.ID, bob.Email, dec("10.01"), "")
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Len(t, f.entries(t, alice.ID), 1)
	assert.Empty(t, f.entries(t, bob.ID))
}

func TestStorageFailureLeavesNoRows(t *testing.T) {
	for _, sc := range storeCases {
		t.Run(sc.name, func(t *testing.T) {
			inner := sc.open(t)
			f := newFixture(t, failingStore{inner})
			ctx := context.Background()

			_, err := f.ledger.Deposit(ctx, alice.ID, dec("5"), "")
			require.ErrorIs(t, err, ErrStorage)
			assert.False(t, IsRetryable(err))

			_, err = f.ledger.Transfer(ctx, alice.ID, bob.Email, dec("5"), "")
			require.ErrorIs(t, err, ErrInsufficientFunds)

			entries, err := inner.Entries(ctx, alice.ID)
			require.NoError(t, err)
			assert.Empty(t, entries)

			f.ledger.Wait()
			audits, notes := f.sink.snapshot()
			assert.Empty(t, audits, "nothing committed, nothing to audit")
			assert.Empty(t, notes)
		})
	}
}

func TestTransferStorageFailureIsAtomic(t *testing.T) {
	inner := memory.NewStore()
	seed := newFixture(t, inner)
	seed.deposit(t, alice.ID, "100")

	f := newFixture(t, failingStore{inner})
	_, err := f.ledger.Transfer(context.Background(), alice.ID, bob.Email, dec("40"), "")
	require.ErrorIs(t, err, ErrStorage)

	assert.Len(t, f.entries(t, alice.ID), 1)
	assert.Empty(t, f.entries(t, bob.ID))
	assert.True(t, f.balance(t, alice.ID).Equal(dec("100")))
}

func TestLockTimeoutIsRetryable(t *testing.T) {
	store := memory.NewStore()
	l := NewLedger(store, timeoutLocker{}, accounts.NewDirectory(alice, bob))

	_, err := l.Deposit(context.Background(), alice.ID, dec("1"), "")
	require.ErrorIs(t, err, ErrLockTimeout)
	assert.True(t, IsRetryable(err))

	entries, err := store.Entries(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLockIsHeldAcrossTheWholeMutation(t *testing.T) {
	locker := locks.NewLocal(50*time.Millisecond, nil)
	l := NewLedger(memory.NewStore(), locker, accounts.NewDirectory(alice, bob))
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, bob.ID)
	require.NoError(t, err)

	_, err = l.Deposit(ctx, bob.ID, dec("1"), "")
	require.ErrorIs(t, err, ErrLockTimeout)

	// alice is not involved and proceeds in parallel
	_, err = l.Deposit(ctx, alice.ID, dec("1"), "")
	require.NoError(t, err)

	require.NoError(t, lease.Release(ctx))
	_, err = l.Deposit(ctx, bob.ID, dec("1"), "")
	require.NoError(t, err)
	assert.Zero(t, locker.Held())
}

func TestSideEffectsAfterCommit(t *testing.T) {
	f := newFixture(t, memory.NewStore())
	ctx := context.Background()
	f.deposit(t, alice.ID, "20")

	out, err := f.ledger.Transfer(ctx, alice.ID, bob.Email, dec("5"), "")
	require.NoError(t, err)
	f.ledger.Wait()

	audits, notes := f.sink.snapshot()
	require.Len(t, audits, 3)
	require.Len(t, notes, 3)

	kinds := map[models.ChangeKind]auditCall{}
	for _, a := range audits {
		kinds[a.kind] = a
	}
	assert.Equal(t, alice.ID, kinds[models.ChangeDeposit].accountID)
	assert.Equal(t, alice.ID, kinds[models.ChangeTransferOut].accountID)
	assert.Equal(t, out.ID, kinds[models.ChangeTransferOut].details.TransactionID)
	assert.Equal(t, bob.ID, kinds[models.ChangeTransferIn].accountID)
	assert.Equal(t, out.OperationID, kinds[models.ChangeTransferIn].details.OperationID)

	for _, n := range notes {
		if n.kind == models.ChangeTransferIn {
			assert.Equal(t, bob.Email, n.account.Email)
			assert.True(t, n.balance.Equal(dec("5")))
		}
	}
}

func TestFailingSinksDoNotFailOperations(t *testing.T) {
	f := newFixture(t, memory.NewStore())
	f.sink.fail = assert.AnError

	tx, err := f.ledger.Deposit(context.Background(), alice.ID, dec("3"), "")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, tx.Status)
	f.ledger.Wait()
	assert.True(t, f.balance(t, alice.ID).Equal(dec("3")))
}

func TestListTransactions(t *testing.T) {
	f := newFixture(t, memory.NewStore())
	ctx := context.Background()
	for i := 1; i <= 12; i++ {
		f.deposit(t, alice.ID, fmt.Sprintf("%d", i))
	}
	_, err := f.ledger.Withdraw(ctx, alice.ID, dec("1"), "")
	require.NoError(t, err)

	page, err := f.ledger.ListTransactions(ctx, alice.ID, 0, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultPage, page.Page)
	assert.Equal(t, DefaultLimit, page.Limit)
	assert.Equal(t, 13, page.Total)
	require.Len(t, page.Transactions, 10)
	assert.Equal(t, models.TransactionTypeWithdrawal, page.Transactions[0].Type)
	for i := 1; i < len(page.Transactions); i++ {
		assert.True(t, page.Transactions[i].CreatedAt.Before(page.Transactions[i-1].CreatedAt))
	}

	page, err = f.ledger.ListTransactions(ctx, alice.ID, 2, 10, nil)
	require.NoError(t, err)
	assert.Len(t, page.Transactions, 3)

	deposits := models.TransactionTypeDeposit
	page, err = f.ledger.ListTransactions(ctx, alice.ID, 1, 500, &deposits)
	require.NoError(t, err)
	assert.Equal(t, MaxLimit, page.Limit)
	assert.Equal(t, 12, page.Total)

	bogus := models.TransactionType("REFUND")
	_, err = f.ledger.ListTransactions(ctx, alice.ID, 1, 10, &bogus)
	assert.ErrorIs(t, err, ErrInvalidType)
}

func TestVerifyChainDetectsBreaks(t *testing.T) {
	store := memory.NewStore()
	f := newFixture(t, store)
	ctx := context.Background()
	f.deposit(t, alice.ID, "10")
	require.NoError(t, f.ledger.VerifyChain(ctx, alice.ID))

	// a record that skips a link, written straight to the store
	at := time.Now().Add(time.Hour)
	rec := models.LedgerRecord{
		Transaction: models.LedgerTransaction{
			ID: "forged", OperationID: "forged", AccountID: alice.ID, Type: models.TransactionTypeDeposit,
			Amount: dec("1"), Status: models.TransactionStatusCompleted,
			BalanceBefore: dec("50"), BalanceAfter: dec("51"), CreatedAt: at,
		},
		Entry: models.BalanceEntry{
			ID: "forged-entry", AccountID: alice.ID, TransactionID: "forged",
			BalanceBefore: dec("50"), BalanceAfter: dec("51"), CreatedAt: at,
		},
	}
	require.NoError(t, store.RunInTx(ctx, func(ctx context.Context, scope interfaces.Scope) error {
		return scope.AppendAll(ctx, rec)
	}))

	assert.ErrorIs(t, f.ledger.VerifyChain(ctx, alice.ID), ErrChainBroken)
}

func TestClockIsStrictlyIncreasing(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newClock(func() time.Time { return fixed })

	first, second := c.Now(), c.Now()
	assert.True(t, second.After(first))
	assert.Equal(t, time.Microsecond, second.Sub(first))
}

func TestClockAfterStoredEntry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newClock(func() time.Time { return now })

	ahead := now.Add(50 * time.Millisecond)
	got := c.After(ahead)
	assert.Equal(t, ahead.Add(time.Microsecond), got)

	// the local clock is never set back by a stamp from an older entry
	next := c.After(now.Add(-time.Hour))
	assert.True(t, next.After(got))
}

// twoInstances builds two engines over one store and one lock coordinator, the way
// two service replicas share a database and Redis. The second instance's clock runs
// skew behind the first.
func twoInstances(t *testing.T, store interfaces.LedgerStore, skew time.Duration) (*Ledger, *Ledger) {
	t.Helper()
	locker := locks.NewLocal(30*time.Second, nil)
	dir := accounts.NewDirectory(alice, bob, carol)

	hostA := NewLedger(store, locker, dir)
	hostB := NewLedger(store, locker, dir, WithClock(func() time.Time { return time.Now().Add(-skew) }))
	t.Cleanup(hostA.Wait)
	t.Cleanup(hostB.Wait)
	return hostA, hostB
}

func TestLaggingInstanceCannotOverdraw(t *testing.T) {
	for _, sc := range storeCases {
		t.Run(sc.name, func(t *testing.T) {
			store := sc.open(t)
			hostA, hostB := twoInstances(t, store, 50*time.Millisecond)
			ctx := context.Background()

			_, err := hostA.Deposit(ctx, alice.ID, dec("100"), "")
			require.NoError(t, err)

			_, err = hostB.Withdraw(ctx, alice.ID, dec("100"), "")
			require.NoError(t, err)

			_, err = hostB.Withdraw(ctx, alice.ID, dec("100"), "")
			assert.ErrorIs(t, err, ErrInsufficientFunds)

			bal, err := hostA.Balance(ctx, alice.ID)
			require.NoError(t, err)
			assert.True(t, bal.IsZero(), "balance %s", bal)
			require.NoError(t, hostA.VerifyChain(ctx, alice.ID))

			entries, err := store.Entries(ctx, alice.ID)
			require.NoError(t, err)
			require.Len(t, entries, 2)
			assert.True(t, entries[1].CreatedAt.After(entries[0].CreatedAt))
		})
	}
}

func TestInstancesInterleaveOnOneChain(t *testing.T) {
	for _, sc := range storeCases {
		t.Run(sc.name, func(t *testing.T) {
			store := sc.open(t)
			hostA, hostB := twoInstances(t, store, 20*time.Millisecond)
			ctx := context.Background()

			_, err := hostA.Deposit(ctx, alice.ID, dec("500"), "")
			require.NoError(t, err)
			_, err = hostB.Deposit(ctx, bob.ID, dec("500"), "")
			require.NoError(t, err)

			var wg sync.WaitGroup
			for i := 0; i < 40; i++ {
				engine := hostA
				if i%2 == 1 {
					engine = hostB
				}
				wg.Add(1)
				go func() {
					defer wg.Done()
					var err error
					switch i % 4 {
					case 0:
						_, err = engine.Transfer(ctx, alice.ID, bob.Email, dec("12.50"), "")
					case 1:
						_, err = engine.Transfer(ctx, bob.ID, alice.Email, dec("7.25"), "")
					case 2:
						_, err = engine.Withdraw(ctx, alice.ID, dec("3"), "")
					case 3:
						_, err = engine.Deposit(ctx, bob.ID, dec("1.10"), "")
					}
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			// 10 of each operation: alice 500 - 125 + 72.50 - 30, bob 500 + 125 - 72.50 + 11
			a, err := hostA.Balance(ctx, alice.ID)
			require.NoError(t, err)
			b, err := hostB.Balance(ctx, bob.ID)
			require.NoError(t, err)
			assert.True(t, a.Equal(dec("417.50")), "alice %s", a)
			assert.True(t, b.Equal(dec("563.50")), "bob %s", b)

			require.NoError(t, hostA.VerifyChain(ctx, alice.ID))
			require.NoError(t, hostB.VerifyChain(ctx, bob.ID))
		})
	}
}

func TestDrainSkipsLaterSideEffects(t *testing.T) {
	f := newFixture(t, memory.NewStore())
	ctx := context.Background()
	f.deposit(t, alice.ID, "10")

	require.NoError(t, f.ledger.Drain(ctx))
	audits, notes := f.sink.snapshot()
	assert.Len(t, audits, 1)
	assert.Len(t, notes, 1)

	// the operation itself still commits
	f.deposit(t, alice.ID, "5")
	assert.True(t, f.balance(t, alice.ID).Equal(dec("15")))

	audits, notes = f.sink.snapshot()
	assert.Len(t, audits, 1)
	assert.Len(t, notes, 1)
}

type blockingSink struct {
	release chan struct{}
}

func (s blockingSink) Record(ctx context.Context, _ models.ChangeKind, _ string, _ models.AuditDetails) error {
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return nil
}

func TestDrainHonoursDeadline(t *testing.T) {
	sink := blockingSink{release: make(chan struct{})}
	f := newFixture(t, memory.NewStore(), WithAuditSink(sink))
	f.deposit(t, alice.ID, "10")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.ledger.Drain(ctx), context.DeadlineExceeded)

	close(sink.release)
	require.NoError(t, f.ledger.Drain(context.Background()))
}
