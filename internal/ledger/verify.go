package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// VerifyChain replays the account's balance chain and reports the first broken link.
// A healthy chain starts at zero, links every entry's BalanceBefore to the previous
// BalanceAfter, never goes negative and moves strictly forward in time.
func (l *Ledger) VerifyChain(ctx context.Context, accountID string) error {
	entries, err := l.store.Entries(ctx, accountID)
	if err != nil {
		return err
	}

	prev := decimal.Zero
	for i, e := range entries {
		if !e.BalanceBefore.Equal(prev) {
			return fmt.Errorf("%w: entry %d (%s) starts at %s, previous ended at %s", ErrChainBroken, i, e.ID, e.BalanceBefore, prev)
		}
		if e.BalanceAfter.IsNegative() {
			return fmt.Errorf("%w: entry %d (%s) leaves balance %s", ErrChainBroken, i, e.ID, e.BalanceAfter)
		}
		if i > 0 && !e.CreatedAt.After(entries[i-1].CreatedAt) {
			return fmt.Errorf("%w: entry %d (%s) is not after its predecessor", ErrChainBroken, i, e.ID)
		}
		prev = e.BalanceAfter
	}
	return nil
}
