// Package locks implements interfaces.LockCoordinator.
//
// Every coordinator sorts the requested account ids before acquiring them, so two
// operations touching the same pair of accounts always queue on the same first lock
// and can never wait on each other in a cycle.
package locks

import (
	"context"
	"slices"

	"github.com/sheikh-saqib/account-ledger-engine/internal/interfaces"
)

// CanonicalOrder returns the distinct, non-empty ids sorted lexicographically.
func CanonicalOrder(accountIDs []string) []string {
	ids := make([]string, 0, len(accountIDs))
	for _, id := range accountIDs {
		if id != "" {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// WithAccounts runs fn while holding the locks of accountIDs.
// The locks are released on every exit path, including panics in fn.
func WithAccounts(ctx context.Context, c interfaces.LockCoordinator, accountIDs []string, fn func(ctx context.Context) error) (err error) {
	lease, err := c.Acquire(ctx, accountIDs...)
	if err != nil {
		return err
	}
	defer func() {
		// release must not be skipped by a cancelled caller context
		if rerr := lease.Release(context.WithoutCancel(ctx)); rerr != nil && err == nil {
			err = rerr
		}
	}()
	return fn(ctx)
}
