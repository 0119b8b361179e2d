package interfaces

import (
	"context"
	"errors"
)

// ErrLockTimeout is returned when account locks could not be acquired in time.
// No lock is left held; the operation may be retried.
var ErrLockTimeout = errors.New("account lock acquisition timed out")

// LockCoordinator serializes mutations per account.
// Implementations must acquire multiple ids in a canonical order.
type LockCoordinator interface {
	Acquire(ctx context.Context, accountIDs ...string) (Lease, error)
}

// Lease is a set of held account locks.
type Lease interface {
	// Release frees every lock of the lease in reverse acquisition order.
	// Calling it more than once is a no-op.
	Release(ctx context.Context) error
}
