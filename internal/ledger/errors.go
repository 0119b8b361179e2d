package ledger

import (
	"errors"

	"github.com/sheikh-saqib/account-ledger-engine/internal/interfaces"
)

// Business-rule failures. All of them are detected before anything is written.
var (
	ErrInvalidAmount     = errors.New("amount must be positive, at most 2 decimal places and within the limit")
	ErrNotFound          = errors.New("account not found")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrSelfTransfer      = errors.New("cannot transfer to the same account")
	ErrAccountInactive   = errors.New("account is not active")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidType       = errors.New("unknown transaction type")
	ErrChainBroken       = errors.New("balance chain broken")
)

// Infrastructure failures, shared with the lock and storage implementations.
var (
	// ErrLockTimeout means the account locks were not acquired in time. Safe to retry.
	ErrLockTimeout = interfaces.ErrLockTimeout
	// ErrStorage means the commit failed; nothing was written.
	ErrStorage = interfaces.ErrStorage
)

// IsRetryable reports whether the failed operation may simply be retried by the caller.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}
