package locks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sheikh-saqib/account-ledger-engine/internal/interfaces"
	"go.uber.org/zap"
)

// DefaultTimeout bounds lock acquisition when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// ErrNoAccounts is returned when Acquire is called without any account id.
var ErrNoAccounts = errors.New("no account ids to lock")

// slot is one account's exclusive hold. refs counts holders and waiters so
// the slot can be dropped from the table once nobody uses it.
type slot struct {
	sem  chan struct{}
	refs int
}

// Local is an in-process lock table keyed by account id.
type Local struct {
	timeout time.Duration
	logger  *zap.Logger

	mu    sync.Mutex // protects slots
	slots map[string]*slot
}

// NewLocal creates an in-process coordinator. A zero timeout means DefaultTimeout.
func NewLocal(timeout time.Duration, logger *zap.Logger) *Local {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Local{
		timeout: timeout,
		logger:  logger,
		slots:   make(map[string]*slot),
	}
}

func (l *Local) ref(id string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[id]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		l.slots[id] = s
	}
	s.refs++
	return s
}

func (l *Local) unref(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if s, ok := l.slots[id]; ok {
		s.refs--
		if s.refs == 0 {
			delete(l.slots, id)
		}
	}
}

// Acquire locks every account id in canonical order, waiting at most the configured timeout.
func (l *Local) Acquire(ctx context.Context, accountIDs ...string) (interfaces.Lease, error) {
	ids := CanonicalOrder(accountIDs)
	if len(ids) == 0 {
		return nil, ErrNoAccounts
	}

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	lease := &localLease{owner: l}
	for _, id := range ids {
		s := l.ref(id)
		select {
		case s.sem <- struct{}{}:
			lease.held = append(lease.held, id)
		case <-timer.C:
			l.unref(id)
			lease.release()
			l.logger.Warn("account lock timeout", zap.String("account_id", id), zap.Duration("timeout", l.timeout))
			return nil, fmt.Errorf("lock account %s: %w", id, interfaces.ErrLockTimeout)
		case <-ctx.Done():
			l.unref(id)
			lease.release()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("lock account %s: %w", id, interfaces.ErrLockTimeout)
			}
			return nil, fmt.Errorf("lock account %s: %w", id, ctx.Err())
		}
	}
	return lease, nil
}

// Held returns the number of account ids currently locked or awaited.
func (l *Local) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

type localLease struct {
	owner *Local
	once  sync.Once
	held  []string
}

func (ll *localLease) Release(context.Context) error {
	ll.once.Do(ll.release)
	return nil
}

func (ll *localLease) release() {
	for i := len(ll.held) - 1; i >= 0; i-- {
		id := ll.held[i]
		ll.owner.mu.Lock()
		s := ll.owner.slots[id]
		ll.owner.mu.Unlock()
		<-s.sem
		ll.owner.unref(id)
	}
	ll.held = nil
}

var _ interfaces.LockCoordinator = (*Local)(nil)
