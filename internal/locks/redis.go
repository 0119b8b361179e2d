package locks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"
	"github.com/sheikh-saqib/account-ledger-engine/internal/interfaces"
	"go.uber.org/zap"
)

// RedisOptions configures the distributed coordinator.
type RedisOptions struct {
	// Expiry is how long a held lock survives a crashed holder.
	Expiry time.Duration
	// Timeout bounds the whole acquisition of all requested ids.
	Timeout time.Duration
	// RetryDelay is the pause between attempts on a busy lock.
	RetryDelay time.Duration
	// KeyPrefix is prepended to every account id.
	KeyPrefix string
}

// DefaultRedisOptions suits operations that finish well within a second.
func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		Expiry:     10 * time.Second,
		Timeout:    DefaultTimeout,
		RetryDelay: 25 * time.Millisecond,
		KeyPrefix:  "ledger:lock:account:",
	}
}

// Redis coordinates account locks across service instances using the RedLock algorithm.
type Redis struct {
	rs     *redsync.Redsync
	opts   RedisOptions
	logger *zap.Logger
}

// NewRedis creates a distributed coordinator on top of a go-redis client.
func NewRedis(client goredislib.UniversalClient, opts RedisOptions, logger *zap.Logger) *Redis {
	def := DefaultRedisOptions()
	if opts.Expiry <= 0 {
		opts.Expiry = def.Expiry
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = def.RetryDelay
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = def.KeyPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{
		rs:     redsync.New(goredis.NewPool(client)),
		opts:   opts,
		logger: logger,
	}
}

// Acquire locks every account id in canonical order. The retry budget of each id is
// whatever remains of the configured timeout.
func (r *Redis) Acquire(ctx context.Context, accountIDs ...string) (interfaces.Lease, error) {
	ids := CanonicalOrder(accountIDs)
	if len(ids) == 0 {
		return nil, ErrNoAccounts
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	tries := int(r.opts.Timeout/r.opts.RetryDelay) + 1
	lease := &redisLease{logger: r.logger}
	for _, id := range ids {
		m := r.rs.NewMutex(r.opts.KeyPrefix+id,
			redsync.WithExpiry(r.opts.Expiry),
			redsync.WithTries(tries),
			redsync.WithRetryDelay(r.opts.RetryDelay),
		)
		if err := m.LockContext(ctx); err != nil {
			lease.release(context.WithoutCancel(ctx))
			if isContention(err) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
				r.logger.Warn("account lock timeout", zap.String("account_id", id), zap.Error(err))
				return nil, fmt.Errorf("lock account %s: %w", id, interfaces.ErrLockTimeout)
			}
			return nil, fmt.Errorf("lock account %s: %w", id, err)
		}
		lease.held = append(lease.held, m)
	}
	return lease, nil
}

// isContention reports whether err means another holder has the lock, as opposed to
// Redis being unreachable.
func isContention(err error) bool {
	var (
		taken     *redsync.ErrTaken
		nodeTaken *redsync.ErrNodeTaken
	)
	return errors.Is(err, redsync.ErrFailed) ||
		errors.As(err, &taken) ||
		errors.As(err, &nodeTaken)
}

type redisLease struct {
	logger *zap.Logger
	once   sync.Once
	held   []*redsync.Mutex
	err    error
}

func (rl *redisLease) Release(ctx context.Context) error {
	rl.once.Do(func() { rl.err = rl.release(ctx) })
	return rl.err
}

func (rl *redisLease) release(ctx context.Context) error {
	var errs []error
	for i := len(rl.held) - 1; i >= 0; i-- {
		m := rl.held[i]
		if ok, err := m.UnlockContext(ctx); !ok || err != nil {
			// an expired lock is reported but does not undo the committed work
			rl.logger.Error("failed to release account lock", zap.String("key", m.Name()), zap.Bool("unlock_ok", ok), zap.Error(err))
			if err != nil {
				errs = append(errs, err)
			}
		}
	}
	rl.held = nil
	return errors.Join(errs...)
}

var _ interfaces.LockCoordinator = (*Redis)(nil)
