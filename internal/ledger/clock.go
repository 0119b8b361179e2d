package ledger

import (
	"sync"
	"time"
)

// clock hands out strictly increasing UTC timestamps at microsecond precision,
// the finest precision PostgreSQL keeps. Another instance's clock may lag this one,
// so each stamp is also pushed past the account's latest stored entry (see After);
// entries of one account then sort by created_at in the order their locks were taken.
type clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func newClock(now func() time.Time) *clock {
	if now == nil {
		now = time.Now
	}
	return &clock{now: now}
}

func (c *clock) Now() time.Time {
	return c.After(time.Time{})
}

// After returns the next timestamp, at least one microsecond later than floor.
func (c *clock) After(floor time.Time) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(time.Microsecond)
	if !floor.IsZero() {
		if next := floor.UTC().Truncate(time.Microsecond).Add(time.Microsecond); t.Before(next) {
			t = next
		}
	}
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}
