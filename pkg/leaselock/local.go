package leaselock

import (
	"context"
	"sync"
	"time"
)

// Local is an in-process Locker for single-process deployments without a
// database. Leases never expire; they are held until fn returns.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

func (l *Local) tryAcquire(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return false
	}
	l.held[key] = struct{}{}
	return true
}

func (l *Local) release(key string) {
	l.mu.Lock()
	delete(l.held, key)
	l.mu.Unlock()
}

func (l *Local) WithLease(ctx context.Context, key string, opts Options, fn func(ctx context.Context) error) error {
	interval := opts.WaitInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	for !l.tryAcquire(key) {
		if !opts.Wait {
			return ErrNotAcquired
		}
		if err := sleepWithJitter(ctx, interval, opts.WaitJitter); err != nil {
			return err
		}
	}
	defer l.release(key)
	return fn(ctx)
}
