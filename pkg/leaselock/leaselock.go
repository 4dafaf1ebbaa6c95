// Package leaselock serializes graph rebuilds across processes with a
// renewable lease row in Postgres.
package leaselock

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/OFFIS-RIT/bookgraph/pkg/logger"
)

// RebuildKey guards the wipe-and-load sequence of a graph rebuild. Only
// one holder at a time may replace the persisted graph.
const RebuildKey = "bookgraph:graph-rebuild"

const (
	defaultTTL          = 5 * time.Minute
	defaultWaitInterval = 250 * time.Millisecond
	renewTimeout        = 15 * time.Second
	renewAttempts       = 3
)

var (
	// ErrNotAcquired is returned when the lease is held by someone else
	// and Options.Wait is false.
	ErrNotAcquired = errors.New("lease lock not acquired")
	// ErrLost is the cause of a lease context cancelled because renewing
	// the lease failed.
	ErrLost = errors.New("lease lock lost")
)

// Locker runs fn while holding the lease for key.
type Locker interface {
	WithLease(ctx context.Context, key string, opts Options, fn func(ctx context.Context) error) error
}

var (
	_ Locker = (*Client)(nil)
	_ Locker = (*Local)(nil)
)

type dbConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Client hands out leases stored in the rebuild_leases table.
type Client struct {
	db dbConn
}

// Options tune a lease. Zero values take the package defaults.
type Options struct {
	TTL        time.Duration
	RenewEvery time.Duration

	// Wait polls until the lease is free instead of failing with
	// ErrNotAcquired.
	Wait         bool
	WaitInterval time.Duration
	WaitJitter   time.Duration

	// TokenPrefix marks the holder in the lease row, e.g. "worker-".
	TokenPrefix string
}

func (o Options) withDefaults() Options {
	if o.TTL < time.Millisecond {
		o.TTL = defaultTTL
	}
	if o.RenewEvery <= 0 || o.RenewEvery >= o.TTL {
		o.RenewEvery = max(o.TTL/2, time.Second)
	}
	if o.WaitInterval <= 0 {
		o.WaitInterval = defaultWaitInterval
	}
	o.WaitJitter = max(o.WaitJitter, 0)
	return o
}

// Lease is a held lease. Context is cancelled with ErrLost as its cause
// when the lease cannot be renewed.
type Lease struct {
	Key   string
	Token string

	Context context.Context

	client *Client
	ttl    time.Duration
	cancel context.CancelCauseFunc

	stopOnce sync.Once
	stopCh   chan struct{}
}

func New(pool *pgxpool.Pool) *Client {
	return &Client{db: pool}
}

// WithLease acquires the lease, runs fn with a context that is cancelled
// when the lease is lost, and releases the lease afterwards.
func (c *Client) WithLease(ctx context.Context, key string, opts Options, fn func(ctx context.Context) error) error {
	lease, err := c.Acquire(ctx, key, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := lease.Release(context.Background()); err != nil {
			logger.Warn("[Lease] Release failed, row expires on its own", "key", key, "err", err)
		}
	}()
	return fn(lease.Context)
}

// Acquire takes the lease for key, or takes over an expired one.
func (c *Client) Acquire(ctx context.Context, key string, opts Options) (*Lease, error) {
	if key == "" {
		return nil, errors.New("lease lock key is empty")
	}
	opts = opts.withDefaults()

	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("lease token: %w", err)
	}
	token := opts.TokenPrefix + id

	for {
		ok, err := c.claim(ctx, key, token, opts.TTL)
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		if !opts.Wait {
			return nil, ErrNotAcquired
		}
		if err := sleepWithJitter(ctx, opts.WaitInterval, opts.WaitJitter); err != nil {
			return nil, err
		}
	}

	leaseCtx, cancel := context.WithCancelCause(ctx)
	l := &Lease{
		Key:     key,
		Token:   token,
		Context: leaseCtx,
		client:  c,
		ttl:     opts.TTL,
		cancel:  cancel,
		stopCh:  make(chan struct{}),
	}
	go l.keepAlive(opts.RenewEvery)

	logger.Debug("[Lease] Acquired", "key", key, "holder", token, "ttl", opts.TTL)
	return l, nil
}

// claim reports whether the row for key now belongs to token.
func (c *Client) claim(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	var got string
	err := c.db.QueryRow(ctx, claimSQL, key, token, ttl.Milliseconds()).Scan(&got)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("claim lease %s: %w", key, err)
	}
	return got != "", nil
}

// Release stops renewing, cancels the lease context and deletes the row if
// it still belongs to this lease.
func (l *Lease) Release(ctx context.Context) error {
	l.stopOnce.Do(func() {
		close(l.stopCh)
		l.cancel(context.Canceled)
	})
	_, err := l.client.db.Exec(ctx, releaseSQL, l.Key, l.Token)
	return err
}

func (l *Lease) keepAlive(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-l.Context.Done():
			return
		case <-t.C:
		}
		if err := l.extend(); err != nil {
			logger.Error("[Lease] Renew failed, cancelling holder", "key", l.Key, "err", err)
			l.cancel(err)
			return
		}
	}
}

// extend pushes expires_at forward. A missing row means someone took the
// lease over and yields ErrLost; transient errors are retried.
func (l *Lease) extend() error {
	var err error
	for attempt := range renewAttempts {
		if attempt > 0 {
			if err := sleepWithJitter(l.Context, 200*time.Millisecond, 0); err != nil {
				return err
			}
		}
		ctx, cancel := context.WithTimeout(l.Context, renewTimeout)
		var got string
		err = l.client.db.QueryRow(ctx, renewSQL, l.Key, l.Token, l.ttl.Milliseconds()).Scan(&got)
		cancel()
		if err == nil {
			return nil
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrLost
		}
	}
	return err
}

func sleepWithJitter(ctx context.Context, base, jitter time.Duration) error {
	d := base
	if jitter > 0 {
		d += time.Duration(rand.Int64N(int64(jitter) + 1))
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

const claimSQL = `
INSERT INTO rebuild_leases AS l (lease_key, holder, expires_at)
VALUES ($1, $2, now() + $3::bigint * interval '1 millisecond')
ON CONFLICT (lease_key) DO UPDATE
SET holder = EXCLUDED.holder, expires_at = EXCLUDED.expires_at
WHERE l.expires_at < now() OR l.holder = EXCLUDED.holder
RETURNING lease_key;
`

const renewSQL = `
UPDATE rebuild_leases
SET expires_at = now() + $3::bigint * interval '1 millisecond'
WHERE lease_key = $1 AND holder = $2
RETURNING lease_key;
`

const releaseSQL = `
DELETE FROM rebuild_leases WHERE lease_key = $1 AND holder = $2;
`
