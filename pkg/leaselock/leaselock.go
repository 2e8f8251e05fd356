// Package leaselock guards ingestion runs with a Postgres-backed
// lease. Two ingest processes racing on the same patch would each
// delete and re-insert the patch subgraph; the lease serializes them.
// Leases carry a TTL and are renewed in the background, so a crashed
// holder frees the lock once the TTL lapses.
package leaselock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	// ErrBusy is returned when another holder owns a live lease.
	ErrBusy = errors.New("lease held by another process")
	// ErrLost is the cancel cause when a renewal finds the lease gone.
	ErrLost = errors.New("lease lost")
)

type dbConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Client acquires leases against the app_locks table.
type Client struct {
	db dbConn
}

func New(pool *pgxpool.Pool) *Client {
	return &Client{db: pool}
}

// IngestKey names the lease guarding ingestion of one patch.
func IngestKey(patchID string) string {
	return "ingest:" + patchID
}

// Lease is a held lock. Context is derived from the acquiring context
// and is canceled with ErrLost if a renewal fails, so work running
// under the lease stops when exclusivity can no longer be guaranteed.
type Lease struct {
	Key     string
	Token   string
	Context context.Context

	client   *Client
	ttl      time.Duration
	cancel   context.CancelCauseFunc
	stopOnce sync.Once
	stopCh   chan struct{}
}

// Acquire takes the lease or fails fast with ErrBusy. The lease is
// renewed every ttl/2 until released.
func (c *Client) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if key == "" {
		return nil, errors.New("lease key is empty")
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}

	token, err := gonanoid.New()
	if err != nil {
		return nil, err
	}

	var returnedKey string
	err = c.db.QueryRow(ctx, tryAcquireSQL, key, token, ttl.Milliseconds()).Scan(&returnedKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBusy
	}
	if err != nil {
		return nil, err
	}

	leaseCtx, cancel := context.WithCancelCause(ctx)
	l := &Lease{
		Key:     key,
		Token:   token,
		Context: leaseCtx,
		client:  c,
		ttl:     ttl,
		cancel:  cancel,
		stopCh:  make(chan struct{}),
	}
	go l.renewLoop()
	return l, nil
}

// WithLease runs fn under the lease and releases it afterwards.
func (c *Client) WithLease(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	lease, err := c.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer func() {
		_ = lease.Release(context.Background())
	}()
	return fn(lease.Context)
}

// Release drops the lease. Only the holding token can delete the row,
// so releasing an already-expired, re-acquired lock is harmless.
func (l *Lease) Release(ctx context.Context) error {
	l.stopOnce.Do(func() {
		close(l.stopCh)
		l.cancel(context.Canceled)
	})
	_, err := l.client.db.Exec(ctx, releaseSQL, l.Key, l.Token)
	return err
}

func (l *Lease) renewLoop() {
	interval := l.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-l.Context.Done():
			return
		case <-t.C:
			if err := l.renewOnce(); err != nil {
				l.cancel(err)
				return
			}
		}
	}
}

func (l *Lease) renewOnce() error {
	renewCtx, cancel := context.WithTimeout(l.Context, 10*time.Second)
	defer cancel()

	var returnedKey string
	err := l.client.db.QueryRow(renewCtx, renewSQL, l.Key, l.Token, l.ttl.Milliseconds()).Scan(&returnedKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrLost
	}
	return err
}

const tryAcquireSQL = `
INSERT INTO app_locks (lock_key, locked_by, expires_at)
VALUES ($1, $2, now() + ($3::bigint * interval '1 millisecond'))
ON CONFLICT (lock_key) DO UPDATE
SET locked_by  = EXCLUDED.locked_by,
    expires_at = EXCLUDED.expires_at
WHERE app_locks.expires_at < now()
   OR app_locks.locked_by = EXCLUDED.locked_by
RETURNING lock_key;
`

const renewSQL = `
UPDATE app_locks
SET expires_at = now() + ($3::bigint * interval '1 millisecond')
WHERE lock_key = $1 AND locked_by = $2
RETURNING lock_key;
`

const releaseSQL = `
DELETE FROM app_locks
WHERE lock_key = $1 AND locked_by = $2;
`
