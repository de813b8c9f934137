// Package redislocker implements folio.Locker on Redis so that several
// server replicas sharing one database serialize writes to the same folio.
package redislocker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/warp/folio-ledger/folio"
)

const (
	DefaultTTL     = 10 * time.Second
	DefaultBackoff = 50 * time.Millisecond
	keyPrefix      = "lock:"
)

// Locker obtains one redislock per folio key. Keys are taken in ascending
// order and released in reverse.
//
// TTL bounds how long a crashed holder can block a folio. It must exceed the
// slowest mutation; a lock that expires mid-write is no longer exclusive.
type Locker struct {
	client  *redislock.Client
	ttl     time.Duration
	backoff time.Duration
	logger  *logrus.Logger
}

var _ folio.Locker = (*Locker)(nil)

func New(rdb *redis.Client, ttl time.Duration, logger *logrus.Logger) *Locker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Locker{
		client:  redislock.New(rdb),
		ttl:     ttl,
		backoff: DefaultBackoff,
		logger:  logger,
	}
}

// Dial connects to addr and verifies the connection with PING.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

// Lock blocks until every key is held, ctx is done, or the TTL passes
// without obtaining a key. On failure nothing stays held.
func (l *Locker) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = folio.SortedKeys(keys)
	held := make([]*redislock.Lock, 0, len(keys))

	opts := &redislock.Options{RetryStrategy: redislock.LinearBackoff(l.backoff)}
	for _, k := range keys {
		waitCtx, cancel := context.WithTimeout(ctx, l.ttl)
		lock, err := l.client.Obtain(waitCtx, keyPrefix+k, l.ttl, opts)
		cancel()
		if err != nil {
			l.release(held)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if errors.Is(err, redislock.ErrNotObtained) {
				return nil, fmt.Errorf("%w: lock %s busy", folio.ErrRetryable, k)
			}
			return nil, fmt.Errorf("obtain lock %s: %w", k, err)
		}
		held = append(held, lock)
	}

	var once sync.Once
	return func() { once.Do(func() { l.release(held) }) }, nil
}

func (l *Locker) release(held []*redislock.Lock) {
	// Release must run even when the caller's ctx is already cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := len(held) - 1; i >= 0; i-- {
		if err := held[i].Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.WithFields(logrus.Fields{
				"field": "redislocker",
				"key":   held[i].Key(),
			}).Warn("failed to release redis lock: " + err.Error())
		}
	}
}
