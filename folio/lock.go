package folio

import (
	"context"
	"sort"
	"sync"
)

// Locker serializes mutations per folio. Lock acquires every key in
// ascending order, so two callers locking overlapping sets cannot deadlock.
// The returned func releases all keys.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (unlock func(), err error)
}

// LockKey is the lock name for one folio.
func LockKey(tenantID TenantID, id FolioID) string {
	return "folio:" + string(tenantID) + ":" + string(id)
}

// SortedKeys dedupes and sorts lock keys.
func SortedKeys(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// KEYED LOCKER - in-process per-key mutexes
// =============================================================================

// KeyedLocker holds one mutex per key, created on demand and dropped when
// nobody holds or waits for it.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedMutex
}

type keyedMutex struct {
	ch   chan struct{}
	refs int
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*keyedMutex)}
}

func (kl *KeyedLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = SortedKeys(keys)
	held := make([]string, 0, len(keys))
	for _, k := range keys {
		if err := kl.acquire(ctx, k); err != nil {
			kl.releaseAll(held)
			return nil, err
		}
		held = append(held, k)
	}
	var once sync.Once
	return func() { once.Do(func() { kl.releaseAll(held) }) }, nil
}

func (kl *KeyedLocker) acquire(ctx context.Context, key string) error {
	kl.mu.Lock()
	m, ok := kl.locks[key]
	if !ok {
		m = &keyedMutex{ch: make(chan struct{}, 1)}
		kl.locks[key] = m
	}
	m.refs++
	kl.mu.Unlock()

	select {
	case m.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		kl.mu.Lock()
		kl.unref(key, m)
		kl.mu.Unlock()
		return ctx.Err()
	}
}

func (kl *KeyedLocker) releaseAll(keys []string) {
	for i := len(keys) - 1; i >= 0; i-- {
		kl.mu.Lock()
		m := kl.locks[keys[i]]
		<-m.ch
		kl.unref(keys[i], m)
		kl.mu.Unlock()
	}
}

func (kl *KeyedLocker) unref(key string, m *keyedMutex) {
	m.refs--
	if m.refs == 0 {
		delete(kl.locks, key)
	}
}

// Len reports how many keys are currently held or waited on.
func (kl *KeyedLocker) Len() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.locks)
}
