package folio_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/folio-ledger/folio"
)

func TestSortedKeys_DedupesAndSorts(t *testing.T) {
	got := folio.SortedKeys([]string{"folio:t:b", "folio:t:a", "folio:t:b"})
	assert.Equal(t, []string{"folio:t:a", "folio:t:b"}, got)
}

func TestLockKey_IncludesTenant(t *testing.T) {
	assert.NotEqual(t, folio.LockKey("t1", "f1"), folio.LockKey("t2", "f1"))
}

func TestKeyedLocker_MutualExclusion(t *testing.T) {
	kl := folio.NewKeyedLocker()
	var inside, peak int32
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := kl.Lock(context.Background(), "k")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak)
	assert.Equal(t, 0, kl.Len(), "idle keys are dropped")
}

func TestKeyedLocker_HonoursContext(t *testing.T) {
	kl := folio.NewKeyedLocker()
	unlock, err := kl.Lock(context.Background(), "a", "b")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = kl.Lock(ctx, "c", "b")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// "c" was released when "b" timed out
	unlockC, err := kl.Lock(context.Background(), "c")
	require.NoError(t, err)
	unlockC()

	unlock()
	unlock() // idempotent
	assert.Equal(t, 0, kl.Len())
}

func TestKeyedLocker_OverlappingSetsDoNotDeadlock(t *testing.T) {
	kl := folio.NewKeyedLocker()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unlock, err := kl.Lock(ctx, "x", "y")
			if assert.NoError(t, err) {
				unlock()
			}
		}()
		go func() {
			defer wg.Done()
			unlock, err := kl.Lock(ctx, "y", "x")
			if assert.NoError(t, err) {
				unlock()
			}
		}()
	}
	wg.Wait()
}
