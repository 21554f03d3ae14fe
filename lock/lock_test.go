package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gasdb/master"
	"gasdb/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessLockSerializesAcquisition(t *testing.T) {
	pl := NewProcessLock(time.Second)
	ctx := context.Background()

	var counter int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := pl.Acquire(ctx)
			require.NoError(t, err)
			defer release()
			atomic.AddInt64(&counter, 1)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 20, counter)
}

func TestProcessLockTimesOutWhenHeld(t *testing.T) {
	pl := NewProcessLock(MinTimeout)
	ctx := context.Background()

	release, err := pl.Acquire(ctx)
	require.NoError(t, err)
	defer release()

	_, err = pl.Acquire(ctx)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestClampTimeoutEnforcesMinimumAndDefault(t *testing.T) {
	assert.Equal(t, DefaultTimeout, ClampTimeout(0))
	assert.Equal(t, MinTimeout, ClampTimeout(time.Millisecond))
	assert.Equal(t, 5*time.Minute, ClampTimeout(5*time.Minute))
}

func TestServiceCollectionLockRoundTrip(t *testing.T) {
	ctx := context.Background()
	idx := master.NewIndex(memstore.New(), "GASDB_MASTER_INDEX")
	svc := NewService(NewProcessLock(time.Second), idx, time.Minute)

	require.NoError(t, svc.AcquireCollectionLock(ctx, "tasks", "op-1"))

	locked, err := svc.IsCollectionLocked(ctx, "tasks")
	require.NoError(t, err)
	assert.True(t, locked)

	err = svc.AcquireCollectionLock(ctx, "tasks", "op-2")
	assert.ErrorIs(t, err, master.ErrLockHeld)

	require.NoError(t, svc.ReleaseCollectionLock(ctx, "tasks", "op-1"))
	locked, err = svc.IsCollectionLocked(ctx, "tasks")
	require.NoError(t, err)
	assert.False(t, locked)
}
