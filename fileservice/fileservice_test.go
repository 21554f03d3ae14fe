package fileservice

import (
	"context"
	"errors"
	"testing"
	"time"

	"gasdb/cache"
	"gasdb/store"
	"gasdb/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

type countingDriver struct {
	store.BlobStoreDriver
	reads, writes int
	failReads     bool
}

func (d *countingDriver) ReadFile(ctx context.Context, handle string) ([]byte, error) {
	d.reads++
	if d.failReads {
		return nil, errors.New("boom")
	}
	return d.BlobStoreDriver.ReadFile(ctx, handle)
}

func (d *countingDriver) WriteFile(ctx context.Context, handle string, data []byte) error {
	d.writes++
	return d.BlobStoreDriver.WriteFile(ctx, handle, data)
}

func newTestService(driver store.BlobStoreDriver) *Service {
	return New(driver, cache.NewMemoryCache[*BlobEntry](nil), DefaultOptions())
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(memstore.New())

	doc := bson.M{"documents": bson.M{"a": bson.M{"name": "x"}}}
	require.NoError(t, svc.Write(ctx, "tasks.json", doc))

	got, err := svc.Read(ctx, "tasks.json")
	require.NoError(t, err)
	assert.Equal(t, "x", got["documents"].(bson.M)["a"].(bson.M)["name"])
}

func TestReadMissingReturnsErrNotExist(t *testing.T) {
	svc := newTestService(memstore.New())
	_, err := svc.Read(context.Background(), "missing.json")
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestWriteSuppressesIdenticalContent(t *testing.T) {
	ctx := context.Background()
	driver := &countingDriver{BlobStoreDriver: memstore.New()}
	svc := newTestService(driver)

	doc := bson.M{"documents": bson.M{}}
	require.NoError(t, svc.Write(ctx, "tasks.json", doc))
	assert.Equal(t, 1, driver.writes)

	require.NoError(t, svc.Write(ctx, "tasks.json", bson.M{"documents": bson.M{}}))
	assert.Equal(t, 1, driver.writes, "identical content should not re-hit the backend")

	require.NoError(t, svc.Write(ctx, "tasks.json", bson.M{"documents": bson.M{"a": 1}}))
	assert.Equal(t, 2, driver.writes, "changed content must hit the backend")
}

func TestReadCoalescesWithinWindow(t *testing.T) {
	ctx := context.Background()
	driver := &countingDriver{BlobStoreDriver: memstore.New()}
	svc := New(driver, cache.NewMemoryCache[*BlobEntry](nil), &Options{
		CoalesceWindow: time.Hour,
		CacheTTL:       time.Hour,
	})

	require.NoError(t, svc.Write(ctx, "tasks.json", bson.M{"documents": bson.M{}}))
	_, err := svc.Read(ctx, "tasks.json")
	require.NoError(t, err)
	_, err = svc.Read(ctx, "tasks.json")
	require.NoError(t, err)
	assert.Equal(t, 0, driver.reads, "a fresh write should satisfy reads from cache")
}

func TestCreateRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(memstore.New())
	require.NoError(t, svc.Create(ctx, "tasks.json", bson.M{"documents": bson.M{}}))
	err := svc.Create(ctx, "tasks.json", bson.M{"documents": bson.M{}})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestCircuitBreakerOpensAfterRepeatedFailures(t *testing.T) {
	ctx := context.Background()
	driver := &countingDriver{BlobStoreDriver: memstore.New(), failReads: true}
	svc := New(driver, cache.NewMemoryCache[*BlobEntry](nil), &Options{
		CoalesceWindow:   0,
		CacheTTL:         time.Hour,
		FailureThreshold: 2,
		CooldownPeriod:   time.Hour,
	})

	_, err := svc.Read(ctx, "missing.json")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	_, err = svc.Read(ctx, "missing.json")
	assert.ErrorIs(t, err, ErrBackendUnavailable)

	readsBeforeOpen := driver.reads
	_, err = svc.Read(ctx, "missing.json")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.Equal(t, readsBeforeOpen, driver.reads, "an open breaker must fail fast without calling the backend")
}

func TestInvalidateDropsCacheOnly(t *testing.T) {
	ctx := context.Background()
	driver := &countingDriver{BlobStoreDriver: memstore.New()}
	svc := New(driver, cache.NewMemoryCache[*BlobEntry](nil), &Options{
		CoalesceWindow: time.Hour,
		CacheTTL:       time.Hour,
	})

	require.NoError(t, svc.Write(ctx, "tasks.json", bson.M{"documents": bson.M{}}))
	require.NoError(t, svc.Invalidate(ctx, "tasks.json"))

	_, err := svc.Read(ctx, "tasks.json")
	require.NoError(t, err)
	assert.Equal(t, 1, driver.reads, "after invalidation a read must go to the backend")
}
