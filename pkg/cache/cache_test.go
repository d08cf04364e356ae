package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/kvstore"
)

func newTestCache() *Cache {
	return New(kvstore.NewMemoryStore(), time.Hour, 30*time.Second)
}

func TestFingerprintStableAcrossKeyOrder(t *testing.T) {
	a, err := Fingerprint("render", map[string]interface{}{"width": 100, "height": 200})
	require.NoError(t, err)
	b, err := Fingerprint("render", map[string]interface{}{"height": 200, "width": 100})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFingerprintDiffersByType(t *testing.T) {
	a, err := Fingerprint("render", map[string]interface{}{"width": 100})
	require.NoError(t, err)
	b, err := Fingerprint("quality", map[string]interface{}{"width": 100})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCacheGetPutRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestCache()

	_, ok, err := c.Get(ctx, "fp1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, "fp1", "render", "wf-1", json.RawMessage(`{"ok":true}`), 0))

	e, ok, err := c.Get(ctx, "fp1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "render", e.ResultType)
	assert.Equal(t, "wf-1", e.WorkflowID)
}

func TestCacheGetTreatsExpiredEntryAsMiss(t *testing.T) {
	ctx := context.Background()
	c := newTestCache()

	require.NoError(t, c.Put(ctx, "fp1", "render", "wf-1", json.RawMessage(`{}`), time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, ok, err := c.Get(ctx, "fp1")
	require.NoError(t, err)
	assert.False(t, ok, "an entry past its ExpiresAt must be treated as a miss even if the store hasn't swept it yet")
}

func TestCacheReservationSingleFlight(t *testing.T) {
	ctx := context.Background()
	c := newTestCache()

	won, owner, err := c.Reserve(ctx, "fp1", "task-a")
	require.NoError(t, err)
	assert.True(t, won)
	assert.Empty(t, owner)

	won, owner, err = c.Reserve(ctx, "fp1", "task-b")
	require.NoError(t, err)
	assert.False(t, won)
	assert.Equal(t, "task-a", owner)

	require.NoError(t, c.Release(ctx, "fp1"))
	won, _, err = c.Reserve(ctx, "fp1", "task-c")
	require.NoError(t, err)
	assert.True(t, won, "releasing must free the reservation for a new claimant")
}

func TestCacheInvalidateByType(t *testing.T) {
	ctx := context.Background()
	c := newTestCache()

	require.NoError(t, c.Put(ctx, "fp1", "render", "", json.RawMessage(`{}`), 0))
	require.NoError(t, c.Put(ctx, "fp2", "render", "", json.RawMessage(`{}`), 0))
	require.NoError(t, c.Put(ctx, "fp3", "quality", "", json.RawMessage(`{}`), 0))

	n, err := c.InvalidateByType(ctx, "render")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, ok, err := c.Get(ctx, "fp3")
	require.NoError(t, err)
	assert.True(t, ok, "other result types must survive invalidation")
}

func TestCacheInvalidateRemovesOneEntry(t *testing.T) {
	ctx := context.Background()
	c := newTestCache()

	require.NoError(t, c.Put(ctx, "fp1", "render", "", json.RawMessage(`{}`), 0))
	require.NoError(t, c.Put(ctx, "fp2", "render", "", json.RawMessage(`{}`), 0))

	require.NoError(t, c.Invalidate(ctx, "fp1"))

	_, ok, err := c.Get(ctx, "fp1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = c.Get(ctx, "fp2")
	require.NoError(t, err)
	assert.True(t, ok, "invalidating one fingerprint must not touch others")
}

func TestCacheClearRemovesEverything(t *testing.T) {
	ctx := context.Background()
	c := newTestCache()

	for i := 0; i < 25; i++ {
		require.NoError(t, c.Put(ctx, fmt.Sprintf("fp%d", i), "render", "", json.RawMessage(`{}`), 0))
	}

	n, err := c.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 25, n, "clear must sweep the whole cache, including a batch of 20 or more keys")

	_, ok, err := c.Get(ctx, "fp0")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheClearOnEmptyCacheIsNoop(t *testing.T) {
	ctx := context.Background()
	c := newTestCache()

	n, err := c.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
