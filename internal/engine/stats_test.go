package engine

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	prom "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/leasehold/internal/model"
	"github.com/imamik/leasehold/internal/platform/cache"
	testutil "github.com/imamik/leasehold/internal/testing"
)

func withCache(t *testing.T, te *testEngine) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	te.cache = cache.NewWithClient(client, "leasehold:")
	return mr
}

func TestResourceStats_Cached(t *testing.T) {
	te := newTestEngine(t, nil)
	mr := withCache(t, te)
	ctx := testutil.TestContext(t)
	owner := testutil.SeedAccount(t, te.store, "10")
	res := testutil.SeedResource(t, te.store, owner, model.StatusOnline, 1100)

	first, err := te.ResourceStats(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, 1100, first.VMID)
	assert.True(t, first.Running())

	second, err := te.ResourceStats(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, te.hv.StatusCalls, 1)
	assert.True(t, mr.Exists("leasehold:"+resourceStatsKey(res.ID)))

	t.Run("expires after the ttl", func(t *testing.T) {
		mr.FastForward(te.cfg.Cache.ResourceStatsTTL + 1)
		_, err := te.ResourceStats(ctx, res.ID)
		require.NoError(t, err)
		assert.Len(t, te.hv.StatusCalls, 2)
	})

	t.Run("power changes invalidate", func(t *testing.T) {
		require.NoError(t, te.StopResource(ctx, res.ID))
		assert.False(t, mr.Exists("leasehold:"+resourceStatsKey(res.ID)))
	})
}

func TestResourceStats_WithoutCache(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := testutil.TestContext(t)
	owner := testutil.SeedAccount(t, te.store, "10")
	res := testutil.SeedResource(t, te.store, owner, model.StatusOnline, 1110)

	for range 2 {
		_, err := te.ResourceStats(ctx, res.ID)
		require.NoError(t, err)
	}
	assert.Len(t, te.hv.StatusCalls, 2)
}

func TestPlatformStats(t *testing.T) {
	te := newTestEngine(t, nil)
	mr := withCache(t, te)
	ctx := testutil.TestContext(t)
	owner := testutil.SeedAccount(t, te.store, "10")
	testutil.SeedResource(t, te.store, owner, model.StatusOnline, 1120)
	testutil.SeedResource(t, te.store, owner, model.StatusStopped, 1121)

	stats, err := te.PlatformStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Accounts)
	assert.Equal(t, int64(1), stats.Resources[model.StatusOnline])
	assert.Equal(t, int64(1), stats.Resources[model.StatusStopped])
	assert.True(t, mr.Exists("leasehold:"+platformStatsKey))

	// Served from the cache until the ttl passes.
	testutil.SeedAccount(t, te.store, "5")
	cached, err := te.PlatformStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cached.Accounts)
}

func TestProvisionOutcomeMetrics(t *testing.T) {
	te := newTestEngine(t, nil).started(t)
	ctx := testutil.TestContext(t)
	owner := testutil.SeedAccount(t, te.store, "10")

	before := prom.ToFloat64(provisionTotal.WithLabelValues("online"))
	alloc := allocateFor(t, te, owner)
	require.NoError(t, te.Provision(ctx, alloc.ResourceID))
	assert.Equal(t, before+1, prom.ToFloat64(provisionTotal.WithLabelValues("online")))
}
