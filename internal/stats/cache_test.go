package stats

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), client
}

func cachedFixture() *fakeRepo {
	return &fakeRepo{orders: []Order{{
		ID:          "o1",
		SellerID:    "seller-1",
		CreatedAt:   day(2025, 4, 15),
		TotalAmount: money("50"),
		SubOrders:   []SubOrder{{ID: "s1", Status: StatusPaid, PlatformProfit: money("7.25")}},
	}}}
}

func TestReportServedFromCache(t *testing.T) {
	cache, _ := newTestCache(t)
	repo := cachedFixture()
	svc := NewService(repo, cache).WithNow(func() time.Time { return fixedNow })
	admin := Principal{UserID: "root", Role: RoleAdmin}
	ctx := context.Background()

	first, err := svc.AdminStats(ctx, admin, DateRange{})
	require.NoError(t, err)
	calls := repo.calls.Load()
	require.NotZero(t, calls)

	second, err := svc.AdminStats(ctx, admin, DateRange{})
	require.NoError(t, err)
	assert.Equal(t, calls, repo.calls.Load())
	assert.Equal(t, first, second)
	assert.Equal(t, "7.3", second.TotalProfit)
}

func TestCacheBumpForcesReload(t *testing.T) {
	cache, _ := newTestCache(t)
	repo := cachedFixture()
	svc := NewService(repo, cache).WithNow(func() time.Time { return fixedNow })
	admin := Principal{UserID: "root", Role: RoleAdmin}
	ctx := context.Background()

	_, err := svc.AdminStats(ctx, admin, DateRange{})
	require.NoError(t, err)
	calls := repo.calls.Load()

	require.NoError(t, cache.Bump(ctx))
	_, err = svc.AdminStats(ctx, admin, DateRange{})
	require.NoError(t, err)
	assert.Greater(t, repo.calls.Load(), calls)
}

func TestCacheKeysSeparateScopes(t *testing.T) {
	cache, _ := newTestCache(t)
	repo := cachedFixture()
	svc := NewService(repo, cache).WithNow(func() time.Time { return fixedNow })
	ctx := context.Background()

	_, err := svc.SellerStats(ctx, Principal{UserID: "seller-1", Role: RoleSeller}, DateRange{})
	require.NoError(t, err)
	calls := repo.calls.Load()

	other, err := svc.SellerStats(ctx, Principal{UserID: "seller-2", Role: RoleSeller}, DateRange{})
	require.NoError(t, err)
	assert.Greater(t, repo.calls.Load(), calls)
	assert.Equal(t, "0.0", other.TotalProfit)
}

func TestCacheFailuresAreNotCached(t *testing.T) {
	cache, client := newTestCache(t)
	repo := cachedFixture()
	repo.err = assert.AnError
	svc := NewService(repo, cache).WithNow(func() time.Time { return fixedNow })
	ctx := context.Background()

	_, err := svc.AdminStats(ctx, Principal{UserID: "root", Role: RoleAdmin}, DateRange{})
	require.ErrorIs(t, err, ErrStatsFetch)

	keys, err := client.Keys(ctx, "stats:report:*").Result()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestCacheVersionInitialisesAndBumps(t *testing.T) {
	cache, client := newTestCache(t)
	ctx := context.Background()

	ver, err := cache.Version(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, ver)

	period := mustPeriod(t, day(2025, 4, 1), day(2025, 4, 3))
	key, err := cache.ReportKey(ctx, AdminScope(), period, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "stats:report:v1:admin:2025-04-01:2025-04-03:2025-04", key)

	sub := client.Subscribe(ctx, BumpChannel)
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, cache.Bump(ctx))
	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2", msg.Payload)

	ver, err = cache.Version(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, ver)

	key, err = cache.ReportKey(ctx, AdminScope(), period, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "stats:report:v2:admin:2025-04-01:2025-04-03:2025-04", key)
}

func TestReportKeyFollowsScopeAndMonth(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	period := mustPeriod(t, day(2025, 4, 30), day(2025, 4, 30))
	seller := Scope{Viewpoint: ViewSeller, UserID: "seller-1"}

	april, err := cache.ReportKey(ctx, seller, period, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "stats:report:v1:seller:seller-1:2025-04-30:2025-04-30:2025-04", april)

	may, err := cache.ReportKey(ctx, seller, period, time.Date(2025, 5, 1, 0, 5, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.NotEqual(t, april, may)
}

func TestApplyNeverLowersVersion(t *testing.T) {
	cache, client := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, client.Set(ctx, cacheVersionKey, 5, 0).Err())

	require.NoError(t, cache.apply(ctx, "3"))
	ver, err := cache.Version(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, ver)

	require.NoError(t, cache.apply(ctx, "9"))
	ver, err = cache.Version(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 9, ver)

	require.NoError(t, cache.apply(ctx, "refresh"))
	ver, err = cache.Version(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 10, ver)
}

func TestCachedReportKeepsEmptyTopSellers(t *testing.T) {
	cache, client := newTestCache(t)
	repo := &fakeRepo{}
	svc := NewService(repo, cache).WithNow(func() time.Time { return fixedNow })
	admin := Principal{UserID: "root", Role: RoleAdmin}
	ctx := context.Background()

	first, err := svc.AdminStats(ctx, admin, DateRange{})
	require.NoError(t, err)
	calls := repo.calls.Load()

	keys, err := client.Keys(ctx, "stats:report:*").Result()
	require.NoError(t, err)
	require.Len(t, keys, 1)
	stored, err := client.Get(ctx, keys[0]).Result()
	require.NoError(t, err)
	assert.Contains(t, stored, `"topSellers":[]`)

	second, err := svc.AdminStats(ctx, admin, DateRange{})
	require.NoError(t, err)
	assert.Equal(t, calls, repo.calls.Load())
	assert.Equal(t, first, second)
	assert.NotNil(t, second.TopSellers)

	raw, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"topSellers":[]`)
}

func TestCacheRebuildsUnreadableEntries(t *testing.T) {
	cache, client := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, client.Set(ctx, "stats:report:broken", "{not json", 0).Err())

	report, err := cache.Report(ctx, "stats:report:broken", func(context.Context) (Report, error) {
		return Report{Viewpoint: ViewAdmin, TotalProfit: "1.0", TopSellers: []TopSeller{}}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "1.0", report.TotalProfit)

	stored, err := client.Get(ctx, "stats:report:broken").Result()
	require.NoError(t, err)
	assert.Contains(t, stored, `"totalProfit":"1.0"`)
}

func TestNilCachePassesThrough(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	key, err := cache.ReportKey(ctx, AdminScope(), mustPeriod(t, day(2025, 4, 1), day(2025, 4, 1)), fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "stats:report:admin:2025-04-01:2025-04-01:2025-04", key)
	require.NoError(t, cache.Bump(ctx))
	require.NoError(t, cache.ListenForInvalidation(ctx, ""))

	report, err := cache.Report(ctx, key, func(context.Context) (Report, error) {
		return Report{TotalSales: "2.0"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "2.0", report.TotalSales)

	_, err = cache.Report(ctx, key, nil)
	require.Error(t, err)
}
