package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	rd "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	redisutil "seckill/pkg/redis"
)

type testShop struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func newTestCache(t *testing.T, opts Options) (*miniredis.Miniredis, *rd.Client, *Cache, *RebuildPool) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	pool := NewRebuildPool(2, 4)
	t.Cleanup(pool.Close)
	c := New(rdb, redisutil.NewLock(rdb), pool, zerolog.Nop(), opts)
	return mr, rdb, c, pool
}

// countingLoader 统计回查真源的次数。
func countingLoader(calls *atomic.Int64, v *testShop) Loader[testShop] {
	return func(ctx context.Context, id int64) (*testShop, error) {
		calls.Add(1)
		return v, nil
	}
}

func TestPassThroughSentinelShieldsLoader(t *testing.T) {
	_, _, c, _ := newTestCache(t, Options{})
	ctx := context.Background()

	var calls atomic.Int64
	load := countingLoader(&calls, nil)

	// 首次未命中回查真源，真源为空写哨兵
	_, err := QueryWithPassThrough(ctx, c, "shop", 404, time.Minute, load)
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, int64(1), calls.Load())

	// 哨兵命中，不再打到真源
	_, err = QueryWithPassThrough(ctx, c, "shop", 404, time.Minute, load)
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, int64(1), calls.Load())
}

func TestPassThroughHitSkipsLoader(t *testing.T) {
	_, _, c, _ := newTestCache(t, Options{})
	ctx := context.Background()

	var calls atomic.Int64
	load := countingLoader(&calls, &testShop{ID: 1, Name: "海底捞"})

	v, err := QueryWithPassThrough(ctx, c, "shop", 1, time.Minute, load)
	require.NoError(t, err)
	require.Equal(t, "海底捞", v.Name)
	require.Equal(t, int64(1), calls.Load())

	v, err = QueryWithPassThrough(ctx, c, "shop", 1, time.Minute, load)
	require.NoError(t, err)
	require.Equal(t, "海底捞", v.Name)
	require.Equal(t, int64(1), calls.Load())
}

func TestPassThroughSentinelExpires(t *testing.T) {
	mr, _, c, _ := newTestCache(t, Options{SentinelTTL: time.Second})
	ctx := context.Background()

	var calls atomic.Int64
	load := countingLoader(&calls, nil)

	_, err := QueryWithPassThrough(ctx, c, "shop", 404, time.Minute, load)
	require.ErrorIs(t, err, ErrNotFound)

	// 哨兵过期后重新回查真源
	mr.FastForward(2 * time.Second)
	_, err = QueryWithPassThrough(ctx, c, "shop", 404, time.Minute, load)
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, int64(2), calls.Load())
}

func TestMutexRetryCeiling(t *testing.T) {
	_, rdb, c, _ := newTestCache(t, Options{RetryInterval: 5 * time.Millisecond, MaxRetries: 3})
	ctx := context.Background()

	// 外部持有重建锁且一直不放，等待方必须在上限内退出
	require.NoError(t, rdb.Set(ctx, redisutil.LockKey("shop", 1), "other-holder", time.Minute).Err())

	var calls atomic.Int64
	start := time.Now()
	_, err := QueryWithMutex(ctx, c, "shop", 1, time.Minute, countingLoader(&calls, &testShop{ID: 1}))
	require.ErrorIs(t, err, ErrRebuildTimeout)
	require.Equal(t, int64(0), calls.Load())
	require.Less(t, time.Since(start), time.Second)
}

func TestMutexSingleRebuildUnderContention(t *testing.T) {
	_, _, c, _ := newTestCache(t, Options{RetryInterval: 10 * time.Millisecond})
	ctx := context.Background()

	var calls atomic.Int64
	load := func(ctx context.Context, id int64) (*testShop, error) {
		calls.Add(1)
		time.Sleep(30 * time.Millisecond)
		return &testShop{ID: id, Name: "海底捞"}, nil
	}

	const readers = 8
	var wg sync.WaitGroup
	var failures atomic.Int64
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := QueryWithMutex(ctx, c, "shop", 1, time.Minute, load)
			if err != nil || v == nil || v.Name != "海底捞" {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int64(0), failures.Load())
	// 只有持锁者回查真源，其余等待后重读缓存
	require.Equal(t, int64(1), calls.Load())
}

func TestMutexRebuildReleasesLock(t *testing.T) {
	mr, _, c, _ := newTestCache(t, Options{})
	ctx := context.Background()

	var calls atomic.Int64
	_, err := QueryWithMutex(ctx, c, "shop", 1, time.Minute, countingLoader(&calls, &testShop{ID: 1}))
	require.NoError(t, err)
	require.False(t, mr.Exists(redisutil.LockKey("shop", 1)))
}

func TestLogicalExpireUnwarmedRebuildsSynchronously(t *testing.T) {
	_, _, c, _ := newTestCache(t, Options{})
	ctx := context.Background()

	var calls atomic.Int64
	v, err := QueryWithLogicalExpire(ctx, c, "shop", 1, time.Minute, countingLoader(&calls, &testShop{ID: 1, Name: "海底捞"}))
	require.NoError(t, err)
	require.Equal(t, "海底捞", v.Name)
	require.Equal(t, int64(1), calls.Load())
}

func TestLogicalExpireFreshHitSkipsLoader(t *testing.T) {
	_, _, c, _ := newTestCache(t, Options{})
	ctx := context.Background()

	require.NoError(t, SetLogical(ctx, c, "shop", 1, &testShop{ID: 1, Name: "海底捞"}, time.Minute))

	var calls atomic.Int64
	v, err := QueryWithLogicalExpire(ctx, c, "shop", 1, time.Minute, countingLoader(&calls, nil))
	require.NoError(t, err)
	require.Equal(t, "海底捞", v.Name)
	require.Equal(t, int64(0), calls.Load())
}

func TestLogicalExpireStaleReadTriggersAsyncRefresh(t *testing.T) {
	_, _, c, _ := newTestCache(t, Options{})
	ctx := context.Background()

	// 写入一条已经逻辑过期的旧值
	require.NoError(t, SetLogical(ctx, c, "shop", 1, &testShop{ID: 1, Name: "旧店名"}, -time.Second))

	var calls atomic.Int64
	load := countingLoader(&calls, &testShop{ID: 1, Name: "新店名"})

	// 过期条目立刻返回旧值，不阻塞读路径
	v, err := QueryWithLogicalExpire(ctx, c, "shop", 1, time.Minute, load)
	require.NoError(t, err)
	require.Equal(t, "旧店名", v.Name)

	// 后台刷新完成后读到新值
	require.Eventually(t, func() bool {
		v, err := QueryWithLogicalExpire(ctx, c, "shop", 1, time.Minute, load)
		return err == nil && v.Name == "新店名"
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, int64(1), calls.Load())
}

func TestLogicalExpireSaturatedPoolReleasesLock(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	// 单工人单槽位的池，先塞满再触发刷新
	pool := NewRebuildPool(1, 1)
	t.Cleanup(pool.Close)
	c := New(rdb, redisutil.NewLock(rdb), pool, zerolog.Nop(), Options{})
	ctx := context.Background()

	release := make(chan struct{})
	require.True(t, pool.TrySubmit(func() { <-release })) // 占住工人
	require.True(t, pool.TrySubmit(func() {}))            // 占住队列
	defer close(release)

	require.NoError(t, SetLogical(ctx, c, "shop", 1, &testShop{ID: 1, Name: "旧店名"}, -time.Second))

	var calls atomic.Int64
	v, err := QueryWithLogicalExpire(ctx, c, "shop", 1, time.Minute, countingLoader(&calls, &testShop{ID: 1, Name: "新店名"}))
	require.NoError(t, err)
	require.Equal(t, "旧店名", v.Name)

	// 池满时放弃刷新但必须释放锁，下一轮读还能再发起
	require.False(t, mr.Exists(redisutil.LockKey("shop", 1)))
	require.Equal(t, int64(0), calls.Load())
}

func TestLogicalExpireSentinel(t *testing.T) {
	_, rdb, c, _ := newTestCache(t, Options{})
	ctx := context.Background()

	require.NoError(t, rdb.Set(ctx, redisutil.CacheKey("shop", 404), "", time.Minute).Err())

	var calls atomic.Int64
	_, err := QueryWithLogicalExpire(ctx, c, "shop", 404, time.Minute, countingLoader(&calls, nil))
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, int64(0), calls.Load())
}
