// Package cache 提供读穿透式缓存一致性层，针对缓存穿透与缓存击穿
// 提供三种可互换的重建策略：直写哨兵、互斥重建、逻辑过期重建。
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	rd "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	redisutil "seckill/pkg/redis"
)

var (
	// ErrNotFound 真源中不存在该实体（含哨兵命中），业务结果而非故障。
	ErrNotFound = errors.New("cache: entity not found")
	// ErrRebuildTimeout 互斥重建等待超过重试上限，保证持续争用下的活性。
	ErrRebuildTimeout = errors.New("cache: rebuild wait timed out")
)

// Loader 真源回查函数，返回 (nil, nil) 表示实体不存在。
type Loader[T any] func(ctx context.Context, id int64) (*T, error)

// Options 缓存层参数，零值字段取默认。
type Options struct {
	SentinelTTL    time.Duration // 空值哨兵 TTL，防穿透
	LockTTL        time.Duration // 重建锁 TTL，崩溃兜底
	RetryInterval  time.Duration // 互斥重建未抢到锁时的休眠间隔
	MaxRetries     int           // 互斥重建整体重试上限
	RebuildTimeout time.Duration // 异步重建任务的回查超时
}

func (o *Options) fill() {
	if o.SentinelTTL <= 0 {
		o.SentinelTTL = time.Minute
	}
	if o.LockTTL <= 0 {
		o.LockTTL = 10 * time.Second
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 50 * time.Millisecond
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 50
	}
	if o.RebuildTimeout <= 0 {
		o.RebuildTimeout = 5 * time.Second
	}
}

// redisData 逻辑过期条目：数据本体加一个独立于物理 TTL 的逻辑过期时间。
type redisData struct {
	Data     json.RawMessage `json:"data"`
	ExpireAt time.Time       `json:"expire_at"`
}

// Cache 缓存一致性层。与秒杀路径正交，共享同一把分布式锁与同一 Redis。
type Cache struct {
	rdb  *rd.Client
	lock *redisutil.Lock
	pool *RebuildPool
	log  zerolog.Logger
	opts Options
}

func New(rdb *rd.Client, lock *redisutil.Lock, pool *RebuildPool, log zerolog.Logger, opts Options) *Cache {
	opts.fill()
	return &Cache{rdb: rdb, lock: lock, pool: pool, log: log, opts: opts}
}

// QueryWithPassThrough 直查策略：未命中时阻塞调用方回查真源；
// 真源为空写入短 TTL 空串哨兵，命中哨兵直接返回 ErrNotFound 不再打到真源。
func QueryWithPassThrough[T any](ctx context.Context, c *Cache, typ string, id int64, ttl time.Duration, load Loader[T]) (*T, error) {
	key := redisutil.CacheKey(typ, id)
	val, err := c.rdb.Get(ctx, key).Result()
	if err == nil {
		return decodeEntry[T](val)
	}
	if !errors.Is(err, rd.Nil) {
		return nil, err
	}

	v, err := load(ctx, id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		if err := c.rdb.Set(ctx, key, "", c.opts.SentinelTTL).Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}

	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if err := c.rdb.Set(ctx, key, b, ttl).Err(); err != nil {
		return nil, err
	}
	return v, nil
}

// QueryWithMutex 互斥重建策略：未命中时抢 lock:{typ}:{id}，
// 持有者回查真源并回填，未抢到的调用方休眠固定间隔后整体重读。
// 重试有上限，超限返回 ErrRebuildTimeout（原始设计无界，这里补了活性保证）。
func QueryWithMutex[T any](ctx context.Context, c *Cache, typ string, id int64, ttl time.Duration, load Loader[T]) (*T, error) {
	key := redisutil.CacheKey(typ, id)
	lockKey := redisutil.LockKey(typ, id)

	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		val, err := c.rdb.Get(ctx, key).Result()
		if err == nil {
			return decodeEntry[T](val)
		}
		if !errors.Is(err, rd.Nil) {
			return nil, err
		}

		token, ok, err := c.lock.TryLock(ctx, lockKey, c.opts.LockTTL)
		if err != nil {
			return nil, err
		}
		if !ok {
			// 别人正在重建，睡一会重读
			if err := sleepCtx(ctx, c.opts.RetryInterval); err != nil {
				return nil, err
			}
			continue
		}

		v, err := rebuildLocked(ctx, c, key, lockKey, token, id, ttl, load)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, ErrNotFound
		}
		return v, nil
	}
	return nil, ErrRebuildTimeout
}

// rebuildLocked 持锁回查真源并回填缓存，锁一定会被释放。
func rebuildLocked[T any](ctx context.Context, c *Cache, key, lockKey, token string, id int64, ttl time.Duration, load Loader[T]) (*T, error) {
	defer func() {
		if err := c.lock.Unlock(ctx, lockKey, token); err != nil {
			c.log.Error().Err(err).Str("key", lockKey).Msg("release rebuild lock")
		}
	}()

	v, err := load(ctx, id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		if err := c.rdb.Set(ctx, key, "", c.opts.SentinelTTL).Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if err := c.rdb.Set(ctx, key, b, ttl).Err(); err != nil {
		return nil, err
	}
	return v, nil
}

// QueryWithLogicalExpire 逻辑过期策略：条目不设物理 TTL，自带逻辑过期时间。
// 未过期直接命中；过期则立刻返回旧值，同时尝试抢锁把重建交给有界工作池，
// 没抢到锁说明已有刷新在途，继续用旧值。读路径永不阻塞，换取有界的陈旧窗口。
func QueryWithLogicalExpire[T any](ctx context.Context, c *Cache, typ string, id int64, logicalTTL time.Duration, load Loader[T]) (*T, error) {
	key := redisutil.CacheKey(typ, id)
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, rd.Nil) {
		// 未预热：同步重建一次
		return rebuildLogical(ctx, c, typ, id, logicalTTL, load)
	}
	if err != nil {
		return nil, err
	}
	if val == "" {
		return nil, ErrNotFound
	}

	var entry redisData
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal(entry.Data, &out); err != nil {
		return nil, err
	}

	if time.Now().Before(entry.ExpireAt) {
		return &out, nil
	}

	// 已过期：先拿到返回值，再看能不能发起后台刷新
	lockKey := redisutil.LockKey(typ, id)
	token, ok, err := c.lock.TryLock(ctx, lockKey, c.opts.LockTTL)
	if err != nil {
		c.log.Error().Err(err).Str("key", lockKey).Msg("try refresh lock")
		return &out, nil
	}
	if ok {
		submitted := c.pool.TrySubmit(func() {
			// 后台刷新任务无取消句柄，带超时的独立 ctx 兜底
			bgCtx, cancel := context.WithTimeout(context.Background(), c.opts.RebuildTimeout)
			defer cancel()
			defer func() {
				if err := c.lock.Unlock(bgCtx, lockKey, token); err != nil {
					c.log.Error().Err(err).Str("key", lockKey).Msg("release refresh lock")
				}
			}()
			if _, err := rebuildLogical(bgCtx, c, typ, id, logicalTTL, load); err != nil {
				c.log.Error().Err(err).Str("key", key).Msg("async cache refresh")
			}
		})
		if !submitted {
			// 池满：放弃本轮刷新，别占着锁
			if err := c.lock.Unlock(ctx, lockKey, token); err != nil {
				c.log.Error().Err(err).Str("key", lockKey).Msg("release refresh lock")
			}
			c.log.Warn().Str("key", key).Msg("rebuild pool saturated, refresh skipped")
		}
	}
	return &out, nil
}

// rebuildLogical 回查真源并以逻辑过期格式覆盖缓存。
func rebuildLogical[T any](ctx context.Context, c *Cache, typ string, id int64, logicalTTL time.Duration, load Loader[T]) (*T, error) {
	key := redisutil.CacheKey(typ, id)
	v, err := load(ctx, id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		if err := c.rdb.Set(ctx, key, "", c.opts.SentinelTTL).Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	if err := SetLogical(ctx, c, typ, id, v, logicalTTL); err != nil {
		return nil, err
	}
	return v, nil
}

// SetLogical 以逻辑过期格式写入缓存，供预热与重建使用。不设物理 TTL。
func SetLogical[T any](ctx context.Context, c *Cache, typ string, id int64, v *T, logicalTTL time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	entry, err := json.Marshal(redisData{Data: raw, ExpireAt: time.Now().Add(logicalTTL)})
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, redisutil.CacheKey(typ, id), entry, 0).Err()
}

// Evict 删除缓存条目，真源更新后调用，先库后缓存。
func (c *Cache) Evict(ctx context.Context, typ string, id int64) error {
	return c.rdb.Del(ctx, redisutil.CacheKey(typ, id)).Err()
}

// decodeEntry 解码普通缓存条目，空串哨兵映射为 ErrNotFound。
func decodeEntry[T any](val string) (*T, error) {
	if val == "" {
		return nil, ErrNotFound
	}
	var out T
	if err := json.Unmarshal([]byte(val), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
