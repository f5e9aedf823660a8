package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
)

// luaUnlockIfMatch 仅当锁值与持有者 token 相等时才删除。
// GET 与 DEL 在同一脚本内执行，不存在“判断后被别人抢走再误删”的窗口。
const luaUnlockIfMatch = `
local lockKey = KEYS[1]
local token = ARGV[1]
if redis.call('GET', lockKey) == token then
  return redis.call('DEL', lockKey)
end
return 0
`

// Lock 基于 Redis SETNX 的短 TTL 分布式互斥锁。
// 单次尝试、不阻塞、不重试；TTL 兜底持有者崩溃后的自动释放。
type Lock struct {
	rdb *rd.Client
}

func NewLock(rdb *rd.Client) *Lock {
	return &Lock{rdb: rdb}
}

// TryLock 尝试获取 key 上的锁，成功返回本次持有的 token。
// token 是释放锁的唯一凭证，调用方必须持有它直到 Unlock。
func (l *Lock) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Unlock 释放锁。token 不匹配（锁已过期被他人持有）时不做任何事。
func (l *Lock) Unlock(ctx context.Context, key, token string) error {
	return l.rdb.Eval(ctx, luaUnlockIfMatch, []string{key}, token).Err()
}
