package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// idEpoch 2022-01-01T00:00:00Z，时间戳段的起点。
const idEpoch = 1640995200

// ErrIDGeneration 自增原语没有返回值（Redis 不可达等），本次请求直接失败。
var ErrIDGeneration = errors.New("id generation failed")

// IDGenerator 生成全局唯一且按时间有序的 64 位 ID：
// [1] 符号位恒 0  [31] 距 idEpoch 的秒数  [32] 按 (prefix, 日期) 的自增序列。
// 只要 INCR 是线性化的，ID 就不会重复；跨秒单调不减，同秒内按序列有序。
type IDGenerator struct {
	rdb *rd.Client
}

func NewIDGenerator(rdb *rd.Client) *IDGenerator {
	return &IDGenerator{rdb: rdb}
}

// NextID 为 prefix 业务生成下一个 ID。内部不重试。
func (g *IDGenerator) NextID(ctx context.Context, prefix string) (int64, error) {
	now := time.Now().UTC()
	timestamp := now.Unix() - idEpoch

	// 计数器按天分 key，避免单 key 无限增长撑爆 32 位序列段。
	day := now.Format("20060102")
	count, err := g.rdb.Incr(ctx, IDCounterKey(prefix, day)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIDGeneration, err)
	}

	return timestamp<<32 | (count & 0xFFFFFFFF), nil
}
