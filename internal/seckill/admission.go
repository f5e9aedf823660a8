package seckill

import (
	"context"
	"fmt"
	"strconv"
	"time"

	rd "github.com/redis/go-redis/v9"

	redisutil "seckill/pkg/redis"
)

// AdmitResult 准入结果，普通返回值而非错误。
type AdmitResult int

const (
	AdmitSuccess           AdmitResult = 0 // 准入成功，订单意图已入队
	AdmitInsufficientStock AdmitResult = 1 // 库存不足
	AdmitDuplicateOrder    AdmitResult = 2 // 该用户已下过单
)

// luaAdmit 秒杀准入脚本：库存判断、一人一单判断、扣减、记录、入队
// 在同一次脚本执行内完成，任何并发交错都无法让两个请求同时通过最后一件库存，
// 也无法让同一用户两次通过去重判断。
// KEYS[1]=订单意图 Stream
// ARGV[1]=voucherId ARGV[2]=userId ARGV[3]=orderId ARGV[4]=提交时间戳(毫秒)
// 返回：0 成功，1 库存不足，2 重复下单
const luaAdmit = `
local voucherId = ARGV[1]
local userId = ARGV[2]
local orderId = ARGV[3]
local stockKey = 'seckill:stock:' .. voucherId
local orderKey = 'seckill:order:' .. voucherId

if tonumber(redis.call('GET', stockKey) or '0') <= 0 then
  return 1
end
if redis.call('SISMEMBER', orderKey, userId) == 1 then
  return 2
end

redis.call('INCRBY', stockKey, -1)
redis.call('SADD', orderKey, userId)
redis.call('XADD', KEYS[1], '*',
  'order_id', orderId, 'user_id', userId, 'voucher_id', voucherId, 'ts', ARGV[4])
return 0
`

// Gate 秒杀准入闸口，把库存检查、去重、扣减与入队压成一个不可分割的原子单元。
type Gate struct {
	rdb    *rd.Client
	stream string
}

func NewGate(rdb *rd.Client, stream string) *Gate {
	return &Gate{rdb: rdb, stream: stream}
}

// Admit 执行一次准入。脚本执行失败属于基础设施错误，对本次请求是致命的。
func (g *Gate) Admit(ctx context.Context, voucherID, userID, orderID int64) (AdmitResult, error) {
	res, err := g.rdb.Eval(ctx, luaAdmit, []string{g.stream},
		strconv.FormatInt(voucherID, 10),
		strconv.FormatInt(userID, 10),
		strconv.FormatInt(orderID, 10),
		strconv.FormatInt(time.Now().UnixMilli(), 10),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("admission script: %w", err)
	}

	switch AdmitResult(res) {
	case AdmitSuccess, AdmitInsufficientStock, AdmitDuplicateOrder:
		return AdmitResult(res), nil
	default:
		return 0, fmt.Errorf("admission script: unexpected result %d", res)
	}
}

// PreloadStock 开售前预热：写入初始库存并清空已下单用户集合。
func (g *Gate) PreloadStock(ctx context.Context, voucherID, stock int64) error {
	pipe := g.rdb.TxPipeline()
	pipe.Set(ctx, redisutil.StockKey(voucherID), stock, 0)
	pipe.Del(ctx, redisutil.OrderedUsersKey(voucherID))
	_, err := pipe.Exec(ctx)
	return err
}

// Stock 查询 Redis 内的实时库存，key 不存在按 0 计。
func (g *Gate) Stock(ctx context.Context, voucherID int64) (int64, error) {
	val, err := g.rdb.Get(ctx, redisutil.StockKey(voucherID)).Int64()
	if err != nil {
		if err == rd.Nil {
			return 0, nil
		}
		return 0, err
	}
	return val, nil
}
