package seckill

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"seckill/internal/cache"
	"seckill/internal/model"
	"seckill/internal/store"
	redisutil "seckill/pkg/redis"
)

var (
	// ErrVoucherNotFound 券不存在。
	ErrVoucherNotFound = errors.New("seckill: voucher not found")
	// ErrNotStarted 秒杀尚未开始。
	ErrNotStarted = errors.New("seckill: not started")
	// ErrEnded 秒杀已经结束。
	ErrEnded = errors.New("seckill: already ended")
)

// Service 秒杀下单服务，编排整条快路径：
// 活动时间校验 → 预生成订单 id → 用户锁快速去重 → 原子准入。
// 正确性并不依赖用户锁——准入脚本自身就是原子的，
// 锁只是挡掉同一用户连点时多余的一次脚本执行。
type Service struct {
	gate     *Gate
	lock     *redisutil.Lock
	idgen    *redisutil.IDGenerator
	cache    *cache.Cache
	store    *store.Store
	log      zerolog.Logger
	lockTTL  time.Duration
	cacheTTL time.Duration
}

func NewService(gate *Gate, lock *redisutil.Lock, idgen *redisutil.IDGenerator,
	c *cache.Cache, st *store.Store, log zerolog.Logger,
	lockTTL, voucherCacheTTL time.Duration) *Service {
	if lockTTL <= 0 {
		lockTTL = 5 * time.Second
	}
	if voucherCacheTTL <= 0 {
		voucherCacheTTL = 10 * time.Minute
	}
	return &Service{
		gate:     gate,
		lock:     lock,
		idgen:    idgen,
		cache:    c,
		store:    st,
		log:      log,
		lockTTL:  lockTTL,
		cacheTTL: voucherCacheTTL,
	}
}

// Seckill 以 userID 的身份抢购 voucherID。
// 返回值：订单 id（仅 AdmitSuccess 时有效）、准入结果、错误。
// 业务性拒绝（库存不足/重复下单/时间窗外）都不是 error。
func (s *Service) Seckill(ctx context.Context, voucherID, userID int64) (int64, AdmitResult, error) {
	voucher, err := cache.QueryWithPassThrough(ctx, s.cache, "voucher", voucherID, s.cacheTTL, s.loadVoucher)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return 0, 0, ErrVoucherNotFound
		}
		return 0, 0, err
	}

	now := time.Now()
	if now.Before(voucher.BeginTime) {
		return 0, 0, ErrNotStarted
	}
	if now.After(voucher.EndTime) {
		return 0, 0, ErrEnded
	}

	orderID, err := s.idgen.NextID(ctx, "order")
	if err != nil {
		return 0, 0, err
	}

	// 同一用户的连发请求先在这里碰壁，省一次准入脚本
	lockKey := redisutil.OrderLockKey(userID)
	token, ok, err := s.lock.TryLock(ctx, lockKey, s.lockTTL)
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, AdmitDuplicateOrder, nil
	}
	defer func() {
		if err := s.lock.Unlock(ctx, lockKey, token); err != nil {
			s.log.Error().Err(err).Int64("user_id", userID).Msg("release order lock")
		}
	}()

	res, err := s.gate.Admit(ctx, voucherID, userID, orderID)
	if err != nil {
		return 0, 0, err
	}
	if res != AdmitSuccess {
		return 0, res, nil
	}
	return orderID, AdmitSuccess, nil
}

// Preload 从真源读取券并预热 Redis 库存。
func (s *Service) Preload(ctx context.Context, voucherID int64) error {
	voucher, err := s.store.GetVoucher(ctx, voucherID)
	if err != nil {
		return err
	}
	if voucher == nil {
		return ErrVoucherNotFound
	}
	return s.gate.PreloadStock(ctx, voucherID, voucher.Stock)
}

func (s *Service) loadVoucher(ctx context.Context, id int64) (*model.Voucher, error) {
	return s.store.GetVoucher(ctx, id)
}
