package store

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"seckill/internal/model"
)

// FulfillOutcome 描述一次订单落库的业务结果，错误之外的分支都是正常返回值。
type FulfillOutcome int

const (
	FulfillCreated   FulfillOutcome = iota // 扣减成功且订单已插入
	FulfillNoStock                         // DB 侧库存已为 0，丢弃（正常情况下不应出现）
	FulfillDuplicate                       // 订单已存在，重复投递，按成功处理
)

// Store 封装券/订单/商铺的真源存储，对上只暴露带条件更新的 CRUD。
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate 建表。
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&model.Voucher{}, &model.VoucherOrder{}, &model.Shop{})
}

// CreateVoucher 新建秒杀券。
func (s *Store) CreateVoucher(ctx context.Context, v *model.Voucher) error {
	return s.db.WithContext(ctx).Create(v).Error
}

// GetVoucher 按 id 查询券，不存在时返回 (nil, nil)。
func (s *Store) GetVoucher(ctx context.Context, id int64) (*model.Voucher, error) {
	var v model.Voucher
	err := s.db.WithContext(ctx).First(&v, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

// GetShop 按 id 查询商铺，不存在时返回 (nil, nil)。
func (s *Store) GetShop(ctx context.Context, id int64) (*model.Shop, error) {
	var shop model.Shop
	err := s.db.WithContext(ctx).First(&shop, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &shop, nil
}

// SaveShop 新建或更新商铺。
func (s *Store) SaveShop(ctx context.Context, shop *model.Shop) error {
	return s.db.WithContext(ctx).Save(shop).Error
}

// GetOrder 按订单 id 查询，不存在时返回 (nil, nil)。
func (s *Store) GetOrder(ctx context.Context, id int64) (*model.VoucherOrder, error) {
	var order model.VoucherOrder
	err := s.db.WithContext(ctx).First(&order, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// CreateOrder 在单个本地事务内完成订单落库：
//  1. 条件扣减：stock = stock - 1 WHERE id = ? AND stock > 0，
//     独立于准入脚本的库存判断，兜快慢路径之间的任何缝隙；
//  2. 以预生成的订单 id 幂等插入，唯一冲突视为重复投递。
// 扣减影响 0 行时回滚并返回 FulfillNoStock，不产生订单。
func (s *Store) CreateOrder(ctx context.Context, order *model.VoucherOrder) (FulfillOutcome, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return FulfillNoStock, tx.Error
	}

	res := tx.Model(&model.Voucher{}).
		Where("id = ? AND stock > 0", order.VoucherID).
		UpdateColumn("stock", gorm.Expr("stock - 1"))
	if res.Error != nil {
		tx.Rollback()
		return FulfillNoStock, res.Error
	}
	if res.RowsAffected == 0 {
		tx.Rollback()
		return FulfillNoStock, nil
	}

	order.Status = model.OrderStatusUnpaid
	if err := tx.Create(order).Error; err != nil {
		// 重复消息导致的唯一冲突：回滚本次扣减，按已处理返回。
		tx.Rollback()
		if errorsLikeUnique(err) {
			return FulfillDuplicate, nil
		}
		return FulfillNoStock, err
	}

	if err := tx.Commit().Error; err != nil {
		return FulfillNoStock, err
	}
	return FulfillCreated, nil
}

func errorsLikeUnique(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "UNIQUE") || strings.Contains(s, "unique") ||
		strings.Contains(s, "Duplicate")
}
