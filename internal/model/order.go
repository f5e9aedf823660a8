package model

import "time"

// 订单状态：1 待支付 2 已支付 3 已取消
const (
	OrderStatusUnpaid = 1
	OrderStatusPaid   = 2
	OrderStatusCancel = 3
)

// VoucherOrder 秒杀订单。
// ID 由全局 ID 生成器在准入时预先签发，同时充当落库幂等键：
// 重复投递的同一条订单意图插入时主键冲突，直接视为已处理。
// (user_id, voucher_id) 唯一索引是一人一单的第二道防线。
type VoucherOrder struct {
	ID        int64     `gorm:"primarykey;autoIncrement:false" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID    int64 `gorm:"not null;uniqueIndex:idx_user_voucher" json:"user_id"`
	VoucherID int64 `gorm:"not null;uniqueIndex:idx_user_voucher;index" json:"voucher_id"`
	Status    int   `gorm:"not null;default:1" json:"status"`
}

func (VoucherOrder) TableName() string { return "voucher_orders" }
