package model

import "time"

// Voucher 秒杀券：标题、限量库存、秒杀时间段。
// Stock 是 DB 侧的权威库存，只允许条件扣减（stock > 0 时减一），永不直接置负。
type Voucher struct {
	ID        int64     `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Title     string    `gorm:"size:128;not null" json:"title"`
	Stock     int64     `gorm:"not null;default:0" json:"stock"`
	BeginTime time.Time `gorm:"not null" json:"begin_time"`
	EndTime   time.Time `gorm:"not null" json:"end_time"`
}

func (Voucher) TableName() string { return "vouchers" }
