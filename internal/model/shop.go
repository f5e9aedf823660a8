package model

import "time"

// Shop 商铺，高并发热点读的目标实体，读路径走缓存一致性层。
type Shop struct {
	ID        int64     `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name     string `gorm:"size:128;not null" json:"name"`
	Area     string `gorm:"size:64" json:"area"`
	Address  string `gorm:"size:255" json:"address"`
	AvgPrice int64  `json:"avg_price"` // 单位：分
	Score    int    `json:"score"`
}

func (Shop) TableName() string { return "shops" }
