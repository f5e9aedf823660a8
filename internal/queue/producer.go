package queue

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// OrderFulfilledEvent 订单落库完成后发布给下游（通知、审计）的事件。
type OrderFulfilledEvent struct {
	OrderID     int64     `json:"order_id"`
	UserID      int64     `json:"user_id"`
	VoucherID   int64     `json:"voucher_id"`
	FulfilledAt time.Time `json:"fulfilled_at"`
}

// Producer 封装 Kafka 写入器，发布订单履约事件。
// 发布失败不影响履约本身——事件是旁路，订单正确性由 Stream + 幂等插入保证。
type Producer struct {
	w *kafka.Writer
}

// NewProducer 创建生产者：
// - Hash + Key: 同一用户的事件尽量落到同一分区。
// - RequireAll: 等待 ISR 副本确认，降低消息丢失风险。
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  5,
			WriteTimeout: 5 * time.Second,
			ReadTimeout:  5 * time.Second,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

// Close 释放 writer 资源。
func (p *Producer) Close() error { return p.w.Close() }

// PublishFulfilled 同步发布一条履约事件，以 user_id 作为分区 key。
func (p *Producer) PublishFulfilled(ctx context.Context, ev OrderFulfilledEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.UserID, 10)),
		Value: b,
	})
}
