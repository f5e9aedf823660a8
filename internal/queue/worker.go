package queue

import (
	"context"
	"errors"
	"time"

	rd "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"seckill/internal/model"
	"seckill/internal/store"
)

// FulfilledPublisher 履约事件的下游出口，nil 表示不发布。
type FulfilledPublisher interface {
	PublishFulfilled(ctx context.Context, ev OrderFulfilledEvent) error
}

// Worker 履约消费者：单协程顺序消费订单 Stream，把准入成功的意图落成订单。
// 语义：落库提交并 ACK 之后条目才离开 pending；处理失败不 ACK，
// 转而从头重放自己的 pending 列表——这是系统唯一的崩溃恢复机制。
// 有意单消费者串行化持久化侧的扣减，准入闸口已经挡掉了超额流量。
type Worker struct {
	stream *Stream
	store  *store.Store
	events FulfilledPublisher
	log    zerolog.Logger
	block  time.Duration
}

func NewWorker(stream *Stream, st *store.Store, events FulfilledPublisher, log zerolog.Logger, block time.Duration) *Worker {
	if block <= 0 {
		block = 2 * time.Second
	}
	return &Worker{stream: stream, store: st, events: events, log: log, block: block}
}

// Run 阻塞运行消费循环直到 ctx 取消，在途条目会先处理完。
func (w *Worker) Run(ctx context.Context) {
	if err := w.stream.EnsureGroup(ctx); err != nil {
		w.log.Error().Err(err).Msg("ensure consumer group")
		return
	}

	// 启动先重放 pending，接住上次崩溃留下的在途订单
	w.drainPending(ctx)

	for {
		if ctx.Err() != nil {
			w.log.Info().Msg("fulfillment worker stopped")
			return
		}

		msg, err := w.stream.ReadNew(ctx, w.block)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				w.log.Info().Msg("fulfillment worker stopped")
				return
			}
			w.log.Error().Err(err).Msg("read order stream")
			sleepCtx(ctx, 300*time.Millisecond)
			continue
		}
		if msg == nil {
			// 阻塞读超时，没有新条目
			continue
		}

		if err := w.process(ctx, *msg); err != nil {
			// 不 ACK，条目留在 pending，立即进入恢复流程
			w.log.Error().Err(err).Str("id", msg.ID).Msg("process order intent")
			w.drainPending(ctx)
		}
	}
}

// drainPending 从头清空本消费者的 pending 列表，每条重试到成功为止。
func (w *Worker) drainPending(ctx context.Context) {
	for ctx.Err() == nil {
		msg, err := w.stream.ReadPending(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("read pending list")
			sleepCtx(ctx, 300*time.Millisecond)
			continue
		}
		if msg == nil {
			return
		}
		if err := w.process(ctx, *msg); err != nil {
			w.log.Error().Err(err).Str("id", msg.ID).Msg("replay pending entry")
			sleepCtx(ctx, 200*time.Millisecond)
		}
	}
}

func (w *Worker) process(ctx context.Context, msg rd.XMessage) error {
	intent, err := IntentFromStream(msg.Values)
	if err != nil {
		// 脏消息 ACK 丢弃，避免堵死队列
		w.log.Error().Err(err).Str("id", msg.ID).Msg("invalid order intent, discarding")
		return w.stream.Ack(ctx, msg.ID)
	}

	outcome, err := w.store.CreateOrder(ctx, &model.VoucherOrder{
		ID:        intent.OrderID,
		UserID:    intent.UserID,
		VoucherID: intent.VoucherID,
	})
	if err != nil {
		return err
	}

	switch outcome {
	case store.FulfillCreated:
		w.log.Info().
			Int64("order_id", intent.OrderID).
			Int64("user_id", intent.UserID).
			Int64("voucher_id", intent.VoucherID).
			Msg("order fulfilled")
		w.publishFulfilled(ctx, intent)
	case store.FulfillNoStock:
		// 准入不变量成立时不会走到这里，防御性丢弃
		w.log.Error().
			Int64("order_id", intent.OrderID).
			Int64("voucher_id", intent.VoucherID).
			Msg("db stock exhausted, intent discarded")
	case store.FulfillDuplicate:
		w.log.Warn().
			Int64("order_id", intent.OrderID).
			Msg("duplicate delivery, order already persisted")
	}

	return w.stream.Ack(ctx, msg.ID)
}

func (w *Worker) publishFulfilled(ctx context.Context, intent OrderIntent) {
	if w.events == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ev := OrderFulfilledEvent{
		OrderID:     intent.OrderID,
		UserID:      intent.UserID,
		VoucherID:   intent.VoucherID,
		FulfilledAt: time.Now(),
	}
	if err := w.events.PublishFulfilled(pubCtx, ev); err != nil {
		w.log.Warn().Err(err).Int64("order_id", intent.OrderID).Msg("publish fulfilled event")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
