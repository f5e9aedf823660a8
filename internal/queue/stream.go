package queue

import (
	"context"
	"errors"
	"strings"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// Stream 订单队列的消费者组视角：有序、仅追加、至少一次投递。
// 已投递未确认的条目留在本消费者的 pending 列表里，是唯一的崩溃恢复状态。
type Stream struct {
	rdb      *rd.Client
	stream   string
	group    string
	consumer string
}

func NewStream(rdb *rd.Client, stream, group, consumer string) *Stream {
	return &Stream{rdb: rdb, stream: stream, group: group, consumer: consumer}
}

// EnsureGroup 幂等地创建消费者组，Stream 不存在时一并创建。
func (s *Stream) EnsureGroup(ctx context.Context) error {
	err := s.rdb.XGroupCreateMkStream(ctx, s.stream, s.group, "0").Err()
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return err
}

// ReadNew 阻塞读取一条新条目，最多等 block。超时返回 (nil, nil)。
func (s *Stream) ReadNew(ctx context.Context, block time.Duration) (*rd.XMessage, error) {
	return s.readOne(ctx, ">", block)
}

// ReadPending 从头读取本消费者 pending 列表里的下一条，不阻塞。
// 列表为空返回 (nil, nil)。
func (s *Stream) ReadPending(ctx context.Context) (*rd.XMessage, error) {
	// go-redis 里 Block=0 表示无限阻塞，负值才是不带 BLOCK
	return s.readOne(ctx, "0", -1)
}

func (s *Stream) readOne(ctx context.Context, offset string, block time.Duration) (*rd.XMessage, error) {
	streams, err := s.rdb.XReadGroup(ctx, &rd.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, offset},
		Count:    1,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, nil
		}
		return nil, err
	}
	for _, st := range streams {
		if len(st.Messages) > 0 {
			msg := st.Messages[0]
			return &msg, nil
		}
	}
	return nil, nil
}

// Ack 确认条目已处理完毕并从 Stream 里删除，条目离开 pending 状态。
func (s *Stream) Ack(ctx context.Context, id string) error {
	pipe := s.rdb.TxPipeline()
	pipe.XAck(ctx, s.stream, s.group, id)
	pipe.XDel(ctx, s.stream, id)
	_, err := pipe.Exec(ctx)
	return err
}
