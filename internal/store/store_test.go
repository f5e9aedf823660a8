package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"seckill/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	st := New(db)
	require.NoError(t, st.AutoMigrate())
	return st
}

func seedVoucher(t *testing.T, st *Store, id, stock int64) {
	t.Helper()
	require.NoError(t, st.CreateVoucher(context.Background(), &model.Voucher{
		ID:        id,
		Title:     "百元代金券",
		Stock:     stock,
		BeginTime: time.Now().Add(-time.Hour),
		EndTime:   time.Now().Add(time.Hour),
	}))
}

func TestCreateOrderConditionalDecrement(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedVoucher(t, st, 1, 2)

	out, err := st.CreateOrder(ctx, &model.VoucherOrder{ID: 101, UserID: 1, VoucherID: 1})
	require.NoError(t, err)
	require.Equal(t, FulfillCreated, out)

	out, err = st.CreateOrder(ctx, &model.VoucherOrder{ID: 102, UserID: 2, VoucherID: 1})
	require.NoError(t, err)
	require.Equal(t, FulfillCreated, out)

	// 库存到 0 之后条件扣减不再命中，丢弃且不产生订单
	out, err = st.CreateOrder(ctx, &model.VoucherOrder{ID: 103, UserID: 3, VoucherID: 1})
	require.NoError(t, err)
	require.Equal(t, FulfillNoStock, out)

	v, err := st.GetVoucher(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(0), v.Stock)

	order, err := st.GetOrder(ctx, 103)
	require.NoError(t, err)
	require.Nil(t, order)
}

func TestCreateOrderIdempotentByOrderID(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedVoucher(t, st, 1, 5)

	out, err := st.CreateOrder(ctx, &model.VoucherOrder{ID: 201, UserID: 7, VoucherID: 1})
	require.NoError(t, err)
	require.Equal(t, FulfillCreated, out)

	// 重复投递同一订单：幂等，扣减被回滚
	out, err = st.CreateOrder(ctx, &model.VoucherOrder{ID: 201, UserID: 7, VoucherID: 1})
	require.NoError(t, err)
	require.Equal(t, FulfillDuplicate, out)

	v, err := st.GetVoucher(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(4), v.Stock)
}

func TestCreateOrderUserVoucherUnique(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedVoucher(t, st, 1, 5)

	out, err := st.CreateOrder(ctx, &model.VoucherOrder{ID: 301, UserID: 9, VoucherID: 1})
	require.NoError(t, err)
	require.Equal(t, FulfillCreated, out)

	// 同一 (user, voucher) 不同订单 id：第二道防线拦截
	out, err = st.CreateOrder(ctx, &model.VoucherOrder{ID: 302, UserID: 9, VoucherID: 1})
	require.NoError(t, err)
	require.Equal(t, FulfillDuplicate, out)
}

func TestGetVoucherNotFound(t *testing.T) {
	st := newTestStore(t)
	v, err := st.GetVoucher(context.Background(), 404)
	require.NoError(t, err)
	require.Nil(t, v)
}
