package queue

import (
	"fmt"
	"strconv"
	"time"
)

// OrderIntent 订单意图，准入成功到落库确认之间的短命数据。
// 以扁平字段映射的形式存在于订单 Stream 条目里。
type OrderIntent struct {
	OrderID     int64
	UserID      int64
	VoucherID   int64
	SubmittedAt time.Time
}

// Validate 做最小字段校验，防止消费者处理脏消息。
func (m OrderIntent) Validate() error {
	if m.OrderID <= 0 {
		return fmt.Errorf("order_id is required")
	}
	if m.UserID <= 0 {
		return fmt.Errorf("user_id is required")
	}
	if m.VoucherID <= 0 {
		return fmt.Errorf("voucher_id is required")
	}
	return nil
}

// IntentFromStream 从 Stream 条目的字段映射解码订单意图。
func IntentFromStream(values map[string]interface{}) (OrderIntent, error) {
	orderID, err := getStreamInt(values, "order_id")
	if err != nil {
		return OrderIntent{}, err
	}
	userID, err := getStreamInt(values, "user_id")
	if err != nil {
		return OrderIntent{}, err
	}
	voucherID, err := getStreamInt(values, "voucher_id")
	if err != nil {
		return OrderIntent{}, err
	}

	intent := OrderIntent{
		OrderID:   orderID,
		UserID:    userID,
		VoucherID: voucherID,
	}
	// ts 缺失不算脏消息，留零值
	if ts, err := getStreamInt(values, "ts"); err == nil {
		intent.SubmittedAt = time.UnixMilli(ts)
	}
	if err := intent.Validate(); err != nil {
		return OrderIntent{}, err
	}
	return intent, nil
}

func getStreamInt(values map[string]interface{}, key string) (int64, error) {
	v, ok := values[key]
	if !ok {
		return 0, fmt.Errorf("missing field %s", key)
	}
	switch x := v.(type) {
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q", key, x)
		}
		return n, nil
	case []byte:
		n, err := strconv.ParseInt(string(x), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q", key, x)
		}
		return n, nil
	case int64:
		return x, nil
	case float64:
		return int64(x), nil
	default:
		return 0, fmt.Errorf("unsupported field type %s: %T", key, v)
	}
}
