package queue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntentFromStream(t *testing.T) {
	intent, err := IntentFromStream(map[string]interface{}{
		"order_id":   "12345",
		"user_id":    "7",
		"voucher_id": "3",
		"ts":         "1700000000000",
	})
	require.NoError(t, err)
	require.Equal(t, int64(12345), intent.OrderID)
	require.Equal(t, int64(7), intent.UserID)
	require.Equal(t, int64(3), intent.VoucherID)
	require.False(t, intent.SubmittedAt.IsZero())
}

func TestIntentFromStreamMissingField(t *testing.T) {
	_, err := IntentFromStream(map[string]interface{}{
		"order_id": "1",
		"user_id":  "2",
	})
	require.Error(t, err)
}

func TestIntentFromStreamBadValue(t *testing.T) {
	_, err := IntentFromStream(map[string]interface{}{
		"order_id":   "not-a-number",
		"user_id":    "2",
		"voucher_id": "3",
	})
	require.Error(t, err)
}

func TestIntentValidate(t *testing.T) {
	require.Error(t, OrderIntent{OrderID: 0, UserID: 1, VoucherID: 1}.Validate())
	require.Error(t, OrderIntent{OrderID: 1, UserID: 0, VoucherID: 1}.Validate())
	require.Error(t, OrderIntent{OrderID: 1, UserID: 1, VoucherID: 0}.Validate())
	require.NoError(t, OrderIntent{OrderID: 1, UserID: 1, VoucherID: 1}.Validate())
}
