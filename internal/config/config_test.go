package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, "stream.orders", cfg.OrderStream)
	require.Equal(t, "g1", cfg.OrderGroup)
	require.Equal(t, "c1", cfg.OrderConsumer)
	require.Equal(t, 2*time.Second, cfg.WorkerBlock)
	require.Empty(t, cfg.KafkaBrokers)
	require.Equal(t, 50, cfg.MutexMaxRetries)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("REDIS_DB", "3")
	t.Setenv("WORKER_BLOCK_MS", "500")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092, broker-2:9092")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 3, cfg.RedisDB)
	require.Equal(t, 500*time.Millisecond, cfg.WorkerBlock)
	require.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.KafkaBrokers)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("WORKER_BLOCK_MS", "not-a-number")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsNonPositiveRetries(t *testing.T) {
	t.Setenv("MUTEX_MAX_RETRIES", "0")
	_, err := Load()
	require.Error(t, err)
}
