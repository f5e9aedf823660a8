package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig 聚合运行时配置，尽量通过环境变量注入，避免硬编码。
type AppConfig struct {
	HTTPAddr string
	DBPath   string

	RedisAddr string
	RedisDB   int

	// 订单队列（Redis Stream 消费者组）
	OrderStream   string
	OrderGroup    string
	OrderConsumer string
	WorkerBlock   time.Duration

	// 履约事件出口（Kafka，可选：broker 为空则关闭）
	KafkaBrokers []string
	KafkaTopic   string

	// 缓存一致性层参数
	ShopCacheTTL       time.Duration // 逻辑过期时长
	VoucherCacheTTL    time.Duration
	SentinelTTL        time.Duration
	MutexRetryInterval time.Duration
	MutexMaxRetries    int
	RebuildWorkers     int
	RebuildQueueSize   int

	// 下单用户锁 TTL
	OrderLockTTL time.Duration

	// 预热接口的简单管理员令牌（demo 级别保护）
	PreloadAdminToken string
}

// Load 读取并校验配置，缺失时使用默认值。
func Load() (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		DBPath:             getEnv("DB_PATH", "seckill.db"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:            0,
		OrderStream:        getEnv("ORDER_STREAM", "stream.orders"),
		OrderGroup:         getEnv("ORDER_GROUP", "g1"),
		OrderConsumer:      getEnv("ORDER_CONSUMER", "c1"),
		WorkerBlock:        2 * time.Second,
		KafkaBrokers:       splitCSV(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "seckill-order-fulfilled"),
		ShopCacheTTL:       time.Hour,
		VoucherCacheTTL:    10 * time.Minute,
		SentinelTTL:        time.Minute,
		MutexRetryInterval: 50 * time.Millisecond,
		MutexMaxRetries:    50,
		RebuildWorkers:     10,
		RebuildQueueSize:   64,
		OrderLockTTL:       5 * time.Second,
		PreloadAdminToken:  getEnv("PRELOAD_ADMIN_TOKEN", "dev-admin-token"),
	}

	redisDB, err := getEnvInt("REDIS_DB", cfg.RedisDB)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.RedisDB = redisDB

	blockMs, err := getEnvInt("WORKER_BLOCK_MS", int(cfg.WorkerBlock.Milliseconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid WORKER_BLOCK_MS: %w", err)
	}
	if blockMs <= 0 {
		return AppConfig{}, fmt.Errorf("WORKER_BLOCK_MS must be > 0")
	}
	cfg.WorkerBlock = time.Duration(blockMs) * time.Millisecond

	shopTTLSec, err := getEnvInt("SHOP_CACHE_TTL_SEC", int(cfg.ShopCacheTTL.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid SHOP_CACHE_TTL_SEC: %w", err)
	}
	if shopTTLSec <= 0 {
		return AppConfig{}, fmt.Errorf("SHOP_CACHE_TTL_SEC must be > 0")
	}
	cfg.ShopCacheTTL = time.Duration(shopTTLSec) * time.Second

	maxRetries, err := getEnvInt("MUTEX_MAX_RETRIES", cfg.MutexMaxRetries)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid MUTEX_MAX_RETRIES: %w", err)
	}
	if maxRetries <= 0 {
		return AppConfig{}, fmt.Errorf("MUTEX_MAX_RETRIES must be > 0")
	}
	cfg.MutexMaxRetries = maxRetries

	workers, err := getEnvInt("REBUILD_WORKERS", cfg.RebuildWorkers)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid REBUILD_WORKERS: %w", err)
	}
	if workers <= 0 {
		return AppConfig{}, fmt.Errorf("REBUILD_WORKERS must be > 0")
	}
	cfg.RebuildWorkers = workers

	if cfg.OrderStream == "" {
		return AppConfig{}, fmt.Errorf("ORDER_STREAM must not be empty")
	}
	if cfg.OrderGroup == "" {
		return AppConfig{}, fmt.Errorf("ORDER_GROUP must not be empty")
	}
	if cfg.OrderConsumer == "" {
		return AppConfig{}, fmt.Errorf("ORDER_CONSUMER must not be empty")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_TOPIC must not be empty when brokers are set")
	}

	return cfg, nil
}

// getEnv 读取字符串环境变量，若为空则返回默认值。
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt 读取整数环境变量，若为空则返回默认值。
func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

// splitCSV 将逗号分隔字符串解析为字符串切片。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
