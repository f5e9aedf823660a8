package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"seckill/internal/cache"
	"seckill/internal/config"
	"seckill/internal/queue"
	"seckill/internal/router"
	"seckill/internal/seckill"
	"seckill/internal/store"
	redisutil "seckill/pkg/redis"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	// 1. 连接 SQLite，自动建表
	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("db open")
	}
	st := store.New(db)
	if err := st.AutoMigrate(); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	// 2. Redis
	rdb := rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer rdb.Close()

	// 3. 组装秒杀核心
	lock := redisutil.NewLock(rdb)
	idgen := redisutil.NewIDGenerator(rdb)
	gate := seckill.NewGate(rdb, cfg.OrderStream)

	pool := cache.NewRebuildPool(cfg.RebuildWorkers, cfg.RebuildQueueSize)
	defer pool.Close()
	ch := cache.New(rdb, lock, pool, log, cache.Options{
		SentinelTTL:   cfg.SentinelTTL,
		RetryInterval: cfg.MutexRetryInterval,
		MaxRetries:    cfg.MutexMaxRetries,
	})

	svc := seckill.NewService(gate, lock, idgen, ch, st, log, cfg.OrderLockTTL, cfg.VoucherCacheTTL)

	// 4. 履约消费者 + 可选的 Kafka 事件出口
	var events queue.FulfilledPublisher
	if len(cfg.KafkaBrokers) > 0 {
		producer := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		events = producer
	}
	stream := queue.NewStream(rdb, cfg.OrderStream, cfg.OrderGroup, cfg.OrderConsumer)
	worker := queue.NewWorker(stream, st, events, log, cfg.WorkerBlock)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Run(ctx)
	}()

	// 5. HTTP
	r := gin.Default()
	router.Setup(r, st, ch, svc, gate, cfg)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	// 等履约消费者处理完在途条目
	<-workerDone
}
