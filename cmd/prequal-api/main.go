// cmd/prequal-api/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"prequal-pipeline/internal/api"
	"prequal-pipeline/internal/cache"
	"prequal-pipeline/internal/common/config"
	"prequal-pipeline/internal/common/database"
	"prequal-pipeline/internal/common/logger"
	"prequal-pipeline/internal/messaging"
	"prequal-pipeline/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("config load failed: %v", err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)
	zapLog.Info("Starting prequal api...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		zapLog.Fatal("postgres failed", zap.Error(err))
	}
	defer pg.Close()
	if err := pg.Ping(ctx); err != nil {
		zapLog.Fatal("postgres unreachable", zap.Error(err))
	}

	redisClient := database.NewRedis(cfg.Database.Redis)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx); err != nil {
		// The status cache degrades to store reads; start anyway.
		zapLog.Warn("redis unreachable, status cache degraded", zap.Error(err))
	}

	wmLogger := logger.NewWatermillAdapter(zapLog)
	kafkaPublisher, err := messaging.NewKafkaPublisher(cfg.Kafka, wmLogger)
	if err != nil {
		zapLog.Fatal("kafka publisher failed", zap.Error(err))
	}
	defer kafkaPublisher.Close()

	publisher := messaging.NewPublisher(kafkaPublisher, cfg.Kafka.Publisher, log)

	server := api.NewServer(
		store.NewApplicationStore(pg.DB, log),
		publisher,
		cache.NewStatusCache(redisClient.Client, cfg.Database.Redis.TTL, log),
		cfg.Kafka.Topics.ApplicationsSubmitted,
		log,
	)

	shutdownTimeout := cfg.API.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}

	if err := api.Run(ctx, cfg.API.Address, server.Router(), shutdownTimeout, log); err != nil &&
		!errors.Is(err, http.ErrServerClosed) {
		zapLog.Fatal("api server failed", zap.Error(err))
	}

	zapLog.Info("Prequal api stopped gracefully")
}
