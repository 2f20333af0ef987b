// cmd/pipeline-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"prequal-pipeline/internal/common/breaker"
	"prequal-pipeline/internal/common/config"
	"prequal-pipeline/internal/common/database"
	"prequal-pipeline/internal/common/logger"
	"prequal-pipeline/internal/common/observability"
	"prequal-pipeline/internal/messaging"
	"prequal-pipeline/internal/notify"
	"prequal-pipeline/internal/stages/credit"
	"prequal-pipeline/internal/stages/decision"
	"prequal-pipeline/internal/store"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("config load failed: %v", err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)
	zapLog.Info("Starting pipeline manager...")

	obs := observability.New("pipeline-manager")
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Kafka publisher and subscribers ---
	wmLogger := logger.NewWatermillAdapter(zapLog)

	kafkaPublisher, err := messaging.NewKafkaPublisher(cfg.Kafka, wmLogger)
	if err != nil {
		zapLog.Fatal("kafka publisher failed", zap.Error(err))
	}
	defer kafkaPublisher.Close()

	publisher := messaging.NewPublisher(kafkaPublisher, cfg.Kafka.Publisher, log)
	zapLog.Info("Kafka publisher connected successfully")

	// --- Init decision-side dependencies ---
	applications := store.NewApplicationStore(pg.DB, log)
	storeBreaker := breaker.New("decision-store", cfg.Breaker.FailureThreshold, cfg.Breaker.Cooldown, log)

	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.Notifications.SNS.Enabled {
		snsNotifier, err := notify.NewSNSNotifier(ctx, cfg.Notifications, log)
		if err != nil {
			zapLog.Fatal("sns notifier failed", zap.Error(err))
		}
		notifier = snsNotifier
		zapLog.Info("SNS notifier initialized")
	}

	// --- Start consumer runtimes ---
	runtimeErrs := make(chan error, 2)
	started := 0

	if cfg.Stages.Credit.Enabled {
		sub, err := messaging.NewKafkaSubscriber(cfg.Kafka, cfg.Kafka.Groups.Credit, wmLogger)
		if err != nil {
			zapLog.Fatal("credit subscriber failed", zap.Error(err))
		}
		defer sub.Close()

		handler := credit.NewHandler(
			credit.NewScorer(cfg.Scoring.Seed),
			publisher,
			cfg.Kafka.Topics.CreditReports,
			log,
		)
		dlq := messaging.NewDeadLetterRouter(publisher, cfg.Kafka.Topics.DeadLetter, "credit", log)
		rt := messaging.NewConsumerRuntime("credit", cfg.Kafka.Topics.ApplicationsSubmitted,
			sub, messaging.WithTimeout(handler.Handle, cfg.Stages.Credit.OperationTimeout), dlq, log, obs)

		started++
		go func() { runtimeErrs <- rt.Run(ctx) }()
		zapLog.Info("credit stage started", zap.String("topic", cfg.Kafka.Topics.ApplicationsSubmitted))
	}

	if cfg.Stages.Decision.Enabled {
		sub, err := messaging.NewKafkaSubscriber(cfg.Kafka, cfg.Kafka.Groups.Decision, wmLogger)
		if err != nil {
			zapLog.Fatal("decision subscriber failed", zap.Error(err))
		}
		defer sub.Close()

		handler := decision.NewHandler(applications, storeBreaker, notifier, log)
		dlq := messaging.NewDeadLetterRouter(publisher, cfg.Kafka.Topics.DeadLetter, "decision", log)
		rt := messaging.NewConsumerRuntime("decision", cfg.Kafka.Topics.CreditReports,
			sub, messaging.WithTimeout(handler.Handle, cfg.Stages.Decision.OperationTimeout), dlq, log, obs)

		started++
		go func() { runtimeErrs <- rt.Run(ctx) }()
		zapLog.Info("decision stage started", zap.String("topic", cfg.Kafka.Topics.CreditReports))
	}

	if started == 0 {
		zapLog.Fatal("no stages enabled")
	}

	// --- Health & Metrics Server ---
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		mux.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Metrics.Address))
		if err := http.ListenAndServe(cfg.Metrics.Address, mux); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Wait for shutdown or a crashed consumer task ---
	for i := 0; i < started; i++ {
		if err := <-runtimeErrs; err != nil {
			zapLog.Error("consumer task crashed, shutting down", zap.Error(err))
			stop()
			// Drain the remaining runtime before exiting non-zero.
			for j := i + 1; j < started; j++ {
				<-runtimeErrs
			}
			zapLog.Sync()
			os.Exit(1)
		}
	}

	zapLog.Info("Pipeline manager stopped gracefully")
}
