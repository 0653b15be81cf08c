package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/proposalbot/proposal-assistant/cmd/botconfig"
	"github.com/proposalbot/proposal-assistant/internal/api/router"
	appconfig "github.com/proposalbot/proposal-assistant/internal/config"
	"github.com/proposalbot/proposal-assistant/internal/observability/metrics"
	"github.com/proposalbot/proposal-assistant/internal/state"
	"github.com/proposalbot/proposal-assistant/internal/status"
	"github.com/proposalbot/proposal-assistant/internal/workflow"
	"github.com/proposalbot/proposal-assistant/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting proposal-assistant",
		"env", cfg.Env,
		"port", cfg.Port,
		"state_backend", cfg.StateBackend,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storage, err := buildStorage(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize state storage", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	workflowMetrics := metrics.NewWorkflowMetrics(reg)
	tracker := status.NewTracker()

	machine := state.NewMachine(storage, workflowMetrics, logger)

	queue, err := buildQueue(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize workflow queue", "error", err)
		os.Exit(1)
	}

	worker := workflow.NewWorker(machine, queue, logger,
		workflow.WithReceiveWait(cfg.ReceiveWaitSecs),
		workflow.WithReceiveBatchSize(cfg.ReceiveBatchSize),
		workflow.WithStatusTracker(tracker),
	)
	worker.Start(ctx)

	r := router.New(&router.Config{
		Logger:         logger,
		Tracker:        tracker,
		StateBackend:   cfg.StateBackend,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	cancel()
	worker.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Info("stopped")
}

func buildStorage(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (state.Storage, error) {
	switch cfg.StateBackend {
	case appconfig.BackendRedis:
		opts := &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		return state.NewRedisStorage(redis.NewClient(opts), nil), nil

	case appconfig.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return state.NewPostgresStorage(pool), nil

	case appconfig.BackendDynamo:
		awsCfg, err := botconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return state.NewDynamoStorage(dynamodb.NewFromConfig(awsCfg), cfg.ThreadStateTable), nil

	default:
		logger.Info("using JSON file storage", "data_dir", cfg.DataDir)
		return state.NewJSONStorage(cfg.DataDir)
	}
}

func buildQueue(ctx context.Context, cfg *appconfig.Config) (workflow.Queue, error) {
	if cfg.UseMemoryQueue || cfg.WorkflowQueueURL == "" {
		return workflow.NewMemoryQueue(cfg.QueueBuffer), nil
	}
	awsCfg, err := botconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return workflow.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.WorkflowQueueURL), nil
}
