package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/framegrab/framegrab-capture-service/internal/capture"
	"github.com/framegrab/framegrab-capture-service/internal/infra/archive"
	"github.com/framegrab/framegrab-capture-service/internal/infra/config"
	"github.com/framegrab/framegrab-capture-service/internal/infra/email"
	"github.com/framegrab/framegrab-capture-service/internal/infra/ffmpeg"
	"github.com/framegrab/framegrab-capture-service/internal/infra/jpeg"
	"github.com/framegrab/framegrab-capture-service/internal/infra/metrics"
	miniostorage "github.com/framegrab/framegrab-capture-service/internal/infra/minio"
	"github.com/framegrab/framegrab-capture-service/internal/infra/postgres"
	"github.com/framegrab/framegrab-capture-service/internal/infra/rabbitmq"
	"github.com/framegrab/framegrab-capture-service/internal/infra/tracing"
	"github.com/framegrab/framegrab-capture-service/internal/usecase"
	"github.com/framegrab/framegrab-capture-service/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting framegrab-capture-service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if Jaeger unavailable)
	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint, "framegrab-capture-service")
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(ctx)
	}

	// Database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	// Migrations
	err = postgres.RunMigrations(cfg.DatabaseURL, "migrations")
	if err != nil {
		log.Warn("migration warning", zap.Error(err))
	}

	// MinIO
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:    cfg.MinIOEndpoint,
		AccessKey:   cfg.MinIOAccessKey,
		SecretKey:   cfg.MinIOSecretKey,
		UseSSL:      cfg.MinIOUseSSL,
		VideoBucket: cfg.MinIOVideoBucket,
		FrameBucket: cfg.MinIOFrameBucket,
	})
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBuckets(ctx), "ensure minio buckets")

	// RabbitMQ publisher connection
	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq for publisher")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")

	statusPub := rabbitmq.NewStatusPublisher(pub, cfg.RabbitMQStatusKey)
	dlqPub := rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)

	// Infra adapters
	repo := postgres.NewJobRepository(pool)
	opener := ffmpeg.NewOpener(log)
	encoder := jpeg.NewEncoder(cfg.FrameQuality)
	driver := capture.NewDriver(encoder, time.Duration(cfg.SettleTimeoutMs)*time.Millisecond, log)
	archiver := archive.NewZipCreator()
	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)

	// Use case
	uc := usecase.NewCaptureVideoUseCase(
		repo, storage, opener, driver, archiver,
		statusPub, dlqPub, notifier,
		log,
		usecase.CaptureVideoConfig{
			TempDir:       cfg.TempDir,
			MaxRetries:    cfg.MaxRetries,
			WindowMinSecs: cfg.CaptureWindowMinSecs,
			WindowMaxSecs: cfg.CaptureWindowMaxSecs,
			StepMinSecs:   cfg.CaptureStepMinSecs,
			StepMaxSecs:   cfg.CaptureStepMaxSecs,
		},
	)

	// Metrics server
	metricsSrv := metrics.NewServer(cfg.MetricsPort, log)
	metricsSrv.Start()

	// Consumer (worker pool)
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Queue:       cfg.RabbitMQCaptureQueue,
		RequestKey:  cfg.RabbitMQRequestKey,
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		StatusQueue: cfg.RabbitMQStatusQueue,
		StatusKey:   cfg.RabbitMQStatusKey,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, uc.Execute, log)
	fatalOnErr(err, "create consumer")

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("framegrab-capture-service started, consuming messages")

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	// Shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	consumer.Close()
	log.Info("framegrab-capture-service stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
