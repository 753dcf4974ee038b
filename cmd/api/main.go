package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/cmd/mainconfig"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/api/router"
	appbootstrap "github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/app/bootstrap"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/booking"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/buffer"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/clinic"
	appconfig "github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/config"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/conversation"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/events"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/flows"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/http/handlers"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/observability/metrics"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting gendei API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := appbootstrap.BuildDatabasePool(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := appbootstrap.BuildRedisClient(ctx, cfg, logger, true)

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	messagingMetrics := metrics.NewMessagingMetrics(registry)
	bookingMetrics := metrics.NewBookingMetrics(registry)

	processedStore := events.NewProcessedStore(pool)
	clinicRepo := clinic.NewRepository(pool)
	clinicStore := appbootstrap.BuildClinicDirectory(pool, redisClient, cfg, logger)
	engine := appbootstrap.BuildBookingService(pool, cfg, logger)
	stateStore := conversation.NewStateStore(pool)

	var queuePublisher *conversation.Publisher
	if cfg.UseMemoryQueue {
		queue := conversation.NewMemoryQueue(256)
		queuePublisher = conversation.NewPublisher(queue, logger)
		startInlineWorker(ctx, cfg, queue, pool, redisClient, engine, clinicStore, processedStore, messagingMetrics, bookingMetrics, sesv2.NewFromConfig(awsCfg), logger)
	} else {
		queue := conversation.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.ConversationQueueURL)
		queuePublisher = conversation.NewPublisher(queue, logger)
	}

	webhookHandler := handlers.NewWhatsAppWebhookHandler(handlers.WhatsAppWebhookConfig{
		Publisher:   queuePublisher,
		Processed:   processedStore,
		Clinics:     clinicRepo,
		AppSecret:   cfg.WhatsAppAppSecret,
		VerifyToken: cfg.WhatsAppVerifyToken,
		Hardened:    cfg.Hardened,
		Logger:      logger,
		Metrics:     messagingMetrics,
	})

	var crypter *flows.Crypter
	if cfg.FlowsPrivateKeyPEM != "" {
		crypter, err = flows.NewCrypter(cfg.FlowsPrivateKeyPEM)
		if err != nil {
			logger.Error("failed to load flows private key", "error", err)
			os.Exit(1)
		}
	} else if cfg.Hardened {
		logger.Error("hardened mode requires FLOWS_PRIVATE_KEY_PEM")
		os.Exit(1)
	} else {
		logger.Warn("flows encryption disabled (FLOWS_PRIVATE_KEY_PEM not set)")
	}
	if cfg.Hardened && cfg.FlowTokenSecret == "" && !cfg.AllowLegacyFlowTokens {
		logger.Error("hardened mode requires FLOW_TOKEN_SECRET (or an explicit ALLOW_LEGACY_FLOW_TOKENS=true)")
		os.Exit(1)
	}
	tokenCodec := flows.NewTokenCodec(cfg.FlowTokenSecret, cfg.AllowLegacyFlowTokens)
	flowsHandler := handlers.NewFlowsHandler(handlers.FlowsConfig{
		Crypter:  crypter,
		Tokens:   tokenCodec,
		Engine:   engine,
		Clinics:  clinicStore,
		Hardened: cfg.Hardened || !cfg.AllowPlaintextFlows,
		Logger:   logger,
	})
	flowTokenHandler := handlers.NewFlowTokenHandler(tokenCodec, logger)

	adminCfg := handlers.AdminConfig{
		States:      stateStore,
		Holds:       engine,
		TakeoverTTL: cfg.TakeoverTTL,
		Logger:      logger,
	}
	if redisClient != nil {
		adminCfg.Transcripts = conversation.NewTranscriptStore(redisClient)
	}
	adminHandler := handlers.NewAdminHandler(adminCfg)

	r := router.New(&router.Config{
		Logger:               logger,
		WhatsAppWebhook:      webhookHandler,
		FlowsHandler:         flowsHandler,
		FlowTokenHandler:     flowTokenHandler,
		AdminHandler:         adminHandler,
		HealthHandler:        handlers.NewHealthHandler(pool, redisClient),
		MetricsHandler:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		AdminAuthSecret:      cfg.AdminJWTSecret,
		InternalToken:        cfg.InternalAPIToken,
		Hardened:             cfg.Hardened,
		CORSAllowedOrigins:   cfg.CORSAllowedOrigins,
		WebhookRatePerSecond: cfg.WebhookRatePerSecond,
		WebhookBurst:         cfg.WebhookBurst,
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

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// startInlineWorker runs the queue consumer and sweeper inside the API
// process for single-binary development deployments.
func startInlineWorker(
	ctx context.Context,
	cfg *appconfig.Config,
	queue *conversation.MemoryQueue,
	pool *pgxpool.Pool,
	redisClient *redis.Client,
	engine *booking.Service,
	clinics *clinic.Store,
	processed *events.ProcessedStore,
	messagingMetrics *metrics.MessagingMetrics,
	bookingMetrics *metrics.BookingMetrics,
	sesClient *sesv2.Client,
	logger *logging.Logger,
) {
	if redisClient == nil {
		logger.Error("memory queue mode requires redis for message buffering")
		os.Exit(1)
	}
	waClient, err := appbootstrap.BuildWhatsAppClient(cfg, logger)
	if err != nil {
		logger.Error("failed to build whatsapp client", "error", err)
		os.Exit(1)
	}
	if waClient == nil {
		logger.Error("memory queue mode requires whatsapp credentials to reply")
		os.Exit(1)
	}

	notifier := appbootstrap.BuildEscalationNotifier(cfg, sesClient, logger)
	processor := appbootstrap.BuildConversationRouter(cfg, pool, redisClient, engine, clinics, waClient, notifier, logger)
	msgBuffer := buffer.New(redisClient, logger,
		buffer.WithWindow(cfg.BufferWindow),
		buffer.WithLockTTL(cfg.BufferLockTTL),
	)

	worker := conversation.NewWorker(
		queue,
		processed,
		msgBuffer,
		processor,
		waClient,
		logger,
		conversation.WithWorkerCount(cfg.WorkerCount),
		conversation.WithWorkerMetrics(messagingMetrics),
	)
	worker.Start(ctx)

	sweeper := booking.NewSweeper(booking.SweeperConfig{
		Service:  engine,
		Sender:   conversation.NewReminderNotifier(waClient, logger),
		Interval: cfg.SweepInterval,
		Window:   cfg.ReminderWindow,
		Metrics:  bookingMetrics,
		Logger:   logger,
	})
	go sweeper.Run(ctx)

	logger.Info("inline conversation worker started (memory queue)")
}
