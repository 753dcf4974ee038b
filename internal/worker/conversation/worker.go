package conversationworker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/cmd/mainconfig"
	appbootstrap "github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/app/bootstrap"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/booking"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/buffer"
	appconfig "github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/config"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/conversation"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/events"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/observability/metrics"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/whatsapp"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/pkg/logging"
)

// Run starts the async conversation worker and blocks until ctx is canceled.
// It consumes the inbound queue, runs the hold sweeper and dispatches due
// reminders.
func Run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	if cfg == nil {
		return fmt.Errorf("conversation worker requires config")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if cfg.UseMemoryQueue {
		return fmt.Errorf("conversation worker cannot run when USE_MEMORY_QUEUE=true; run inline workers via the API process instead")
	}

	pool, err := appbootstrap.BuildDatabasePool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient := appbootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient == nil {
		return fmt.Errorf("conversation worker requires redis for message buffering")
	}
	defer func() { _ = redisClient.Close() }()

	awsConfig, err := mainconfig.LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	sqsClient := sqs.NewFromConfig(awsConfig)
	queue := conversation.NewSQSQueue(sqsClient, cfg.ConversationQueueURL)

	waClient, err := appbootstrap.BuildWhatsAppClient(cfg, logger)
	if err != nil {
		return err
	}
	if waClient == nil {
		return fmt.Errorf("conversation worker requires whatsapp credentials to reply")
	}

	registry := prometheus.NewRegistry()
	messagingMetrics := metrics.NewMessagingMetrics(registry)
	bookingMetrics := metrics.NewBookingMetrics(registry)

	notifier := appbootstrap.BuildEscalationNotifier(cfg, sesv2.NewFromConfig(awsConfig), logger)
	engine := appbootstrap.BuildBookingService(pool, cfg, logger)
	clinics := appbootstrap.BuildClinicDirectory(pool, redisClient, cfg, logger)
	router := appbootstrap.BuildConversationRouter(cfg, pool, redisClient, engine, clinics, waClient, notifier, logger)

	msgBuffer := buffer.New(redisClient, logger,
		buffer.WithWindow(cfg.BufferWindow),
		buffer.WithLockTTL(cfg.BufferLockTTL),
	)
	processedStore := events.NewProcessedStore(pool)

	workerOpts := []conversation.WorkerOption{
		conversation.WithWorkerCount(cfg.WorkerCount),
		conversation.WithWorkerMetrics(messagingMetrics),
	}
	if cfg.TranscribeURL != "" {
		transcriber, err := whatsapp.NewHTTPTranscriber(whatsapp.HTTPTranscriberConfig{
			BaseURL: cfg.TranscribeURL,
			APIKey:  cfg.TranscribeAPIKey,
			Timeout: cfg.TranscribeTimeout,
			Logger:  logger.Logger,
		})
		if err != nil {
			return err
		}
		workerOpts = append(workerOpts, conversation.WithTranscriber(waClient, transcriber))
		logger.Info("voice transcription enabled", "url", cfg.TranscribeURL)
	} else {
		logger.Warn("voice transcription disabled (TRANSCRIBE_URL not set)")
	}

	worker := conversation.NewWorker(
		queue,
		processedStore,
		msgBuffer,
		router,
		waClient,
		logger,
		workerOpts...,
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

	go serveMetrics(ctx, cfg.Port, registry, logger)

	<-ctx.Done()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("conversation worker stopped")
	case <-doneCtx.Done():
		logger.Error("conversation worker shutdown timed out", "error", doneCtx.Err())
	}

	return nil
}

// serveMetrics exposes liveness and Prometheus metrics for the worker
// process.
func serveMetrics(ctx context.Context, port string, registry *prometheus.Registry, logger *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("worker metrics listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("worker metrics server error", "error", err)
	}
}
