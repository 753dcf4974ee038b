package bootstrap

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/booking"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/clinic"
	appconfig "github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/config"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/conversation"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/notify"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/whatsapp"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/pkg/logging"
)

// BuildWhatsAppClient configures the Cloud API client. Missing credentials
// return nil so inbound-only deployments still come up; callers that must
// send should treat nil as fatal.
func BuildWhatsAppClient(cfg *appconfig.Config, logger *logging.Logger) (*whatsapp.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(cfg.WhatsAppAPIToken) == "" || strings.TrimSpace(cfg.WhatsAppPhoneNumberID) == "" {
		logger.Warn("whatsapp credentials not configured; outbound sends disabled")
		return nil, nil
	}

	client, err := whatsapp.New(whatsapp.Config{
		BaseURL:       cfg.WhatsAppBaseURL,
		APIToken:      cfg.WhatsAppAPIToken,
		PhoneNumberID: cfg.WhatsAppPhoneNumberID,
		MaxRetries:    cfg.SendRetryMaxAttempts,
		Backoff:       cfg.SendRetryBaseDelay,
		RatePerSecond: cfg.SendRatePerSecond,
		Logger:        logger.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: whatsapp client: %w", err)
	}
	return client, nil
}

// BuildBookingService wires the slot engine on the Postgres repository.
func BuildBookingService(pool *pgxpool.Pool, cfg *appconfig.Config, logger *logging.Logger) *booking.Service {
	opts := []booking.Option{
		booking.WithHoldTTL(cfg.HoldTTL),
		booking.WithDefaultDepositCents(int64(cfg.DefaultDepositCents)),
	}
	return booking.NewService(booking.NewRepository(pool), logger, opts...)
}

// BuildClinicDirectory returns the cached clinic profile store. The Redis
// client may be nil; lookups then always hit Postgres.
func BuildClinicDirectory(pool *pgxpool.Pool, redisClient *redis.Client, cfg *appconfig.Config, logger *logging.Logger) *clinic.Store {
	return clinic.NewStore(clinic.NewRepository(pool), redisClient, logger,
		clinic.WithCacheTTL(cfg.ClinicCacheTTL))
}

// BuildEscalationNotifier picks SES when configured, otherwise a logging
// stub so escalations never fail on the notification leg.
func BuildEscalationNotifier(cfg *appconfig.Config, sesClient *sesv2.Client, logger *logging.Logger) conversation.OperatorNotifier {
	if logger == nil {
		logger = logging.Default()
	}

	var sender notify.EmailSender
	if sesClient != nil && strings.TrimSpace(cfg.NotifyFromEmail) != "" {
		sender = notify.NewSESSender(sesClient, notify.SESConfig{
			FromEmail: cfg.NotifyFromEmail,
			FromName:  cfg.NotifyFromName,
		}, logger)
		logger.Info("ses escalation notifications enabled", "from", cfg.NotifyFromEmail)
	} else {
		sender = notify.NewStubEmailSender(logger)
		logger.Warn("escalation emails disabled (SES or NOTIFY_FROM_EMAIL not configured)")
	}
	return notify.NewEscalationNotifier(sender, cfg.OperatorEmail, logger)
}

// BuildConversationRouter assembles the message router with its persistence
// and collaborators.
func BuildConversationRouter(
	cfg *appconfig.Config,
	pool *pgxpool.Pool,
	redisClient *redis.Client,
	engine *booking.Service,
	clinics *clinic.Store,
	sender conversation.Sender,
	notifier conversation.OperatorNotifier,
	logger *logging.Logger,
) *conversation.Router {
	opts := []conversation.RouterOption{
		conversation.WithTakeoverTTL(cfg.TakeoverTTL),
	}
	if notifier != nil {
		opts = append(opts, conversation.WithOperatorNotifier(notifier))
	}
	if redisClient != nil {
		opts = append(opts, conversation.WithTranscriptStore(conversation.NewTranscriptStore(redisClient)))
	}

	resolver := conversation.NewProfileResolver(clinics, logger)
	return conversation.NewRouter(
		conversation.NewStateStore(pool),
		engine,
		clinics,
		sender,
		resolver,
		logger,
		opts...,
	)
}
