package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	// Hardened deployments fail closed on missing secrets instead of
	// degrading permissively.
	Hardened bool

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	UseMemoryQueue       bool
	WorkerCount          int
	ConversationQueueURL string
	AWSRegion            string
	AWSAccessKeyID       string
	AWSSecretAccessKey   string
	AWSEndpointOverride  string

	WhatsAppBaseURL       string
	WhatsAppAPIToken      string
	WhatsAppPhoneNumberID string
	WhatsAppAppSecret     string
	WhatsAppVerifyToken   string
	SendRetryMaxAttempts  int
	SendRetryBaseDelay    time.Duration
	SendRatePerSecond     float64

	TranscribeURL     string
	TranscribeAPIKey  string
	TranscribeTimeout time.Duration

	FlowsPrivateKeyPEM    string
	FlowTokenSecret       string
	AllowLegacyFlowTokens bool
	AllowPlaintextFlows   bool

	InternalAPIToken string
	AdminJWTSecret   string

	CORSAllowedOrigins   []string
	WebhookRatePerSecond float64
	WebhookBurst         int

	BufferWindow  time.Duration
	BufferLockTTL time.Duration

	HoldTTL             time.Duration
	DefaultDepositCents int
	SweepInterval       time.Duration
	ReminderWindow      time.Duration
	TakeoverTTL         time.Duration

	OperatorEmail   string
	NotifyFromEmail string
	NotifyFromName  string

	ClinicCacheTTL time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	hardened := getEnvAsBool("HARDENED", false)
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		Hardened:      hardened,

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		UseMemoryQueue:       getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:          getEnvAsInt("WORKER_COUNT", 2),
		ConversationQueueURL: getEnv("CONVERSATION_QUEUE_URL", ""),
		AWSRegion:            getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:       getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:  getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		WhatsAppBaseURL:       getEnv("WHATSAPP_BASE_URL", "https://graph.facebook.com/v19.0"),
		WhatsAppAPIToken:      getEnv("WHATSAPP_API_TOKEN", ""),
		WhatsAppPhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppAppSecret:     getEnv("WHATSAPP_APP_SECRET", ""),
		WhatsAppVerifyToken:   getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		SendRetryMaxAttempts:  getEnvAsInt("SEND_RETRY_MAX_ATTEMPTS", 3),
		SendRetryBaseDelay:    getEnvAsDuration("SEND_RETRY_BASE_DELAY", 250*time.Millisecond),
		SendRatePerSecond:     getEnvAsFloat("SEND_RATE_PER_SECOND", 20),

		TranscribeURL:     getEnv("TRANSCRIBE_URL", ""),
		TranscribeAPIKey:  getEnv("TRANSCRIBE_API_KEY", ""),
		TranscribeTimeout: getEnvAsDuration("TRANSCRIBE_TIMEOUT", 30*time.Second),

		FlowsPrivateKeyPEM:    getEnv("FLOWS_PRIVATE_KEY_PEM", ""),
		FlowTokenSecret:       getEnv("FLOW_TOKEN_SECRET", ""),
		// Legacy unsigned tokens default off in hardened deployments;
		// accepting them there requires an explicit opt-in.
		AllowLegacyFlowTokens: getEnvAsBool("ALLOW_LEGACY_FLOW_TOKENS", !hardened),
		AllowPlaintextFlows:   getEnvAsBool("ALLOW_PLAINTEXT_FLOWS", false),

		InternalAPIToken: getEnv("INTERNAL_API_TOKEN", ""),
		AdminJWTSecret:   getEnv("ADMIN_JWT_SECRET", ""),

		CORSAllowedOrigins:   getEnvAsSlice("CORS_ALLOWED_ORIGINS"),
		WebhookRatePerSecond: getEnvAsFloat("WEBHOOK_RATE_PER_SECOND", 30),
		WebhookBurst:         getEnvAsInt("WEBHOOK_BURST", 60),

		BufferWindow:  getEnvAsDuration("BUFFER_WINDOW", 6*time.Second),
		BufferLockTTL: getEnvAsDuration("BUFFER_LOCK_TTL", 30*time.Second),

		HoldTTL:             getEnvAsDuration("HOLD_TTL", 15*time.Minute),
		DefaultDepositCents: getEnvAsInt("DEFAULT_DEPOSIT_CENTS", 5000),
		SweepInterval:       getEnvAsDuration("SWEEP_INTERVAL", time.Minute),
		ReminderWindow:      getEnvAsDuration("REMINDER_WINDOW", 10*time.Minute),
		TakeoverTTL:         getEnvAsDuration("TAKEOVER_TTL", 12*time.Hour),

		OperatorEmail:   getEnv("OPERATOR_EMAIL", ""),
		NotifyFromEmail: getEnv("NOTIFY_FROM_EMAIL", ""),
		NotifyFromName:  getEnv("NOTIFY_FROM_NAME", "Gendei"),

		ClinicCacheTTL: getEnvAsDuration("CLINIC_CACHE_TTL", 5*time.Minute),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsSlice splits a comma-separated environment variable.
func getEnvAsSlice(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
