// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// WebhookConfig provides settings for provider webhooks (inbound SMS, call outcomes).
type WebhookConfig interface {
	GetWebhookAPIKey() string
	GetWebhookRatePerMinute() int
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// TenantConfig points at the tenant registry file.
type TenantConfig interface {
	GetTenantsFile() string
	GetDefaultPhoneRegion() string
}

// SchedulerConfig provides settings for the retry queue sweep and asynq worker.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetSweepInterval() time.Duration
	GetSweepLookahead() time.Duration
	GetSweepBatchSize() int
	GetClaimLease() time.Duration
	GetRetentionInterval() time.Duration
	GetSentRetention() time.Duration
	GetExpiredRetention() time.Duration
}

// RetryConfig provides settings for retry entries and follow-up policy.
type RetryConfig interface {
	GetRetryMaxAttempts() int
	GetRetryBackoff() time.Duration
	GetFollowUpDelay() time.Duration
	GetMaxNudges() int
	GetOptOutFailClosed() bool
}

// OutreachConfig provides settings for the outreach dispatcher.
type OutreachConfig interface {
	GetCallTimeout() time.Duration
	GetOfferTTL() time.Duration
	GetSlotHorizon() time.Duration
}

// CalendarConfig provides settings for the calendar provider client.
type CalendarConfig interface {
	GetCalendarAPIURL() string
	GetCalendarAPIKey() string
	GetProviderTimeout() time.Duration
	GetAvailabilityCacheTTL() time.Duration
}

// VoiceConfig provides settings for the voice dispatch client.
type VoiceConfig interface {
	GetVoiceAPIURL() string
	GetVoiceAPIKey() string
}

// MessagingConfig provides settings for outbound text messaging.
type MessagingConfig interface {
	GetSMSWebhookURL() string
	GetSMSWebhookToken() string
	GetWhatsAppURL() string
	GetWhatsAppKey() string
	GetWhatsAppDeviceID() string
	GetProviderTimeout() time.Duration
}

// EmailConfig provides SMTP settings for internal booking notifications.
type EmailConfig interface {
	IsEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}

// FanoutConfig provides settings for the notification fan-out.
type FanoutConfig interface {
	GetFanoutRingSize() int
	GetFanoutFlushInterval() time.Duration
	GetFanoutFlushBatch() int
}

// KafkaConfig provides settings for the optional audit event sink.
type KafkaConfig interface {
	GetKafkaBrokers() []string
	GetKafkaAuditTopic() string
}

// NurtureConfig provides settings for the external nurture workflow notifier.
type NurtureConfig interface {
	GetAMQPURL() string
	GetNurtureExchange() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                 string
	HTTPAddr            string
	DatabaseURL         string
	JWTAccessSecret     string
	CORSAllowAll        bool
	CORSOrigins         []string
	CORSAllowCreds      bool
	WebhookAPIKey       string
	WebhookRatePerMin   int
	TenantsFile         string
	DefaultPhoneRegion  string
	RedisURL            string
	RedisTLSInsecure    bool
	AsynqQueueName      string
	AsynqConcurrency    int
	SweepInterval       time.Duration
	SweepLookahead      time.Duration
	SweepBatchSize      int
	ClaimLease          time.Duration
	RetentionInterval   time.Duration
	SentRetention       time.Duration
	ExpiredRetention    time.Duration
	RetryMaxAttempts    int
	RetryBackoff        time.Duration
	FollowUpDelay       time.Duration
	MaxNudges           int
	OptOutFailClosed    bool
	CallTimeout         time.Duration
	ProviderTimeout     time.Duration
	OfferTTL            time.Duration
	SlotHorizon         time.Duration
	AvailabilityTTL     time.Duration
	CalendarAPIURL      string
	CalendarAPIKey      string
	VoiceAPIURL         string
	VoiceAPIKey         string
	SMSWebhookURL       string
	SMSWebhookToken     string
	WhatsAppURL         string
	WhatsAppKey         string
	WhatsAppDeviceID    string
	SMTPHost            string
	SMTPPort            int
	SMTPUsername        string
	SMTPPassword        string
	EmailFromName       string
	EmailFromAddress    string
	FanoutRingSize      int
	FanoutFlushInterval time.Duration
	FanoutFlushBatch    int
	KafkaBrokers        []string
	KafkaAuditTopic     string
	AMQPURL             string
	NurtureExchange     string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// WebhookConfig implementation
func (c *Config) GetWebhookAPIKey() string     { return c.WebhookAPIKey }
func (c *Config) GetWebhookRatePerMinute() int { return c.WebhookRatePerMin }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// TenantConfig implementation
func (c *Config) GetTenantsFile() string        { return c.TenantsFile }
func (c *Config) GetDefaultPhoneRegion() string { return c.DefaultPhoneRegion }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string                 { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool           { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string           { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int            { return c.AsynqConcurrency }
func (c *Config) GetSweepInterval() time.Duration     { return c.SweepInterval }
func (c *Config) GetSweepLookahead() time.Duration    { return c.SweepLookahead }
func (c *Config) GetSweepBatchSize() int              { return c.SweepBatchSize }
func (c *Config) GetClaimLease() time.Duration        { return c.ClaimLease }
func (c *Config) GetRetentionInterval() time.Duration { return c.RetentionInterval }
func (c *Config) GetSentRetention() time.Duration     { return c.SentRetention }
func (c *Config) GetExpiredRetention() time.Duration  { return c.ExpiredRetention }

// RetryConfig implementation
func (c *Config) GetRetryMaxAttempts() int        { return c.RetryMaxAttempts }
func (c *Config) GetRetryBackoff() time.Duration  { return c.RetryBackoff }
func (c *Config) GetFollowUpDelay() time.Duration { return c.FollowUpDelay }
func (c *Config) GetMaxNudges() int               { return c.MaxNudges }
func (c *Config) GetOptOutFailClosed() bool       { return c.OptOutFailClosed }

// OutreachConfig implementation
func (c *Config) GetCallTimeout() time.Duration { return c.CallTimeout }
func (c *Config) GetOfferTTL() time.Duration    { return c.OfferTTL }
func (c *Config) GetSlotHorizon() time.Duration { return c.SlotHorizon }

// CalendarConfig implementation
func (c *Config) GetCalendarAPIURL() string              { return c.CalendarAPIURL }
func (c *Config) GetCalendarAPIKey() string              { return c.CalendarAPIKey }
func (c *Config) GetProviderTimeout() time.Duration      { return c.ProviderTimeout }
func (c *Config) GetAvailabilityCacheTTL() time.Duration { return c.AvailabilityTTL }

// VoiceConfig implementation
func (c *Config) GetVoiceAPIURL() string { return c.VoiceAPIURL }
func (c *Config) GetVoiceAPIKey() string { return c.VoiceAPIKey }

// MessagingConfig implementation
func (c *Config) GetSMSWebhookURL() string   { return c.SMSWebhookURL }
func (c *Config) GetSMSWebhookToken() string { return c.SMSWebhookToken }
func (c *Config) GetWhatsAppURL() string     { return c.WhatsAppURL }
func (c *Config) GetWhatsAppKey() string     { return c.WhatsAppKey }
func (c *Config) GetWhatsAppDeviceID() string {
	return c.WhatsAppDeviceID
}

// EmailConfig implementation
func (c *Config) IsEmailEnabled() bool        { return c.SMTPHost != "" && c.EmailFromAddress != "" }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }

// FanoutConfig implementation
func (c *Config) GetFanoutRingSize() int                { return c.FanoutRingSize }
func (c *Config) GetFanoutFlushInterval() time.Duration { return c.FanoutFlushInterval }
func (c *Config) GetFanoutFlushBatch() int              { return c.FanoutFlushBatch }

// KafkaConfig implementation
func (c *Config) GetKafkaBrokers() []string  { return c.KafkaBrokers }
func (c *Config) GetKafkaAuditTopic() string { return c.KafkaAuditTopic }

// NurtureConfig implementation
func (c *Config) GetAMQPURL() string         { return c.AMQPURL }
func (c *Config) GetNurtureExchange() string { return c.NurtureExchange }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                 getEnv("APP_ENV", "development"),
		HTTPAddr:            getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		JWTAccessSecret:     getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:        corsAllowAll,
		CORSOrigins:         corsOrigins,
		CORSAllowCreds:      strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		WebhookAPIKey:       getEnv("WEBHOOK_API_KEY", ""),
		WebhookRatePerMin:   mustInt(getEnv("WEBHOOK_RATE_PER_MINUTE", "600"), 600),
		TenantsFile:         getEnv("TENANTS_FILE", ""),
		DefaultPhoneRegion:  strings.ToUpper(getEnv("DEFAULT_PHONE_REGION", "GB")),
		RedisURL:            getEnv("REDIS_URL", ""),
		RedisTLSInsecure:    strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:      getEnv("ASYNQ_QUEUE", "followups"),
		AsynqConcurrency:    mustInt(getEnv("ASYNQ_CONCURRENCY", "10"), 10),
		SweepInterval:       mustDuration(getEnv("SWEEP_INTERVAL", "5m"), 5*time.Minute),
		SweepLookahead:      mustDuration(getEnv("SWEEP_LOOKAHEAD", "5m"), 5*time.Minute),
		SweepBatchSize:      mustInt(getEnv("SWEEP_BATCH_SIZE", "50"), 50),
		ClaimLease:          mustDuration(getEnv("CLAIM_LEASE", "30m"), 30*time.Minute),
		RetentionInterval:   mustDuration(getEnv("RETRY_CLEANUP_INTERVAL", "1h"), time.Hour),
		SentRetention:       time.Duration(mustInt(getEnv("RETRY_SENT_RETENTION_DAYS", "14"), 14)) * 24 * time.Hour,
		ExpiredRetention:    time.Duration(mustInt(getEnv("RETRY_EXPIRED_RETENTION_DAYS", "30"), 30)) * 24 * time.Hour,
		RetryMaxAttempts:    mustInt(getEnv("RETRY_MAX_ATTEMPTS", "5"), 5),
		RetryBackoff:        mustDuration(getEnv("RETRY_BACKOFF", "10m"), 10*time.Minute),
		FollowUpDelay:       mustDuration(getEnv("FOLLOW_UP_DELAY", "24h"), 24*time.Hour),
		MaxNudges:           mustInt(getEnv("MAX_NUDGES", "2"), 2),
		OptOutFailClosed:    strings.EqualFold(getEnv("OPTOUT_FAIL_CLOSED", "false"), "true"),
		CallTimeout:         mustDuration(getEnv("CALL_TIMEOUT", "15s"), 15*time.Second),
		ProviderTimeout:     mustDuration(getEnv("PROVIDER_TIMEOUT", "10s"), 10*time.Second),
		OfferTTL:            mustDuration(getEnv("OFFER_TTL", "72h"), 72*time.Hour),
		SlotHorizon:         time.Duration(mustInt(getEnv("SLOT_HORIZON_DAYS", "7"), 7)) * 24 * time.Hour,
		AvailabilityTTL:     mustDuration(getEnv("AVAILABILITY_CACHE_TTL", "60s"), time.Minute),
		CalendarAPIURL:      getEnv("CALENDAR_API_URL", ""),
		CalendarAPIKey:      getEnv("CALENDAR_API_KEY", ""),
		VoiceAPIURL:         getEnv("VOICE_API_URL", ""),
		VoiceAPIKey:         getEnv("VOICE_API_KEY", ""),
		SMSWebhookURL:       getEnv("SMS_WEBHOOK_URL", ""),
		SMSWebhookToken:     getEnv("SMS_WEBHOOK_TOKEN", ""),
		WhatsAppURL:         getEnv("WHATSAPP_URL", ""),
		WhatsAppKey:         getEnv("WHATSAPP_KEY", ""),
		WhatsAppDeviceID:    getEnv("WHATSAPP_DEVICE_ID", ""),
		SMTPHost:            getEnv("SMTP_HOST", ""),
		SMTPPort:            mustInt(getEnv("SMTP_PORT", "587"), 587),
		SMTPUsername:        getEnv("SMTP_USERNAME", ""),
		SMTPPassword:        getEnv("SMTP_PASSWORD", ""),
		EmailFromName:       getEnv("EMAIL_FROM_NAME", "Bookings"),
		EmailFromAddress:    getEnv("EMAIL_FROM_ADDRESS", ""),
		FanoutRingSize:      mustInt(getEnv("FANOUT_RING_SIZE", "1024"), 1024),
		FanoutFlushInterval: mustDuration(getEnv("FANOUT_FLUSH_INTERVAL", "5s"), 5*time.Second),
		FanoutFlushBatch:    mustInt(getEnv("FANOUT_FLUSH_BATCH", "200"), 200),
		KafkaBrokers:        splitCSV(getEnv("KAFKA_BROKERS", "")),
		KafkaAuditTopic:     getEnv("KAFKA_AUDIT_TOPIC", "booking.audit.v1"),
		AMQPURL:             getEnv("AMQP_URL", ""),
		NurtureExchange:     getEnv("NURTURE_EXCHANGE", "ex.nurture"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.TenantsFile == "" {
		return nil, fmt.Errorf("TENANTS_FILE is required")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if cfg.RetryMaxAttempts < 1 {
		return nil, fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func mustInt(value string, fallback int) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || result <= 0 {
		return fallback
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
