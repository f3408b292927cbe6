// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
}

// SchedulerConfig provides settings for asynq-backed background work.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// VoiceAgentConfig provides settings for the external voice platform client.
type VoiceAgentConfig interface {
	GetVoiceAgentBaseURL() string
	GetVoiceAgentAPIKey() string
	GetVoiceAgentTimeout() time.Duration
	GetVoiceAgentMaxRetries() int
	GetVoiceAgentRequestsPerSecond() float64
	GetVoiceAgentPageSize() int
}

// TenancyConfig provides settings for phone-to-tenant resolution.
type TenancyConfig interface {
	GetDefaultTenantID() uuid.UUID
	GetTenantCacheTTL() time.Duration
}

// ReconcileConfig provides settings for the reconciliation sweeper.
type ReconcileConfig interface {
	GetReconcileLookbackHours() int
	GetReconcileInterval() time.Duration
}

// EmailConfig provides settings for outbound lead-alert email.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	GetLeadAlertRecipient() string
}

// StorageConfig provides settings for S3-compatible payload archiving.
type StorageConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketPayloadArchive() string
	IsMinIOEnabled() bool
}

// OpsConfig provides settings for operational endpoints.
type OpsConfig interface {
	GetOpsAPIKey() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env      string
	HTTPAddr string

	DatabaseURL string

	RedisURL         string
	RedisTLSInsecure bool
	AsynqQueueName   string
	AsynqConcurrency int

	CORSAllowAll bool
	CORSOrigins  []string

	VoiceAgentBaseURL           string
	VoiceAgentAPIKey            string
	VoiceAgentTimeout           time.Duration
	VoiceAgentMaxRetries        int
	VoiceAgentRequestsPerSecond float64
	VoiceAgentPageSize          int

	DefaultTenantID uuid.UUID
	TenantCacheTTL  time.Duration

	ReconcileLookbackHours int
	ReconcileInterval      time.Duration

	EmailEnabled       bool
	SMTPHost           string
	SMTPPort           int
	SMTPUsername       string
	SMTPPassword       string
	EmailFromName      string
	EmailFromAddress   string
	LeadAlertRecipient string

	MinIOEndpoint             string
	MinIOAccessKey            string
	MinIOSecretKey            string
	MinIOUseSSL               bool
	MinioBucketPayloadArchive string

	OpsAPIKey string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// VoiceAgentConfig implementation
func (c *Config) GetVoiceAgentBaseURL() string            { return c.VoiceAgentBaseURL }
func (c *Config) GetVoiceAgentAPIKey() string             { return c.VoiceAgentAPIKey }
func (c *Config) GetVoiceAgentTimeout() time.Duration     { return c.VoiceAgentTimeout }
func (c *Config) GetVoiceAgentMaxRetries() int            { return c.VoiceAgentMaxRetries }
func (c *Config) GetVoiceAgentRequestsPerSecond() float64 { return c.VoiceAgentRequestsPerSecond }
func (c *Config) GetVoiceAgentPageSize() int              { return c.VoiceAgentPageSize }

// TenancyConfig implementation
func (c *Config) GetDefaultTenantID() uuid.UUID    { return c.DefaultTenantID }
func (c *Config) GetTenantCacheTTL() time.Duration { return c.TenantCacheTTL }

// ReconcileConfig implementation
func (c *Config) GetReconcileLookbackHours() int      { return c.ReconcileLookbackHours }
func (c *Config) GetReconcileInterval() time.Duration { return c.ReconcileInterval }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool         { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string           { return c.SMTPHost }
func (c *Config) GetSMTPPort() int              { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string       { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string       { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string      { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string   { return c.EmailFromAddress }
func (c *Config) GetLeadAlertRecipient() string { return c.LeadAlertRecipient }

// StorageConfig implementation
func (c *Config) GetMinIOEndpoint() string             { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string            { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string            { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool                 { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketPayloadArchive() string { return c.MinioBucketPayloadArchive }
func (c *Config) IsMinIOEnabled() bool {
	return c.MinIOEndpoint != "" && c.MinIOAccessKey != "" && c.MinIOSecretKey != ""
}

// OpsConfig implementation
func (c *Config) GetOpsAPIKey() string { return c.OpsAPIKey }

// =============================================================================
// Loading
// =============================================================================

// Load reads configuration from the environment, loading a .env file first
// when one is present. DATABASE_URL and DEFAULT_TENANT_ID are required;
// everything else has a default or disables its feature when empty.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("APP_ENV", "development"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		RedisURL:         os.Getenv("REDIS_URL"),
		RedisTLSInsecure: getBoolEnv("REDIS_TLS_INSECURE", false),
		AsynqQueueName:   getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency: getIntEnv("ASYNQ_CONCURRENCY", 10),

		CORSAllowAll: getBoolEnv("CORS_ALLOW_ALL", false),
		CORSOrigins:  splitAndTrim(os.Getenv("CORS_ORIGINS")),

		VoiceAgentBaseURL:           getEnv("VOICE_AGENT_BASE_URL", "https://api.elevenlabs.io"),
		VoiceAgentAPIKey:            os.Getenv("VOICE_AGENT_API_KEY"),
		VoiceAgentTimeout:           getDurationEnv("VOICE_AGENT_TIMEOUT", 30*time.Second),
		VoiceAgentMaxRetries:        getIntEnv("VOICE_AGENT_MAX_RETRIES", 3),
		VoiceAgentRequestsPerSecond: getFloatEnv("VOICE_AGENT_RPS", 2),
		VoiceAgentPageSize:          getIntEnv("VOICE_AGENT_PAGE_SIZE", 100),

		TenantCacheTTL: getDurationEnv("TENANT_CACHE_TTL", 15*time.Minute),

		ReconcileLookbackHours: getIntEnv("RECONCILE_LOOKBACK_HOURS", 24),
		ReconcileInterval:      getDurationEnv("RECONCILE_INTERVAL", 24*time.Hour),

		EmailEnabled:       getBoolEnv("EMAIL_ENABLED", false),
		SMTPHost:           os.Getenv("SMTP_HOST"),
		SMTPPort:           getIntEnv("SMTP_PORT", 587),
		SMTPUsername:       os.Getenv("SMTP_USERNAME"),
		SMTPPassword:       os.Getenv("SMTP_PASSWORD"),
		EmailFromName:      getEnv("EMAIL_FROM_NAME", "Loadline"),
		EmailFromAddress:   os.Getenv("EMAIL_FROM_ADDRESS"),
		LeadAlertRecipient: os.Getenv("LEAD_ALERT_RECIPIENT"),

		MinIOEndpoint:             os.Getenv("MINIO_ENDPOINT"),
		MinIOAccessKey:            os.Getenv("MINIO_ACCESS_KEY"),
		MinIOSecretKey:            os.Getenv("MINIO_SECRET_KEY"),
		MinIOUseSSL:               getBoolEnv("MINIO_USE_SSL", false),
		MinioBucketPayloadArchive: getEnv("MINIO_BUCKET_PAYLOAD_ARCHIVE", "webhook-payloads"),

		OpsAPIKey: os.Getenv("OPS_API_KEY"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	rawTenant := strings.TrimSpace(os.Getenv("DEFAULT_TENANT_ID"))
	if rawTenant == "" {
		return nil, fmt.Errorf("DEFAULT_TENANT_ID is required")
	}
	tenantID, err := uuid.Parse(rawTenant)
	if err != nil {
		return nil, fmt.Errorf("DEFAULT_TENANT_ID is not a valid UUID: %w", err)
	}
	cfg.DefaultTenantID = tenantID

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getFloatEnv(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getBoolEnv(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func splitAndTrim(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
