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

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides settings for the asynq task queue.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// EmailConfig provides settings for email sending.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}

// NotificationConfig provides settings for the notification module.
type NotificationConfig interface {
	GetAppBaseURL() string
}

// AIConfig provides settings for the LLM-backed agents.
type AIConfig interface {
	GetMoonshotAPIKey() string
	IsAIEnabled() bool
}

// MinIOConfig provides settings for MinIO S3-compatible storage.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinIOMaxFileSize() int64
	GetMinioBucketMeetingRecordings() string
	GetMinioBucketMeetingAttachments() string
	IsMinIOEnabled() bool
}

// GotenbergConfig provides settings for the Gotenberg HTML-to-PDF service.
type GotenbergConfig interface {
	GetGotenbergURL() string
	GetGotenbergUsername() string
	GetGotenbergPassword() string
	IsGotenbergEnabled() bool
}

// WebhookConfig provides settings for inbound provider webhooks.
type WebhookConfig interface {
	GetCalendarWebhookSecret() string
	IsCalendarWebhookEnabled() bool
}

// TranscriptionConfig provides settings for the local audio transcription engine.
type TranscriptionConfig interface {
	GetWhisperModelPath() string
	IsTranscriptionEnabled() bool
}

// MailinConfig provides settings for the IMAP note-intake poller.
type MailinConfig interface {
	GetIMAPHost() string
	GetIMAPPort() int
	GetIMAPUsername() string
	GetIMAPPassword() string
	GetIMAPFolder() string
	GetMailinPollInterval() time.Duration
	IsMailinEnabled() bool
}

// EnrichmentConfig provides settings for the company profile lookup API.
type EnrichmentConfig interface {
	GetCompanyAPIURL() string
	GetCompanyAPIKey() string
	IsEnrichmentEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                           string
	HTTPAddr                      string
	DatabaseURL                   string
	JWTAccessSecret               string
	CORSAllowAll                  bool
	CORSOrigins                   []string
	CORSAllowCreds                bool
	AppBaseURL                    string
	RedisURL                      string
	RedisTLSInsecure              bool
	AsynqQueueName                string
	AsynqConcurrency              int
	EmailEnabled                  bool
	SMTPHost                      string
	SMTPPort                      int
	SMTPUsername                  string
	SMTPPassword                  string
	EmailFromName                 string
	EmailFromAddress              string
	MoonshotAPIKey                string
	MinIOEndpoint                 string
	MinIOAccessKey                string
	MinIOSecretKey                string
	MinIOUseSSL                   bool
	MinIOMaxFileSize              int64
	MinioBucketMeetingRecordings  string
	MinioBucketMeetingAttachments string
	GotenbergURL                  string
	GotenbergUsername             string
	GotenbergPassword             string
	CalendarWebhookSecret         string
	WhisperModelPath              string
	IMAPHost                      string
	IMAPPort                      int
	IMAPUsername                  string
	IMAPPassword                  string
	IMAPFolder                    string
	MailinPollInterval            time.Duration
	CompanyAPIURL                 string
	CompanyAPIKey                 string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string      { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }

// NotificationConfig implementation
func (c *Config) GetAppBaseURL() string { return c.AppBaseURL }

// AIConfig implementation
func (c *Config) GetMoonshotAPIKey() string { return c.MoonshotAPIKey }
func (c *Config) IsAIEnabled() bool         { return c.MoonshotAPIKey != "" }

// MinIOConfig implementation
func (c *Config) GetMinIOEndpoint() string   { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string  { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string  { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool       { return c.MinIOUseSSL }
func (c *Config) GetMinIOMaxFileSize() int64 { return c.MinIOMaxFileSize }
func (c *Config) GetMinioBucketMeetingRecordings() string {
	return c.MinioBucketMeetingRecordings
}
func (c *Config) GetMinioBucketMeetingAttachments() string {
	return c.MinioBucketMeetingAttachments
}
func (c *Config) IsMinIOEnabled() bool { return c.MinIOEndpoint != "" }

// GotenbergConfig implementation
func (c *Config) GetGotenbergURL() string      { return c.GotenbergURL }
func (c *Config) GetGotenbergUsername() string { return c.GotenbergUsername }
func (c *Config) GetGotenbergPassword() string { return c.GotenbergPassword }
func (c *Config) IsGotenbergEnabled() bool     { return c.GotenbergURL != "" }

// WebhookConfig implementation
func (c *Config) GetCalendarWebhookSecret() string { return c.CalendarWebhookSecret }
func (c *Config) IsCalendarWebhookEnabled() bool   { return c.CalendarWebhookSecret != "" }

// TranscriptionConfig implementation
func (c *Config) GetWhisperModelPath() string { return c.WhisperModelPath }
func (c *Config) IsTranscriptionEnabled() bool { return c.WhisperModelPath != "" }

// MailinConfig implementation
func (c *Config) GetIMAPHost() string                 { return c.IMAPHost }
func (c *Config) GetIMAPPort() int                    { return c.IMAPPort }
func (c *Config) GetIMAPUsername() string             { return c.IMAPUsername }
func (c *Config) GetIMAPPassword() string             { return c.IMAPPassword }
func (c *Config) GetIMAPFolder() string               { return c.IMAPFolder }
func (c *Config) GetMailinPollInterval() time.Duration { return c.MailinPollInterval }
func (c *Config) IsMailinEnabled() bool {
	return c.IMAPHost != "" && c.IMAPUsername != ""
}

// EnrichmentConfig implementation
func (c *Config) GetCompanyAPIURL() string  { return c.CompanyAPIURL }
func (c *Config) GetCompanyAPIKey() string  { return c.CompanyAPIKey }
func (c *Config) IsEnrichmentEnabled() bool { return c.CompanyAPIURL != "" }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "false"), "true")

	cfg := &Config{
		Env:                           getEnv("APP_ENV", "development"),
		HTTPAddr:                      getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:                   getEnv("DATABASE_URL", ""),
		JWTAccessSecret:               getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:                  corsAllowAll,
		CORSOrigins:                   corsOrigins,
		CORSAllowCreds:                strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		AppBaseURL:                    getEnv("APP_BASE_URL", "http://localhost:4200"),
		RedisURL:                      getEnv("REDIS_URL", ""),
		RedisTLSInsecure:              strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:                getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:              mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		EmailEnabled:                  emailEnabled,
		SMTPHost:                      getEnv("SMTP_HOST", ""),
		SMTPPort:                      mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:                  getEnv("SMTP_USERNAME", ""),
		SMTPPassword:                  getEnv("SMTP_PASSWORD", ""),
		EmailFromName:                 getEnv("EMAIL_FROM_NAME", "DealDesk"),
		EmailFromAddress:              getEnv("EMAIL_FROM_ADDRESS", ""),
		MoonshotAPIKey:                getEnv("MOONSHOT_API_KEY", ""),
		MinIOEndpoint:                 getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:                getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:                getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:                   strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinIOMaxFileSize:              mustInt64(getEnv("MINIO_MAX_FILE_SIZE", "104857600")),
		MinioBucketMeetingRecordings:  getEnv("MINIO_BUCKET_MEETING_RECORDINGS", "meeting-recordings"),
		MinioBucketMeetingAttachments: getEnv("MINIO_BUCKET_MEETING_ATTACHMENTS", "meeting-attachments"),
		GotenbergURL:                  getEnv("GOTENBERG_URL", ""),
		GotenbergUsername:             getEnv("GOTENBERG_USERNAME", ""),
		GotenbergPassword:             getEnv("GOTENBERG_PASSWORD", ""),
		CalendarWebhookSecret:         getEnv("CALENDAR_WEBHOOK_SECRET", ""),
		WhisperModelPath:              getEnv("WHISPER_MODEL_PATH", ""),
		IMAPHost:                      getEnv("IMAP_HOST", ""),
		IMAPPort:                      mustInt(getEnv("IMAP_PORT", "993")),
		IMAPUsername:                  getEnv("IMAP_USERNAME", ""),
		IMAPPassword:                  getEnv("IMAP_PASSWORD", ""),
		IMAPFolder:                    getEnv("IMAP_FOLDER", "INBOX"),
		MailinPollInterval:            mustDuration(getEnv("MAILIN_POLL_INTERVAL", "1m")),
		CompanyAPIURL:                 getEnv("COMPANY_API_URL", ""),
		CompanyAPIKey:                 getEnv("COMPANY_API_KEY", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.EmailEnabled && cfg.SMTPHost == "" {
		return nil, fmt.Errorf("SMTP_HOST is required when EMAIL_ENABLED is true")
	}
	if cfg.EmailEnabled && cfg.EmailFromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return result
}

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
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
