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

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides settings for the asynq scheduler.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetStaleProposalAge() time.Duration
	GetApprovalReminderDelay() time.Duration
}

// BoardConfig provides settings for the external work-management platform client.
type BoardConfig interface {
	GetBoardAPIURL() string
	GetBoardAPIToken() string
	GetBoardHTTPTimeout() time.Duration
}

// WriteQueueConfig provides settings for the outbound write scheduler.
type WriteQueueConfig interface {
	GetWriteRatePerMinute() int
	GetWriteMaxAttempts() int
	GetWriteBaseDelay() time.Duration
	GetWriteMaxDelay() time.Duration
	GetWriteBackoffMultiplier() float64
}

// DirectoryConfig provides settings for the cached board user directory.
type DirectoryConfig interface {
	GetRedisURL() string
	GetDirectoryCacheTTL() time.Duration
}

// EmailConfig provides settings for approval notification email.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	GetApproverAddresses() []string
}

// ScoringConfig provides settings for default scoring weights.
type ScoringConfig interface {
	GetScoringDefaultsPath() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                    string
	HTTPAddr               string
	DatabaseURL            string
	CORSAllowAll           bool
	CORSOrigins            []string
	CORSAllowCreds         bool
	RedisURL               string
	RedisTLSInsecure       bool
	AsynqQueueName         string
	AsynqConcurrency       int
	StaleProposalAge       time.Duration
	ApprovalReminderDelay  time.Duration
	BoardAPIURL            string
	BoardAPIToken          string
	BoardHTTPTimeout       time.Duration
	WriteRatePerMinute     int
	WriteMaxAttempts       int
	WriteBaseDelay         time.Duration
	WriteMaxDelay          time.Duration
	WriteBackoffMultiplier float64
	DirectoryCacheTTL      time.Duration
	EmailEnabled           bool
	SMTPHost               string
	SMTPPort               int
	SMTPUsername           string
	SMTPPassword           string
	EmailFromName          string
	EmailFromAddress       string
	ApproverAddresses      []string
	ScoringDefaultsPath    string
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
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string                     { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool               { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string               { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int                { return c.AsynqConcurrency }
func (c *Config) GetStaleProposalAge() time.Duration      { return c.StaleProposalAge }
func (c *Config) GetApprovalReminderDelay() time.Duration { return c.ApprovalReminderDelay }

// BoardConfig implementation
func (c *Config) GetBoardAPIURL() string             { return c.BoardAPIURL }
func (c *Config) GetBoardAPIToken() string           { return c.BoardAPIToken }
func (c *Config) GetBoardHTTPTimeout() time.Duration { return c.BoardHTTPTimeout }

// WriteQueueConfig implementation
func (c *Config) GetWriteRatePerMinute() int         { return c.WriteRatePerMinute }
func (c *Config) GetWriteMaxAttempts() int           { return c.WriteMaxAttempts }
func (c *Config) GetWriteBaseDelay() time.Duration   { return c.WriteBaseDelay }
func (c *Config) GetWriteMaxDelay() time.Duration    { return c.WriteMaxDelay }
func (c *Config) GetWriteBackoffMultiplier() float64 { return c.WriteBackoffMultiplier }

// DirectoryConfig implementation
func (c *Config) GetDirectoryCacheTTL() time.Duration { return c.DirectoryCacheTTL }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool          { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string            { return c.SMTPHost }
func (c *Config) GetSMTPPort() int               { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string        { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string        { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string       { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string    { return c.EmailFromAddress }
func (c *Config) GetApproverAddresses() []string { return c.ApproverAddresses }

// ScoringConfig implementation
func (c *Config) GetScoringDefaultsPath() string { return c.ScoringDefaultsPath }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	smtpHost := getEnv("SMTP_HOST", "")
	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")

	cfg := &Config{
		Env:                    getEnv("APP_ENV", "development"),
		HTTPAddr:               getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		CORSAllowAll:           corsAllowAll,
		CORSOrigins:            corsOrigins,
		CORSAllowCreds:         strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		RedisURL:               getEnv("REDIS_URL", ""),
		RedisTLSInsecure:       strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:         getEnv("ASYNQ_QUEUE_NAME", "default"),
		AsynqConcurrency:       mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		StaleProposalAge:       mustDuration(getEnv("STALE_PROPOSAL_AGE", "168h")),
		ApprovalReminderDelay:  mustDuration(getEnv("APPROVAL_REMINDER_DELAY", "4h")),
		BoardAPIURL:            getEnv("BOARD_API_URL", ""),
		BoardAPIToken:          getEnv("BOARD_API_TOKEN", ""),
		BoardHTTPTimeout:       mustDuration(getEnv("BOARD_HTTP_TIMEOUT", "10s")),
		WriteRatePerMinute:     mustInt(getEnv("WRITE_RATE_PER_MINUTE", "40")),
		WriteMaxAttempts:       mustInt(getEnv("WRITE_MAX_ATTEMPTS", "5")),
		WriteBaseDelay:         mustDuration(getEnv("WRITE_BASE_DELAY", "500ms")),
		WriteMaxDelay:          mustDuration(getEnv("WRITE_MAX_DELAY", "30s")),
		WriteBackoffMultiplier: mustFloat(getEnv("WRITE_BACKOFF_MULTIPLIER", "2.0")),
		DirectoryCacheTTL:      mustDuration(getEnv("DIRECTORY_CACHE_TTL", "10m")),
		EmailEnabled:           emailEnabled && smtpHost != "",
		SMTPHost:               smtpHost,
		SMTPPort:               mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:           getEnv("SMTP_USERNAME", ""),
		SMTPPassword:           getEnv("SMTP_PASSWORD", ""),
		EmailFromName:          getEnv("EMAIL_FROM_NAME", "Lead Routing"),
		EmailFromAddress:       getEnv("EMAIL_FROM_ADDRESS", ""),
		ApproverAddresses:      splitCSV(getEnv("APPROVER_ADDRESSES", "")),
		ScoringDefaultsPath:    getEnv("SCORING_DEFAULTS_PATH", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.BoardAPIURL == "" {
		return nil, fmt.Errorf("BOARD_API_URL is required")
	}
	if cfg.WriteRatePerMinute < 1 {
		return nil, fmt.Errorf("WRITE_RATE_PER_MINUTE must be at least 1")
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

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(value, 64)
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
