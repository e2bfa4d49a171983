package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Storage
	StorageBackend string // sqlite, postgres or memory
	SQLitePath     string
	PostgresDSN    string

	// Scheduling
	DueSoonDays        int
	ProcessParallelism int
	ScheduleSpec       string
	RunOnStart         bool

	// AMQP (optional; empty URL disables publishing)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Mail reminders (optional; empty host disables mail)
	SMTPHost        string
	SMTPPort        int
	SMTPUsername    string
	SMTPPassword    string
	SMTPFrom        string
	NotifyTo        string
	ReceiptsEnabled bool

	// Exchange rates
	RatesFeedURL string
	RatesTTL     time.Duration

	// Shared secret for the manual sweep endpoint
	CronToken string

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	cfg := &Config{
		Port: getEnv("PORT", "8081"),

		StorageBackend: getEnv("DATABASE_BACKEND", "sqlite"),
		SQLitePath:     getEnv("SQLITE_PATH", "./data/scadenze.db"),
		PostgresDSN:    getEnv("POSTGRES_DSN", ""),

		DueSoonDays:        getEnvInt("DUE_SOON_DAYS", 3),
		ProcessParallelism: getEnvInt("PROCESS_PARALLELISM", 4),
		ScheduleSpec:       getEnv("SCHEDULE_SPEC", "0 6 * * *"),
		RunOnStart:         getEnvBool("RUN_ON_START", false),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "scadenze"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "occurrences"),

		SMTPHost:        getEnv("SMTP_HOST", ""),
		SMTPPort:        getEnvInt("SMTP_PORT", 587),
		SMTPUsername:    getEnv("SMTP_USERNAME", ""),
		SMTPPassword:    getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:        getEnv("SMTP_FROM", ""),
		NotifyTo:        getEnv("NOTIFY_TO", ""),
		ReceiptsEnabled: getEnvBool("RECEIPTS_ENABLED", false),

		RatesFeedURL: getEnv("RATES_FEED_URL", ""),
		RatesTTL:     getEnvDuration("RATES_TTL", time.Hour),

		CronToken: getEnv("CRON_TOKEN", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	return cfg
}

// StorageDSN returns the dsn matching the selected backend.
func (c *Config) StorageDSN() string {
	if c.StorageBackend == "postgres" {
		return c.PostgresDSN
	}
	return c.SQLitePath
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate storage backend
	validBackends := []string{"memory", "sqlite", "postgres"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.StorageBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid storage backend '%s': must be one of %v", c.StorageBackend, validBackends))
	}

	// Validate SQLite configuration if backend is sqlite
	if c.StorageBackend == "sqlite" {
		if c.SQLitePath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			// Check if directory exists or can be created
			dir := filepath.Dir(c.SQLitePath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	// Validate Postgres configuration if backend is postgres
	if c.StorageBackend == "postgres" && c.PostgresDSN == "" {
		errors = append(errors, "Postgres DSN cannot be empty when using postgres backend")
	}

	// Validate sweep parameters
	if c.DueSoonDays < 0 {
		errors = append(errors, fmt.Sprintf("invalid due soon window %d: must be at least 0 days", c.DueSoonDays))
	} else if c.DueSoonDays > 365 {
		errors = append(errors, fmt.Sprintf("invalid due soon window %d: must be at most 365 days", c.DueSoonDays))
	}

	if c.ProcessParallelism < 1 {
		errors = append(errors, fmt.Sprintf("invalid process parallelism %d: must be at least 1", c.ProcessParallelism))
	} else if c.ProcessParallelism > 64 {
		errors = append(errors, fmt.Sprintf("invalid process parallelism %d: must be at most 64", c.ProcessParallelism))
	}

	if strings.TrimSpace(c.ScheduleSpec) == "" {
		errors = append(errors, "schedule spec cannot be empty")
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}

		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Validate mail configuration if SMTP is configured
	if c.SMTPHost != "" {
		if c.SMTPPort < 1 || c.SMTPPort > 65535 {
			errors = append(errors, fmt.Sprintf("invalid SMTP port %d: must be between 1 and 65535", c.SMTPPort))
		}
		if c.SMTPFrom == "" {
			errors = append(errors, "SMTP from address cannot be empty when SMTP host is provided")
		}
		if c.NotifyTo == "" {
			errors = append(errors, "notify address cannot be empty when SMTP host is provided")
		}
	}

	// Validate rates cache TTL
	if c.RatesTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid rates TTL %v: must be at least 1 minute", c.RatesTTL))
	} else if c.RatesTTL > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid rates TTL %v: must be at most 24 hours", c.RatesTTL))
	}

	// Validate logging
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of [debug info warn error]", c.LogLevel))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of [text json]", c.LogFormat))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
