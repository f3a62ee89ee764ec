// Package config provides configuration management functionality.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Notification channel names accepted in NOTIFY_CHANNELS
const (
	ChannelLog      = "log"
	ChannelTelegram = "telegram"
	ChannelMailgun  = "mailgun"
)

// Config holds application configuration
type Config struct {
	DataDir   string `validate:"required"` // Base directory for history.db and exports (always absolute)
	LogLevel  string `validate:"oneof=debug info warn error"`
	LogPretty bool
	HTTPPort  int    `validate:"min=1,max=65535"`
	Schedule  string `validate:"required"` // Cron spec with seconds for serve mode

	Source   SourceConfig
	Table    TableConfig
	Digest   DigestConfig
	Notify   NotifyConfig
	Telegram TelegramConfig
	Mailgun  MailgunConfig
	Backup   BackupConfig
}

// SourceConfig selects where the raw document comes from
type SourceConfig struct {
	File              string // Read from a local file when set
	URL               string `validate:"omitempty,url"`
	FirecrawlAPIKey   string
	FirecrawlEndpoint string `validate:"omitempty,url"`
}

// TableConfig holds the section markers of the holdings table
type TableConfig struct {
	Marker     string `validate:"required"`
	EndMarkers []string
	Totals     string
}

// DigestConfig holds digest rendering options
type DigestConfig struct {
	Threshold      float64 `validate:"gte=0"`
	Unit           string
	IncludeNew     bool
	IncludeRemoved bool
}

// NotifyConfig lists the enabled delivery channels
type NotifyConfig struct {
	Channels []string `validate:"dive,oneof=log telegram mailgun"`
}

// TelegramConfig holds Telegram bot credentials
type TelegramConfig struct {
	Token     string
	ChatID    string
	ParseMode string `validate:"omitempty,oneof=Markdown HTML plain"`
}

// MailgunConfig holds Mailgun delivery settings
type MailgunConfig struct {
	Domain    string
	APIKey    string
	Sender    string // "Name <address>" is accepted
	Recipient string `validate:"omitempty,email"`
}

// BackupConfig holds S3-compatible backup settings
type BackupConfig struct {
	Enabled         bool
	Endpoint        string `validate:"omitempty,url"`
	Bucket          string `validate:"required_if=Enabled true"`
	Region          string
	AccessKeyID     string `validate:"required_if=Enabled true"`
	SecretAccessKey string `validate:"required_if=Enabled true"`
	RetentionDays   int    `validate:"gte=0"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("TREASURY_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:   absDataDir,
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogPretty: getEnvAsBool("LOG_PRETTY", true),
		HTTPPort:  getEnvAsInt("HTTP_PORT", 8080),
		Schedule:  getEnv("SCHEDULE", "0 0 9 * * *"),
		Source: SourceConfig{
			File:              getEnv("SOURCE_FILE", ""),
			URL:               getEnv("SOURCE_URL", "https://bitbo.io/public-companies-bitcoin/"),
			FirecrawlAPIKey:   getEnv("FIRECRAWL_API_KEY", ""),
			FirecrawlEndpoint: getEnv("FIRECRAWL_ENDPOINT", "https://api.firecrawl.dev/v1/scrape"),
		},
		Table: TableConfig{
			Marker:     getEnv("TABLE_MARKER", "Public Companies that Own Bitcoin"),
			EndMarkers: getEnvAsList("TABLE_END_MARKERS"),
			Totals:     getEnv("TOTALS_MARKER", "Totals"),
		},
		Digest: DigestConfig{
			Threshold:      getEnvAsFloat("ALERT_THRESHOLD", 1.0),
			Unit:           getEnv("DIGEST_UNIT", "BTC"),
			IncludeNew:     getEnvAsBool("DIGEST_INCLUDE_NEW", false),
			IncludeRemoved: getEnvAsBool("DIGEST_INCLUDE_REMOVED", false),
		},
		Notify: NotifyConfig{
			Channels: getEnvAsList("NOTIFY_CHANNELS"),
		},
		Telegram: TelegramConfig{
			Token:     getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:    getEnv("TELEGRAM_CHAT_ID", ""),
			ParseMode: getEnv("TELEGRAM_PARSE_MODE", "Markdown"),
		},
		Mailgun: MailgunConfig{
			Domain:    getEnv("MAILGUN_DOMAIN", ""),
			APIKey:    getEnv("MAILGUN_API_KEY", ""),
			Sender:    getEnv("MAILGUN_SENDER", ""),
			Recipient: getEnv("MAILGUN_RECIPIENT", ""),
		},
		Backup: BackupConfig{
			Enabled:         getEnvAsBool("BACKUP_ENABLED", false),
			Endpoint:        getEnv("BACKUP_ENDPOINT", ""),
			Bucket:          getEnv("BACKUP_BUCKET", ""),
			Region:          getEnv("BACKUP_REGION", "auto"),
			AccessKeyID:     getEnv("BACKUP_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("BACKUP_SECRET_ACCESS_KEY", ""),
			RetentionDays:   getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		},
	}
	for i, ch := range cfg.Notify.Channels {
		cfg.Notify.Channels[i] = strings.ToLower(ch)
	}
	if len(cfg.Notify.Channels) == 0 {
		cfg.Notify.Channels = []string{ChannelLog}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// HistoryPath returns the location of the history database
func (c *Config) HistoryPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

// ExportDir returns the default directory for flat-file exports
func (c *Config) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// Enabled reports whether a notification channel is configured
func (c *Config) Enabled(channel string) bool {
	return slices.Contains(c.Notify.Channels, channel)
}

var validate = validator.New()

// Validate checks struct constraints and the credentials of enabled channels
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Enabled(ChannelTelegram) && (c.Telegram.Token == "" || c.Telegram.ChatID == "") {
		return fmt.Errorf("invalid configuration: telegram channel requires TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID")
	}
	if c.Enabled(ChannelMailgun) && (c.Mailgun.Domain == "" || c.Mailgun.APIKey == "" || c.Mailgun.Sender == "" || c.Mailgun.Recipient == "") {
		return fmt.Errorf("invalid configuration: mailgun channel requires MAILGUN_DOMAIN, MAILGUN_API_KEY, MAILGUN_SENDER and MAILGUN_RECIPIENT")
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping blanks
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
