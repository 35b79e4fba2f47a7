package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	// HTTP Server
	Port string `toml:"port"`

	// Database
	SQLiteDBPath string `toml:"sqlite_db_path"`

	// AMQP; an empty URL disables publishing
	AMQPURL      string `toml:"amqp_url"`
	AMQPExchange string `toml:"amqp_exchange"`
	AMQPQueue    string `toml:"amqp_queue"`

	// Google Sheets ledger mirror
	GoogleSpreadsheetID      string `toml:"google_spreadsheet_id"`
	GoogleLedgerSheetName    string `toml:"google_ledger_sheet_name"`
	GoogleServiceAccountFile string `toml:"google_service_account_file"`
	GoogleServiceAccountJSON string `toml:"google_service_account_json"`

	// Bills
	DueSoonDays      int      `toml:"due_soon_days"`
	SummaryCacheSize int      `toml:"summary_cache_size"`
	SummaryCacheTTL  Duration `toml:"summary_cache_ttl"`

	// Worker
	MirrorBatchSize int `toml:"mirror_batch_size"`

	LogLevel string `toml:"log_level"`
}

// Duration decodes TOML strings such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Port:                  "8081",
		SQLiteDBPath:          "./data/bollette.db",
		AMQPExchange:          "bollette",
		AMQPQueue:             "bill_paid",
		GoogleLedgerSheetName: "Ledger",
		DueSoonDays:           5,
		SummaryCacheSize:      256,
		SummaryCacheTTL:       Duration{30 * time.Second},
		MirrorBatchSize:       10,
		LogLevel:              "info",
	}
}

// Load builds the configuration from defaults, then the TOML file at path
// (or CONFIG_FILE when path is empty), then environment variables. A
// missing file is an error only when it was asked for explicitly.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	explicit := path != ""
	if !explicit {
		path = os.Getenv("CONFIG_FILE")
		explicit = path != ""
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if explicit || !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.SQLiteDBPath = getEnv("SQLITE_DB_PATH", c.SQLiteDBPath)

	c.AMQPURL = getEnv("AMQP_URL", c.AMQPURL)
	c.AMQPExchange = getEnv("AMQP_EXCHANGE", c.AMQPExchange)
	c.AMQPQueue = getEnv("AMQP_QUEUE", c.AMQPQueue)

	c.GoogleSpreadsheetID = getEnv("GOOGLE_SPREADSHEET_ID", c.GoogleSpreadsheetID)
	c.GoogleLedgerSheetName = getEnv("GOOGLE_LEDGER_SHEET_NAME", c.GoogleLedgerSheetName)
	c.GoogleServiceAccountFile = getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", c.GoogleServiceAccountFile)
	c.GoogleServiceAccountJSON = getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", c.GoogleServiceAccountJSON)

	c.DueSoonDays = getEnvInt("DUE_SOON_DAYS", c.DueSoonDays)
	c.SummaryCacheSize = getEnvInt("SUMMARY_CACHE_SIZE", c.SummaryCacheSize)
	c.SummaryCacheTTL.Duration = getEnvDuration("SUMMARY_CACHE_TTL", c.SummaryCacheTTL.Duration)

	c.MirrorBatchSize = getEnvInt("MIRROR_BATCH_SIZE", c.MirrorBatchSize)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// SheetsEnabled reports whether a spreadsheet was configured.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
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

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
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

	if c.SheetsEnabled() {
		if c.GoogleServiceAccountFile == "" && c.GoogleServiceAccountJSON == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided with GOOGLE_SPREADSHEET_ID")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	if c.DueSoonDays < 1 || c.DueSoonDays > 31 {
		errors = append(errors, fmt.Sprintf("invalid due soon days %d: must be between 1 and 31", c.DueSoonDays))
	}
	if c.SummaryCacheSize < 0 {
		errors = append(errors, fmt.Sprintf("invalid summary cache size %d: must not be negative", c.SummaryCacheSize))
	}
	if c.SummaryCacheTTL.Duration < 0 || c.SummaryCacheTTL.Duration > time.Hour {
		errors = append(errors, fmt.Sprintf("invalid summary cache TTL %v: must be between 0 and 1 hour", c.SummaryCacheTTL.Duration))
	}

	if c.MirrorBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid mirror batch size %d: must be at least 1", c.MirrorBatchSize))
	} else if c.MirrorBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid mirror batch size %d: must be at most 1000", c.MirrorBatchSize))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
