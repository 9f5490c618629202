package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. FINAI_PORT. The bare
// names (PORT, AMQP_URL, ...) are accepted too.
const EnvPrefix = "FINAI"

type Config struct {
	// HTTP Server
	Port string

	// Storage
	DataBackend  string
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Classifier
	GeminiAPIKey  string
	GeminiModel   string
	GeminiTimeout time.Duration

	// Google Sheets export
	GoogleSpreadsheetID   string
	GoogleSheetName       string
	GoogleCredentialsFile string
	GoogleCredentialsJSON string

	// Receipt archive (GCS bucket); empty disables archiving
	ReceiptsBucket string

	// Sessions
	SaveDelay        time.Duration
	SessionTTL       time.Duration
	SessionCacheSize int
	AutoRecurring    bool

	RateLimitPerMinute int
	LogLevel           string
}

// keys lists every setting with its default.
var keys = map[string]any{
	"port":                    "8081",
	"data_backend":            "sqlite",
	"sqlite_db_path":          "./data/finai.db",
	"amqp_url":                "",
	"amqp_exchange":           "finai",
	"amqp_queue":              "sync_transactions",
	"gemini_api_key":          "",
	"gemini_model":            "gemini-2.5-flash",
	"gemini_timeout":          "30s",
	"google_spreadsheet_id":   "",
	"google_sheet_name":       "Lançamentos",
	"google_credentials_file": "",
	"google_credentials_json": "",
	"receipts_bucket":         "",
	"save_delay":              "1s",
	"session_ttl":             "30m",
	"session_cache_size":      256,
	"auto_recurring":          false,
	"rate_limit_per_minute":   10,
	"log_level":               "info",
}

// Load reads configuration from defaults, an optional config file and the
// environment, in increasing precedence. The file is FINAI_CONFIG when set,
// otherwise finai.{yaml,toml,json} in the working directory if present.
func Load() (*Config, error) {
	v := viper.New()
	for key, def := range keys {
		v.SetDefault(key, def)
		upper := strings.ToUpper(key)
		if err := v.BindEnv(key, EnvPrefix+"_"+upper, upper); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	// GEMINI_API_KEY and API_KEY also set the Gemini key.
	if err := v.BindEnv("gemini_api_key", EnvPrefix+"_GEMINI_API_KEY", "GEMINI_API_KEY", "API_KEY"); err != nil {
		return nil, fmt.Errorf("bind env gemini_api_key: %w", err)
	}

	if path := os.Getenv(EnvPrefix + "_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("finai")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	return &Config{
		Port:                  v.GetString("port"),
		DataBackend:           strings.ToLower(v.GetString("data_backend")),
		SQLiteDBPath:          v.GetString("sqlite_db_path"),
		AMQPURL:               v.GetString("amqp_url"),
		AMQPExchange:          v.GetString("amqp_exchange"),
		AMQPQueue:             v.GetString("amqp_queue"),
		GeminiAPIKey:          v.GetString("gemini_api_key"),
		GeminiModel:           v.GetString("gemini_model"),
		GeminiTimeout:         v.GetDuration("gemini_timeout"),
		GoogleSpreadsheetID:   v.GetString("google_spreadsheet_id"),
		GoogleSheetName:       v.GetString("google_sheet_name"),
		GoogleCredentialsFile: v.GetString("google_credentials_file"),
		GoogleCredentialsJSON: v.GetString("google_credentials_json"),
		ReceiptsBucket:        v.GetString("receipts_bucket"),
		SaveDelay:             v.GetDuration("save_delay"),
		SessionTTL:            v.GetDuration("session_ttl"),
		SessionCacheSize:      v.GetInt("session_cache_size"),
		AutoRecurring:         v.GetBool("auto_recurring"),
		RateLimitPerMinute:    v.GetInt("rate_limit_per_minute"),
		LogLevel:              strings.ToLower(v.GetString("log_level")),
	}, nil
}

// SheetsEnabled reports whether confirmed transactions are exported.
func (c *Config) SheetsEnabled() bool { return c.GoogleSpreadsheetID != "" }

// Validate validates the configuration and returns every problem at once.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{"memory", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
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
	}

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

	if c.GeminiTimeout < time.Second || c.GeminiTimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid gemini timeout %v: must be between 1s and 5m", c.GeminiTimeout))
	}

	if c.SheetsEnabled() {
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when a spreadsheet is configured")
		}
		if c.GoogleCredentialsFile != "" {
			if _, err := os.Stat(c.GoogleCredentialsFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google credentials file does not exist: %s", c.GoogleCredentialsFile))
			}
		}
	}

	if c.SaveDelay <= 0 || c.SaveDelay > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid save delay %v: must be greater than 0 and at most 1 minute", c.SaveDelay))
	}
	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}
	if c.SessionCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid session cache size %d: must be at least 1", c.SessionCacheSize))
	}
	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 per minute", c.RateLimitPerMinute))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}
