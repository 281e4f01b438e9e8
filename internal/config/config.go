package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"ledger/internal/log"
)

// Service values select how the CLI reaches the ledger.
const (
	ServiceNone = "none"
	ServiceHTTP = "http"
)

// Storage values select the persistence backend.
const (
	StorageJSON   = "json"
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
)

type Config struct {
	// Client
	Service  string        `env:"LEDGER_SERVICE" envDefault:"none"`
	Host     string        `env:"LEDGER_HOST" envDefault:"http://127.0.0.1:5000"`
	Timeout  time.Duration `env:"LEDGER_TIMEOUT" envDefault:"10s"`
	Username string        `env:"LEDGER_USERNAME"`
	Password string        `env:"LEDGER_PASSWORD"`

	// Frontend
	DefaultCategory string `env:"LEDGER_DEFAULT_CATEGORY" envDefault:"unspecified"`
	DateFormat      string `env:"LEDGER_DATE_FORMAT" envDefault:"01-02"`
	OfflineFile     string `env:"LEDGER_OFFLINE_FILE" envDefault:"data/offline.json"`

	// Storage
	DataDir    string `env:"LEDGER_DATA_DIR" envDefault:"data"`
	Storage    string `env:"LEDGER_STORAGE" envDefault:"json"`
	SQLitePath string `env:"LEDGER_SQLITE_PATH" envDefault:"data/ledger.db"`

	// HTTP service
	Port      string `env:"PORT" envDefault:"5000"`
	RateLimit int    `env:"LEDGER_RATE_LIMIT" envDefault:"60"`

	// AMQP
	AMQPURL      string `env:"LEDGER_AMQP_URL"`
	AMQPExchange string `env:"LEDGER_AMQP_EXCHANGE" envDefault:"ledger"`

	LogLevel string `env:"LEDGER_LOG_LEVEL" envDefault:"info"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	return parse(nil)
}

// LoadFile reads the configuration from a dotenv file. Values in the file
// take precedence over the environment. A missing file is an error.
func LoadFile(path string) (*Config, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	return parse(values)
}

func parse(overrides map[string]string) (*Config, error) {
	environ := env.ToMap(os.Environ())
	for k, v := range overrides {
		environ[k] = v
	}
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("parse configuration: %w", err)
	}
	return cfg, nil
}

// Addr is the listen address of the HTTP service.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if !slices.Contains([]string{ServiceNone, ServiceHTTP}, c.Service) {
		errors = append(errors, fmt.Sprintf("invalid service '%s': must be one of [%s %s]", c.Service, ServiceNone, ServiceHTTP))
	}
	if c.Service == ServiceHTTP && strings.TrimSpace(c.Host) == "" {
		errors = append(errors, "host cannot be empty when using the http service")
	}
	if c.Timeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid timeout %v: must be positive", c.Timeout))
	}

	if strings.TrimSpace(c.DefaultCategory) == "" {
		errors = append(errors, "default category cannot be empty")
	}
	if err := validateDateFormat(c.DateFormat); err != nil {
		errors = append(errors, err.Error())
	}

	validStorage := []string{StorageJSON, StorageMemory, StorageSQLite}
	if !slices.Contains(validStorage, c.Storage) {
		errors = append(errors, fmt.Sprintf("invalid storage '%s': must be one of %v", c.Storage, validStorage))
	}
	if c.Storage == StorageJSON && c.DataDir == "" {
		errors = append(errors, "data directory cannot be empty when using json storage")
	}
	if c.Storage == StorageSQLite && c.SQLitePath == "" {
		errors = append(errors, "SQLite database path cannot be empty when using sqlite storage")
	}

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}
	if c.RateLimit < 0 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must not be negative", c.RateLimit))
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
	}

	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of [debug info warn error]", c.LogLevel))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// validateDateFormat requires a layout that carries month and day and
// round-trips a known date.
func validateDateFormat(layout string) error {
	if layout == "" {
		return fmt.Errorf("date format cannot be empty")
	}
	ref := time.Date(2000, time.November, 23, 0, 0, 0, 0, time.UTC)
	parsed, err := time.Parse(layout, ref.Format(layout))
	if err != nil || parsed.Month() != ref.Month() || parsed.Day() != ref.Day() {
		return fmt.Errorf("invalid date format '%s': must contain month and day", layout)
	}
	return nil
}
