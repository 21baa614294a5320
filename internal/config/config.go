package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrMissingAPIKey is returned when no provider key is configured.
var ErrMissingAPIKey = errors.New("provider API key is required (API_KEY or WEATHERAPI_API_KEY)")

const dateLayout = "2006-01-02"

// LedgerConfig locates the durable store.
type LedgerConfig struct {
	Driver   string `yaml:"driver" validate:"oneof=bigquery postgres duckdb sqlite memory"`
	DSN      string `yaml:"dsn"`
	Project  string `yaml:"project" validate:"required_if=Driver bigquery"`
	Dataset  string `yaml:"dataset" validate:"required_if=Driver bigquery"`
	Table    string `yaml:"table" validate:"required"`
	Location string `yaml:"location"`
}

type AppConfig struct {
	APIKey           string `yaml:"api_key"`
	ProviderEndpoint string `yaml:"provider_endpoint" validate:"required,url"`

	// Location and Date name the unit a one-shot run ingests.
	Location string `yaml:"location" validate:"required"`
	Date     string `yaml:"date" validate:"required,datetime=2006-01-02"`

	HTTPTimeout       time.Duration `yaml:"http_timeout" validate:"gt=0"`
	RunTimeout        time.Duration `yaml:"run_timeout" validate:"gt=0"`
	ProviderRateLimit float64       `yaml:"provider_rate_limit" validate:"gte=0"`

	Ledger LedgerConfig `yaml:"ledger"`

	Port string `yaml:"port" validate:"required"`

	// Schedule is a cron expression for serve mode; empty disables it.
	Schedule string `yaml:"schedule"`
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`

	// datePinned is set when Date came from the file, the environment or PinDate
	// rather than from the rolling default.
	datePinned bool
}

// PinDate fixes the date every run without an explicit date ingests.
func (c *AppConfig) PinDate(date string) {
	c.Date = date
	c.datePinned = true
}

// DefaultDate is the date for a run that names none: the pinned date if one
// was configured, otherwise yesterday at the time of the call.
func (c *AppConfig) DefaultDate() string {
	if c.datePinned {
		return c.Date
	}
	return Yesterday()
}

var validate = validator.New()

// now is the clock used for the default date.
var now = time.Now

// Load reads configuration from an optional .env file, an optional YAML
// file at path, and the environment, in that order of increasing priority.
func Load(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	cfg := defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	switch cfg.Ledger.Driver {
	case "postgres", "duckdb", "sqlite":
		if cfg.Ledger.DSN == "" {
			return nil, fmt.Errorf("invalid configuration: LEDGER_DSN is required for driver %s", cfg.Ledger.Driver)
		}
	}
	return cfg, nil
}

// Yesterday returns the previous UTC calendar day as YYYY-MM-DD.
func Yesterday() string {
	return now().UTC().AddDate(0, 0, -1).Format(dateLayout)
}

func defaults() *AppConfig {
	return &AppConfig{
		ProviderEndpoint: "https://api.weatherapi.com/v1/history.json",
		Location:         "Stockholm",
		HTTPTimeout:      30 * time.Second,
		RunTimeout:       2 * time.Minute,
		Ledger: LedgerConfig{
			Driver:   "bigquery",
			Table:    "weather_data",
			Location: "EU",
		},
		Port:     "8080",
		LogLevel: "info",
	}
}

func applyEnv(cfg *AppConfig) error {
	cfg.APIKey = getenvDefault("API_KEY", getenvDefault("WEATHERAPI_API_KEY", cfg.APIKey))
	cfg.ProviderEndpoint = getenvDefault("PROVIDER_ENDPOINT", cfg.ProviderEndpoint)
	cfg.Location = getenvDefault("LOCATION", cfg.Location)
	if date := getenvDefault("DATE", cfg.Date); date != "" {
		cfg.PinDate(date)
	} else {
		cfg.Date = Yesterday()
	}

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", cfg.HTTPTimeout); err != nil {
		return err
	}
	if cfg.RunTimeout, err = getenvDuration("RUN_TIMEOUT", cfg.RunTimeout); err != nil {
		return err
	}
	if v := os.Getenv("PROVIDER_RATE_LIMIT"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid PROVIDER_RATE_LIMIT: %w", err)
		}
		cfg.ProviderRateLimit = rps
	}

	cfg.Ledger.Driver = getenvDefault("LEDGER_DRIVER", cfg.Ledger.Driver)
	cfg.Ledger.DSN = getenvDefault("LEDGER_DSN", cfg.Ledger.DSN)
	cfg.Ledger.Project = getenvDefault("GCP_PROJECT_ID", cfg.Ledger.Project)
	cfg.Ledger.Dataset = getenvDefault("BQ_DATASET_ID", cfg.Ledger.Dataset)
	cfg.Ledger.Table = getenvDefault("BQ_TABLE_ID", cfg.Ledger.Table)
	cfg.Ledger.Location = getenvDefault("BQ_LOCATION", cfg.Ledger.Location)

	cfg.Port = getenvDefault("PORT", cfg.Port)
	cfg.Schedule = getenvDefault("INGEST_SCHEDULE", cfg.Schedule)
	cfg.LogLevel = getenvDefault("LOG_LEVEL", cfg.LogLevel)
	return nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
