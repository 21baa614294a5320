package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearEnv blanks every variable Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"API_KEY", "WEATHERAPI_API_KEY", "PROVIDER_ENDPOINT", "LOCATION", "DATE",
		"HTTP_TIMEOUT", "RUN_TIMEOUT", "PROVIDER_RATE_LIMIT",
		"LEDGER_DRIVER", "LEDGER_DSN", "GCP_PROJECT_ID", "BQ_DATASET_ID", "BQ_TABLE_ID", "BQ_LOCATION",
		"PORT", "INGEST_SCHEDULE", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
	// godotenv reads .env from the working directory.
	t.Chdir(t.TempDir())
}

func fixClock(t *testing.T, ts time.Time) {
	t.Helper()
	prev := now
	now = func() time.Time { return ts }
	t.Cleanup(func() { now = prev })
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	fixClock(t, time.Date(2024, 3, 2, 0, 30, 0, 0, time.UTC))
	t.Setenv("API_KEY", "secret")
	t.Setenv("GCP_PROJECT_ID", "proj")
	t.Setenv("BQ_DATASET_ID", "weather")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Location != "Stockholm" {
		t.Errorf("expected default location Stockholm, got %q", cfg.Location)
	}
	if cfg.Date != "2024-03-01" {
		t.Errorf("expected yesterday's date, got %q", cfg.Date)
	}
	if cfg.HTTPTimeout != 30*time.Second || cfg.RunTimeout != 2*time.Minute {
		t.Errorf("unexpected timeouts %v / %v", cfg.HTTPTimeout, cfg.RunTimeout)
	}
	if cfg.Ledger.Driver != "bigquery" || cfg.Ledger.Table != "weather_data" || cfg.Ledger.Location != "EU" {
		t.Errorf("unexpected ledger defaults %+v", cfg.Ledger)
	}
	if cfg.Port != "8080" || cfg.Schedule != "" || cfg.LogLevel != "info" {
		t.Errorf("unexpected serve defaults %q %q %q", cfg.Port, cfg.Schedule, cfg.LogLevel)
	}
}

func TestLoadAPIKeyFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("WEATHERAPI_API_KEY", "legacy")
	t.Setenv("LEDGER_DRIVER", "memory")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APIKey != "legacy" {
		t.Errorf("expected fallback key, got %q", cfg.APIKey)
	}

	t.Setenv("API_KEY", "primary")
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APIKey != "primary" {
		t.Errorf("API_KEY must win over the fallback, got %q", cfg.APIKey)
	}
}

func TestLoadMissingAPIKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("LEDGER_DRIVER", "memory")

	_, err := Load("")
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "ingest.yaml")
	yml := `api_key: from-file
location: Gothenburg
date: "2024-01-15"
http_timeout: 5s
provider_rate_limit: 0.5
ledger:
  driver: sqlite
  dsn: /var/lib/weather/ledger.db
  table: raw_weather
schedule: "0 3 * * *"
log_level: debug
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LOCATION", "Malmo")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.APIKey != "from-file" {
		t.Errorf("unexpected api key %q", cfg.APIKey)
	}
	if cfg.Location != "Malmo" {
		t.Errorf("environment must override the file, got %q", cfg.Location)
	}
	if cfg.Date != "2024-01-15" {
		t.Errorf("unexpected date %q", cfg.Date)
	}
	if cfg.HTTPTimeout != 5*time.Second {
		t.Errorf("unexpected http timeout %v", cfg.HTTPTimeout)
	}
	if cfg.ProviderRateLimit != 0.5 {
		t.Errorf("unexpected rate limit %v", cfg.ProviderRateLimit)
	}
	if cfg.Ledger.Driver != "sqlite" || cfg.Ledger.DSN != "/var/lib/weather/ledger.db" || cfg.Ledger.Table != "raw_weather" {
		t.Errorf("unexpected ledger %+v", cfg.Ledger)
	}
	if cfg.Schedule != "0 3 * * *" || cfg.LogLevel != "debug" {
		t.Errorf("unexpected schedule/log level %q %q", cfg.Schedule, cfg.LogLevel)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad date", map[string]string{"DATE": "01/03/2024"}},
		{"bad driver", map[string]string{"LEDGER_DRIVER": "cassandra"}},
		{"bad duration", map[string]string{"HTTP_TIMEOUT": "soon"}},
		{"bad rate", map[string]string{"PROVIDER_RATE_LIMIT": "fast"}},
		{"negative rate", map[string]string{"PROVIDER_RATE_LIMIT": "-1"}},
		{"missing dsn", map[string]string{"LEDGER_DRIVER": "postgres"}},
		{"missing bigquery dataset", map[string]string{"LEDGER_DRIVER": "bigquery", "GCP_PROJECT_ID": "proj"}},
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("API_KEY", "secret")
			t.Setenv("LEDGER_DRIVER", "memory")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(""); err == nil {
				t.Fatal("expected configuration error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_KEY", "secret")
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestDefaultDate(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_KEY", "secret")
	t.Setenv("LEDGER_DRIVER", "memory")
	fixClock(t, time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC))

	rolling, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := rolling.DefaultDate(); got != "2024-03-01" {
		t.Errorf("expected yesterday, got %q", got)
	}
	// A long-lived process must follow the calendar when no date is pinned.
	fixClock(t, time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC))
	if got := rolling.DefaultDate(); got != "2024-03-04" {
		t.Errorf("expected the rolling default to advance, got %q", got)
	}

	t.Setenv("DATE", "2024-02-29")
	pinned, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := pinned.DefaultDate(); got != "2024-02-29" {
		t.Errorf("expected the configured date, got %q", got)
	}

	rolling.PinDate("2024-01-01")
	if got := rolling.DefaultDate(); got != "2024-01-01" || rolling.Date != "2024-01-01" {
		t.Errorf("PinDate not honoured, got %q / %q", got, rolling.Date)
	}
}
