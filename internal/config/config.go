package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Sources  SourcesConfig
	Dispatch DispatchConfig
	Push     PushConfig
	Geocoder GeocoderConfig
	DB       DatabaseConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type SourceConfig struct {
	Enabled      bool
	URL          string
	PollInterval time.Duration
}

type SourcesConfig struct {
	USGS SourceConfig
	EMSC SourceConfig
	// Secondary is an optional USGS-format mirror polled under its own
	// watermark.
	Secondary SourceConfig
}

type DispatchConfig struct {
	// BatchSize is the provider-imposed maximum recipients per send
	// call.
	BatchSize      int
	CleanupWorkers int
	CleanupBuffer  int
}

type PushConfig struct {
	Endpoint string
	APIKey   string
	DryRun   bool
}

type GeocoderConfig struct {
	Enabled bool
	URL     string
}

type DatabaseConfig struct {
	Path string
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "localhost"),
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Sources: SourcesConfig{
			USGS: SourceConfig{
				Enabled:      getEnvBool("USGS_ENABLED", true),
				URL:          getEnv("USGS_URL", "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/all_hour.geojson"),
				PollInterval: getEnvDuration("USGS_POLL_INTERVAL", 5*time.Minute),
			},
			EMSC: SourceConfig{
				Enabled:      getEnvBool("EMSC_ENABLED", true),
				URL:          getEnv("EMSC_URL", "https://www.seismicportal.eu/fdsnws/event/1/query?format=json&limit=100"),
				PollInterval: getEnvDuration("EMSC_POLL_INTERVAL", 5*time.Minute),
			},
			Secondary: SourceConfig{
				Enabled:      getEnvBool("SECONDARY_ENABLED", false),
				URL:          getEnv("SECONDARY_URL", ""),
				PollInterval: getEnvDuration("SECONDARY_POLL_INTERVAL", 10*time.Minute),
			},
		},
		Dispatch: DispatchConfig{
			BatchSize:      getEnvInt("DISPATCH_BATCH_SIZE", 500),
			CleanupWorkers: getEnvInt("CLEANUP_WORKER_COUNT", 4),
			CleanupBuffer:  getEnvInt("CLEANUP_BUFFER_SIZE", 100),
		},
		Push: PushConfig{
			Endpoint: getEnv("PUSH_ENDPOINT", ""),
			APIKey:   getEnv("PUSH_API_KEY", ""),
			DryRun:   getEnvBool("PUSH_DRY_RUN", true),
		},
		Geocoder: GeocoderConfig{
			Enabled: getEnvBool("GEOCODER_ENABLED", false),
			URL:     getEnv("GEOCODER_URL", "https://nominatim.openstreetmap.org"),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/quake-notify.db"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Sources.USGS.Enabled && c.Sources.USGS.PollInterval < time.Minute {
		return fmt.Errorf("USGS poll interval must be at least 1 minute")
	}
	if c.Sources.EMSC.Enabled && c.Sources.EMSC.PollInterval < time.Minute {
		return fmt.Errorf("EMSC poll interval must be at least 1 minute")
	}
	if c.Sources.Secondary.Enabled {
		if c.Sources.Secondary.URL == "" {
			return fmt.Errorf("secondary source enabled without a URL")
		}
		if c.Sources.Secondary.PollInterval < time.Minute {
			return fmt.Errorf("secondary poll interval must be at least 1 minute")
		}
	}

	if c.Dispatch.BatchSize < 1 {
		return fmt.Errorf("invalid dispatch batch size: %d", c.Dispatch.BatchSize)
	}
	if c.Dispatch.CleanupWorkers < 1 {
		return fmt.Errorf("invalid cleanup worker count: %d", c.Dispatch.CleanupWorkers)
	}

	if !c.Push.DryRun && c.Push.Endpoint == "" {
		return fmt.Errorf("push endpoint required unless PUSH_DRY_RUN is set")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
