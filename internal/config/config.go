// Package config loads service settings from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Solar data provider.
	SolarAPIKey  string        `env:"SOLAR_API_KEY"`
	SolarBaseURL string        `env:"SOLAR_BASE_URL" envDefault:"https://solar.googleapis.com/v1"`
	SolarTimeout time.Duration `env:"SOLAR_TIMEOUT" envDefault:"30s"`

	// Building under analysis.
	BuildingLat  float64 `env:"BUILDING_LAT"`
	BuildingLng  float64 `env:"BUILDING_LNG"`
	RadiusMeters float64 `env:"RADIUS_METERS" envDefault:"50"`

	// Engine behavior.
	CacheCapacity int    `env:"LAYER_CACHE_CAPACITY" envDefault:"5"`
	DaylightOnly  bool   `env:"DAYLIGHT_ONLY" envDefault:"true"`
	OutputDir     string `env:"OUTPUT_DIR" envDefault:"out"`

	// Showcase event publishing (optional).
	KafkaEnabled bool     `env:"-"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"solar-showcase-events"`
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	// Event publishing is on whenever brokers are configured, with an
	// explicit override.
	cfg.KafkaEnabled = len(cfg.KafkaBrokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		cfg.KafkaEnabled = v == "true"
	}

	if cfg.SolarBaseURL == "" {
		return nil, errors.New("SOLAR_BASE_URL is required")
	}
	if cfg.SolarTimeout <= 0 {
		return nil, errors.New("invalid SOLAR_TIMEOUT")
	}
	if cfg.RadiusMeters <= 0 {
		return nil, errors.New("invalid RADIUS_METERS")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}

	return cfg, nil
}
