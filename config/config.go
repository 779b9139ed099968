// Package config loads and validates the vigil service configuration from a
// YAML file plus VIGIL_* environment overrides.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the vigil service.
type Config struct {
	Storage struct {
		// SQLitePath is the database file path; ":memory:" for ephemeral runs.
		SQLitePath string `mapstructure:"sqlite_path"`
	} `mapstructure:"storage"`

	Redis struct {
		Enabled  bool          `mapstructure:"enabled"`
		Addr     string        `mapstructure:"addr"`
		Password string        `mapstructure:"password"`
		DB       int           `mapstructure:"db"`
		PoolSize int           `mapstructure:"pool_size"`
		TTL      time.Duration `mapstructure:"ttl"`
	} `mapstructure:"redis"`

	Rules struct {
		// Dir is the directory whose *.yaml files are loaded as correlation
		// rules at startup.
		Dir string `mapstructure:"dir"`
	} `mapstructure:"rules"`

	Promotion struct {
		MinBand       string  `mapstructure:"min_band"`
		MinScore      float64 `mapstructure:"min_score"`
		MinDetections int     `mapstructure:"min_detections"`
	} `mapstructure:"promotion"`

	API struct {
		Port           int      `mapstructure:"port"`
		TLS            bool     `mapstructure:"tls"`
		CertFile       string   `mapstructure:"cert_file"`
		KeyFile        string   `mapstructure:"key_file"`
		AllowedOrigins []string `mapstructure:"allowed_origins"`
		TrustProxy     bool     `mapstructure:"trust_proxy"`
		MaxBodyBytes   int64    `mapstructure:"max_body_bytes"`
		RateLimit      struct {
			RequestsPerSecond int `mapstructure:"requests_per_second"`
			Burst             int `mapstructure:"burst"`
		} `mapstructure:"rate_limit"`
	} `mapstructure:"api"`

	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`
}

// setDefaults sets default configuration values.
func setDefaults() {
	viper.SetDefault("storage.sqlite_path", "./data/vigil.db")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.ttl", 24*time.Hour)

	viper.SetDefault("rules.dir", "./rules")

	viper.SetDefault("promotion.min_band", "MEDIUM")
	viper.SetDefault("promotion.min_score", 0.4)
	viper.SetDefault("promotion.min_detections", 2)

	viper.SetDefault("api.port", 8084)
	viper.SetDefault("api.tls", false)
	viper.SetDefault("api.cert_file", "server.crt")
	viper.SetDefault("api.key_file", "server.key")
	viper.SetDefault("api.allowed_origins", []string{})
	viper.SetDefault("api.trust_proxy", false)
	viper.SetDefault("api.max_body_bytes", 1<<20)
	viper.SetDefault("api.rate_limit.requests_per_second", 50)
	viper.SetDefault("api.rate_limit.burst", 100)

	viper.SetDefault("logging.level", "info")
}

// loadFromEnv wires VIGIL_* environment overrides.
func loadFromEnv() {
	viper.SetEnvPrefix("VIGIL")
	viper.AutomaticEnv()

	_ = viper.BindEnv("storage.sqlite_path", "VIGIL_SQLITE_PATH")
	_ = viper.BindEnv("rules.dir", "VIGIL_RULES_DIR")
	_ = viper.BindEnv("redis.addr", "VIGIL_REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "VIGIL_REDIS_PASSWORD")
	_ = viper.BindEnv("api.port", "VIGIL_API_PORT")
}

// validateConfig checks cross-field constraints viper cannot express.
func validateConfig(c *Config) error {
	if c.API.Port < 1 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	if c.API.TLS && (c.API.CertFile == "" || c.API.KeyFile == "") {
		return fmt.Errorf("api.tls requires cert_file and key_file")
	}
	if c.Promotion.MinScore < 0 || c.Promotion.MinScore > 1 {
		return fmt.Errorf("promotion.min_score %.2f out of [0,1]", c.Promotion.MinScore)
	}
	if c.Promotion.MinDetections < 1 {
		return fmt.Errorf("promotion.min_detections must be at least 1")
	}
	switch c.Promotion.MinBand {
	case "LOW", "MEDIUM", "HIGH", "VERY_HIGH":
	default:
		return fmt.Errorf("promotion.min_band %q is not a confidence band", c.Promotion.MinBand)
	}
	if c.API.RateLimit.RequestsPerSecond < 1 {
		return fmt.Errorf("api.rate_limit.requests_per_second must be positive")
	}
	return nil
}

// LoadConfig loads configuration from file and environment variables. A
// missing config file is not an error; defaults and env vars apply.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()
	loadFromEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, will use defaults and env vars
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}
