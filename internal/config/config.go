// Package config provides configuration management for Mira.
// It loads settings from environment variables with the MIRA_ prefix,
// optionally overlays a YAML file, and provides sensible defaults for all
// configuration options.
//
// Runtime extractor tuning (cache size, confidence threshold) lives in the
// settings table in the database and is read by the extractor at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the Mira server.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	LLM       LLMConfig       `yaml:"llm"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Notify    NotifyConfig    `yaml:"notify"`
	Security  SecurityConfig  `yaml:"security"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"` // default: 7070
	Host string `yaml:"host"` // default: 127.0.0.1
}

// StorageConfig contains database configuration.
type StorageConfig struct {
	// Engine selects the backend: "sqlite" (default) or "postgres".
	Engine string `yaml:"engine"`
	// DataPath is the directory for the SQLite database file.
	DataPath string `yaml:"data_path"`
	// PostgresURL is the connection string when Engine is "postgres".
	PostgresURL string `yaml:"postgres_url"`
}

// LLMConfig contains completion endpoint configuration.
type LLMConfig struct {
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`        // default: https://api.openai.com/v1
	Model          string        `yaml:"model"`           // default: gpt-4o-mini
	MaxTokens      int           `yaml:"max_tokens"`      // default: 300
	Temperature    float64       `yaml:"temperature"`     // default: 0.2
	Timeout        time.Duration `yaml:"timeout"`         // default: 15s
	MaxConcurrency int           `yaml:"max_concurrency"` // default: 3
}

// SchedulerConfig contains the task scheduler's loop settings.
type SchedulerConfig struct {
	ScanInterval   time.Duration `yaml:"scan_interval"`   // default: 60s
	TickInterval   time.Duration `yaml:"tick_interval"`   // default: 1s
	ScanLimit      int           `yaml:"scan_limit"`      // default: 100
	BootstrapLimit int           `yaml:"bootstrap_limit"` // default: 200
	MaxQueueSize   int           `yaml:"max_queue_size"`  // default: 1000
	MaxFailures    int           `yaml:"max_failures"`    // default: 5
}

// NotifyConfig contains delivery channel endpoints. An empty URL leaves the
// channel unconfigured; attempts on it fail and are logged as such.
type NotifyConfig struct {
	PushGatewayURL string `yaml:"push_gateway_url"`
	SMSGatewayURL  string `yaml:"sms_gateway_url"`
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	Mode     string `yaml:"mode"` // development (default) or production
	APIToken string `yaml:"api_token"`
}

// Load builds the configuration from environment variables with defaults.
// If path is non-empty the YAML file at that location is applied on top of
// the environment values.
func Load(path string) (*Config, error) {
	cfg := buildBaseConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	return cfg, nil
}

// buildBaseConfig constructs a Config with values from environment variables
// and defaults.
func buildBaseConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("MIRA_PORT", 7070),
			Host: getEnv("MIRA_HOST", "127.0.0.1"),
		},
		Storage: StorageConfig{
			Engine:      getEnv("MIRA_STORAGE_ENGINE", "sqlite"),
			DataPath:    getEnv("MIRA_DATA_PATH", "./data"),
			PostgresURL: getEnv("MIRA_POSTGRES_URL", ""),
		},
		LLM: LLMConfig{
			APIKey:         getEnv("MIRA_OPENAI_API_KEY", ""),
			BaseURL:        getEnv("MIRA_OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:          getEnv("MIRA_OPENAI_MODEL", "gpt-4o-mini"),
			MaxTokens:      getEnvInt("MIRA_LLM_MAX_TOKENS", 300),
			Temperature:    getEnvFloat("MIRA_LLM_TEMPERATURE", 0.2),
			Timeout:        getEnvDuration("MIRA_LLM_TIMEOUT", 15*time.Second),
			MaxConcurrency: getEnvInt("MIRA_LLM_MAX_CONCURRENCY", 3),
		},
		Scheduler: SchedulerConfig{
			ScanInterval:   getEnvDuration("MIRA_SCHEDULER_SCAN_INTERVAL", 60*time.Second),
			TickInterval:   getEnvDuration("MIRA_SCHEDULER_TICK_INTERVAL", time.Second),
			ScanLimit:      getEnvInt("MIRA_SCHEDULER_SCAN_LIMIT", 100),
			BootstrapLimit: getEnvInt("MIRA_SCHEDULER_BOOTSTRAP_LIMIT", 200),
			MaxQueueSize:   getEnvInt("MIRA_SCHEDULER_MAX_QUEUE", 1000),
			MaxFailures:    getEnvInt("MIRA_SCHEDULER_MAX_FAIL", 5),
		},
		Notify: NotifyConfig{
			PushGatewayURL: getEnv("MIRA_PUSH_GATEWAY_URL", ""),
			SMSGatewayURL:  getEnv("MIRA_SMS_GATEWAY_URL", ""),
		},
		Security: SecurityConfig{
			Mode:     getEnv("MIRA_SECURITY_MODE", "development"),
			APIToken: getEnv("MIRA_API_TOKEN", ""),
		},
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable (Go duration
// syntax, e.g. "30s") or returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
