// Package config loads the intake configuration file.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aretw0/intake/internal/logging"
	"github.com/aretw0/intake/pkg/conversation"
	"github.com/aretw0/intake/pkg/llm"
	"github.com/aretw0/intake/pkg/persistence/middleware"
	"github.com/aretw0/intake/pkg/telemetry"
	"gopkg.in/yaml.v3"
)

// EnvAPIKey is read when llm.api_key is left empty.
const EnvAPIKey = "OPENROUTER_API_KEY"

// Backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendLog    = "log"
	BackendSQLite = "sqlite"
	BackendNone   = "none"
)

// Config is the root of the configuration file.
type Config struct {
	LLM          LLMConfig          `yaml:"llm"`
	Conversation ConversationConfig `yaml:"conversation"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	Storage      StorageConfig      `yaml:"storage"`
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
}

type LLMConfig struct {
	APIKey        string        `yaml:"api_key"`
	BaseURL       string        `yaml:"base_url"`
	PrimaryModel  string        `yaml:"primary_model"`
	FallbackModel string        `yaml:"fallback_model"`
	Temperature   float32       `yaml:"temperature"`
	MaxTokens     int           `yaml:"max_tokens"`
	Timeout       time.Duration `yaml:"timeout"`
	AppName       string        `yaml:"app_name"`
	SiteURL       string        `yaml:"site_url"`
}

type ConversationConfig struct {
	// Flow is an optional flow definition file replacing the embedded one.
	Flow          string `yaml:"flow"`
	MaxRetries    int    `yaml:"max_retries"`
	HistoryWindow int    `yaml:"history_window"`
}

type TelemetryConfig struct {
	Backend      string        `yaml:"backend"`
	BufferSize   int           `yaml:"buffer_size"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	RedactKeys   []string      `yaml:"redact_keys"`
}

type StorageConfig struct {
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`
	SQLite  string      `yaml:"sqlite_path"`
	// EncryptionKey is a base64 AES-256 key; snapshots are stored encrypted when set.
	EncryptionKey string `yaml:"encryption_key"`
	// Cases selects the case database: memory (sample cases) or sqlite.
	Cases string `yaml:"cases"`
	// SeedCases loads the sample cases into the sqlite case database.
	SeedCases bool `yaml:"seed_cases"`
	// RedactSnapshots masks contact fields in stored snapshots. A resumed
	// conversation then sees the masked values.
	RedactSnapshots bool `yaml:"redact_snapshots"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MetricsPath string `yaml:"metrics_path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads and parses the configuration file. ${VAR} references are expanded
// from the environment. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a configuration document.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv(EnvAPIKey)
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = llm.DefaultBaseURL
	}
	if cfg.LLM.PrimaryModel == "" {
		cfg.LLM.PrimaryModel = llm.DefaultPrimaryModel
	}
	if cfg.LLM.FallbackModel == "" {
		cfg.LLM.FallbackModel = llm.DefaultFallbackModel
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = llm.DefaultTemperature
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = llm.DefaultMaxTokens
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = llm.DefaultTimeout
	}
	if cfg.LLM.AppName == "" {
		cfg.LLM.AppName = llm.DefaultAppName
	}
	if cfg.Conversation.MaxRetries == 0 {
		cfg.Conversation.MaxRetries = conversation.DefaultMaxRetries
	}
	if cfg.Conversation.HistoryWindow == 0 {
		cfg.Conversation.HistoryWindow = conversation.DefaultHistoryWindow
	}
	if cfg.Telemetry.Backend == "" {
		cfg.Telemetry.Backend = BackendLog
	}
	if cfg.Telemetry.BufferSize == 0 {
		cfg.Telemetry.BufferSize = telemetry.DefaultBufferSize
	}
	if cfg.Telemetry.WriteTimeout == 0 {
		cfg.Telemetry.WriteTimeout = telemetry.DefaultWriteTimeout
	}
	if cfg.Telemetry.RedactKeys == nil {
		cfg.Telemetry.RedactKeys = middleware.DefaultPIIPatterns
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendMemory
	}
	if cfg.Storage.Cases == "" {
		cfg.Storage.Cases = BackendMemory
	}
	if cfg.Storage.Redis.Addr == "" {
		cfg.Storage.Redis.Addr = "localhost:6379"
	}
	if cfg.Storage.SQLite == "" {
		cfg.Storage.SQLite = ".intake/intake.db"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.MetricsPath == "" {
		cfg.Server.MetricsPath = "/metrics"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature must be within [0, 2], got %v", c.LLM.Temperature))
	}
	if c.LLM.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("llm.max_tokens must be positive, got %d", c.LLM.MaxTokens))
	}
	if c.LLM.Timeout < 0 {
		errs = append(errs, fmt.Errorf("llm.timeout must be positive, got %s", c.LLM.Timeout))
	}
	if c.Conversation.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("conversation.max_retries must be positive, got %d", c.Conversation.MaxRetries))
	}
	if c.Conversation.HistoryWindow < 0 {
		errs = append(errs, fmt.Errorf("conversation.history_window must be positive, got %d", c.Conversation.HistoryWindow))
	}
	if c.Telemetry.BufferSize < 0 {
		errs = append(errs, fmt.Errorf("telemetry.buffer_size must be positive, got %d", c.Telemetry.BufferSize))
	}
	switch c.Telemetry.Backend {
	case BackendLog, BackendSQLite, BackendNone:
	default:
		errs = append(errs, fmt.Errorf("telemetry.backend must be one of log, sqlite, none; got %q", c.Telemetry.Backend))
	}
	switch c.Storage.Backend {
	case BackendMemory, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be one of memory, redis; got %q", c.Storage.Backend))
	}
	switch c.Storage.Cases {
	case BackendMemory, BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("storage.cases must be one of memory, sqlite; got %q", c.Storage.Cases))
	}
	if c.Storage.EncryptionKey != "" {
		if _, err := c.Storage.Key(); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json; got %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// UsesSQLite reports whether any component needs the sqlite database.
func (c *Config) UsesSQLite() bool {
	return c.Telemetry.Backend == BackendSQLite || c.Storage.Cases == BackendSQLite
}

// Key decodes the snapshot encryption key. It returns nil when none is set.
func (s StorageConfig) Key() ([]byte, error) {
	if s.EncryptionKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(s.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("storage.encryption_key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("storage.encryption_key: %w", middleware.ErrInvalidKey)
	}
	return key, nil
}

// LLMClientConfig converts the llm section.
func (c *Config) LLMClientConfig() llm.Config {
	return llm.Config{
		APIKey:        c.LLM.APIKey,
		BaseURL:       c.LLM.BaseURL,
		PrimaryModel:  c.LLM.PrimaryModel,
		FallbackModel: c.LLM.FallbackModel,
		Temperature:   c.LLM.Temperature,
		MaxTokens:     c.LLM.MaxTokens,
		Timeout:       c.LLM.Timeout,
		AppName:       c.LLM.AppName,
		SiteURL:       c.LLM.SiteURL,
	}
}

// NewLogger builds the logger described by the logging section.
func (l LoggingConfig) NewLogger() (*slog.Logger, error) {
	level, err := logging.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(l.Format, "json") {
		return logging.NewJSON(os.Stderr, level), nil
	}
	return logging.New(level), nil
}
