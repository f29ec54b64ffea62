package config_test

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/intake/internal/config"
	"github.com/aretw0/intake/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	t.Setenv(config.EnvAPIKey, "env-key")
	cfg := config.Default()

	assert.Equal(t, "env-key", cfg.LLM.APIKey)
	assert.Equal(t, llm.DefaultPrimaryModel, cfg.LLM.PrimaryModel)
	assert.Equal(t, llm.DefaultFallbackModel, cfg.LLM.FallbackModel)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 3, cfg.Conversation.MaxRetries)
	assert.Equal(t, config.BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, config.BackendLog, cfg.Telemetry.Backend)
	assert.Equal(t, config.BackendMemory, cfg.Storage.Cases)
	assert.False(t, cfg.UsesSQLite())
	assert.Equal(t, "/metrics", cfg.Server.MetricsPath)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("INTAKE_TEST_KEY", "secret")
	t.Setenv("INTAKE_TEST_REDIS", "redis:6380")

	path := filepath.Join(t.TempDir(), "intake.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  api_key: ${INTAKE_TEST_KEY}
  primary_model: anthropic/claude-3-haiku
  timeout: 12s
conversation:
  max_retries: 5
telemetry:
  backend: sqlite
  redact_keys: [phone]
storage:
  backend: redis
  redis:
    addr: ${INTAKE_TEST_REDIS}
    ttl: 1h
`), 0644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.LLM.APIKey)
	assert.Equal(t, "anthropic/claude-3-haiku", cfg.LLM.PrimaryModel)
	assert.Equal(t, llm.DefaultFallbackModel, cfg.LLM.FallbackModel)
	assert.Equal(t, 12*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 5, cfg.Conversation.MaxRetries)
	assert.Equal(t, []string{"phone"}, cfg.Telemetry.RedactKeys)
	assert.Equal(t, "redis:6380", cfg.Storage.Redis.Addr)
	assert.Equal(t, time.Hour, cfg.Storage.Redis.TTL)
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.UsesSQLite())

	client := cfg.LLMClientConfig()
	assert.Equal(t, "secret", client.APIKey)
	assert.Equal(t, 12*time.Second, client.Timeout)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate_ReportsEveryError(t *testing.T) {
	cfg, err := config.Parse([]byte(`
llm:
  temperature: 3
storage:
  backend: postgres
  cases: csv
  encryption_key: not-base64!
telemetry:
  backend: kafka
logging:
  level: loud
`))
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"llm.temperature", "storage.backend", "storage.cases", "storage.encryption_key", "telemetry.backend", "logging.level"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestStorageKey(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}
	s := config.StorageConfig{EncryptionKey: base64.StdEncoding.EncodeToString(raw)}
	key, err := s.Key()
	require.NoError(t, err)
	assert.Equal(t, raw, key)

	short := config.StorageConfig{EncryptionKey: base64.StdEncoding.EncodeToString(raw[:16])}
	_, err = short.Key()
	assert.Error(t, err)

	none, err := config.StorageConfig{}.Key()
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestNewLogger(t *testing.T) {
	logger, err := config.LoggingConfig{Level: "debug", Format: "json"}.NewLogger()
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = config.LoggingConfig{Level: "loud"}.NewLogger()
	assert.Error(t, err)
}
