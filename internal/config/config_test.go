package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8010, cfg.HTTPPort)
	assert.Equal(t, "inprocess", cfg.IndexerMode)
	assert.Equal(t, "default", cfg.DefaultChannelID)
	assert.Equal(t, "en", cfg.DefaultLanguageCode)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.False(t, cfg.RedisEnabled)
}

func TestLoad_FromEnvVars(t *testing.T) {
	t.Setenv("SEARCH_HTTP_PORT", "9010")
	t.Setenv("INDEXER_MODE", "worker")
	t.Setenv("INDEX_WORKER_COMMAND", "/usr/local/bin/indexworker")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 9010, cfg.HTTPPort)
	assert.Equal(t, "worker", cfg.IndexerMode)
	assert.Equal(t, "/usr/local/bin/indexworker", cfg.WorkerCommand)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("SEARCH_HTTP_PORT", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid HTTP port")
}

func TestLoad_InvalidIndexerMode(t *testing.T) {
	t.Setenv("INDEXER_MODE", "remote")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid indexer mode")
}

func TestLoad_WorkerModeRequiresCommand(t *testing.T) {
	t.Setenv("INDEXER_MODE", "worker")
	t.Setenv("INDEX_WORKER_COMMAND", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INDEX_WORKER_COMMAND")
}
