package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 7171, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Storage.Engine)
	assert.Equal(t, "ollama", cfg.Embedding.Provider)
	assert.Equal(t, 768, cfg.Embedding.Dimension)
	assert.Equal(t, 1000, cfg.Embedding.CacheMaxEntries)
	assert.Equal(t, 720*time.Hour, cfg.Embedding.CacheMaxAge)
	assert.Equal(t, 0.70, cfg.Detection.CandidateThreshold)
	assert.Equal(t, 0.85, cfg.Detection.DuplicateThreshold)
	assert.Equal(t, 10, cfg.Detection.MaxCandidates)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("VECMEM_PORT", "9000")
	t.Setenv("VECMEM_EMBEDDING_DIMENSION", "1536")
	t.Setenv("VECMEM_CACHE_MAX_AGE", "72h")
	t.Setenv("VECMEM_DUPLICATE_THRESHOLD", "0.9")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 1536, cfg.Embedding.Dimension)
	assert.Equal(t, 72*time.Hour, cfg.Embedding.CacheMaxAge)
	assert.Equal(t, 0.9, cfg.Detection.DuplicateThreshold)
}

func TestLoadUnparseableEnvFallsBack(t *testing.T) {
	t.Setenv("VECMEM_PORT", "not-a-port")
	t.Setenv("VECMEM_CANDIDATE_THRESHOLD", "high")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7171, cfg.Server.Port)
	assert.Equal(t, 0.70, cfg.Detection.CandidateThreshold)
}

func TestLoadYAMLOverridesEnv(t *testing.T) {
	t.Setenv("VECMEM_PORT", "9000")

	path := filepath.Join(t.TempDir(), "vecmem.yaml")
	yamlDoc := "server:\n  port: 4242\nembedding:\n  dimension: 384\n"
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))
	t.Setenv("VECMEM_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4242, cfg.Server.Port)
	assert.Equal(t, 384, cfg.Embedding.Dimension)
	// Unset YAML fields keep their env/default values.
	assert.Equal(t, "sqlite", cfg.Storage.Engine)
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Setenv("VECMEM_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := fromEnv()
		return cfg
	}

	cfg := base()
	cfg.Embedding.Dimension = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Storage.Engine = "cassandra"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Storage.Engine = "postgres"
	assert.Error(t, cfg.Validate(), "postgres without DSN should fail")
	cfg.Storage.PostgresDSN = "postgres://localhost/vecmem"
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Detection.DuplicateThreshold = 0.5
	assert.Error(t, cfg.Validate(), "duplicate threshold below candidate threshold")
}
