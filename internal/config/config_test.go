package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/trajbank/internal/embeddings"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Empty(t, cfg.Neo4j.URI, "no default URI: empty means offline")
	assert.Equal(t, "neo4j", cfg.Neo4j.Username)
	assert.Equal(t, "neo4j", cfg.Neo4j.Database)
	assert.Equal(t, embeddings.KindMock, cfg.Embedding.Kind)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
neo4j:
  uri: bolt://graph:7687
  username: svc
  password: secret
embedding:
  provider: openai
  model: text-embedding-3-small
  api_key: sk-test
memory:
  consolidate_every: 8
  top_k: 3
  loop_min_repeat: 4
logging:
  level: debug
  format: console
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bolt://graph:7687", cfg.Neo4j.URI)
	assert.Equal(t, "svc", cfg.Neo4j.Username)
	assert.Equal(t, embeddings.KindOpenAI, cfg.Embedding.Kind)
	assert.Equal(t, 8, cfg.Memory.ConsolidateEvery)
	assert.Equal(t, 3, cfg.Memory.TopK)
	assert.Equal(t, 4, cfg.Memory.LoopMinRepeat)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	path := writeConfig(t, `
neo4j:
  uri: bolt://from-yaml:7687
`)
	t.Setenv("TRAJBANK_NEO4J_URI", "bolt://from-env:7687")
	t.Setenv("TRAJBANK_LOGGING_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bolt://from-env:7687", cfg.Neo4j.URI)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.NotNil(t, cfg)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "neo4j: [broken")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "negative interval", content: "memory:\n  consolidate_every: -1\n"},
		{name: "negative top_k", content: "memory:\n  top_k: -5\n"},
		{name: "bad log level", content: "logging:\n  level: loud\n"},
		{name: "bad log format", content: "logging:\n  format: xml\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
		})
	}
}
