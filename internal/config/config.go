// Package config provides configuration loading for trajbank.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/fyrsmithlabs/trajbank/internal/embeddings"
	"github.com/fyrsmithlabs/trajbank/internal/graph"
	"github.com/fyrsmithlabs/trajbank/internal/logging"
)

// envPrefix is stripped from environment variables before mapping them onto
// config keys: TRAJBANK_NEO4J_URI -> neo4j.uri.
const envPrefix = "TRAJBANK_"

// MemoryConfig tunes the memory service itself.
type MemoryConfig struct {
	ConsolidateEvery int `koanf:"consolidate_every"`
	TopK             int `koanf:"top_k"`
	LoopMinRepeat    int `koanf:"loop_min_repeat"`
}

// Config is the full trajbank configuration.
type Config struct {
	Neo4j     graph.Neo4jConfig `koanf:"neo4j"`
	Embedding embeddings.Config `koanf:"embedding"`
	Memory    MemoryConfig      `koanf:"memory"`
	Logging   logging.Config    `koanf:"logging"`
}

// Load reads configuration from the YAML file at path, then overrides with
// TRAJBANK_* environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (TRAJBANK_NEO4J_URI, TRAJBANK_EMBEDDING_KIND, ...)
//  2. YAML config file
//  3. Defaults
//
// An empty path or a missing file is not an error; defaults plus environment
// apply.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file %s: %w", path, err)
			}
		} else if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	// TRAJBANK_NEO4J_URI -> neo4j.uri, TRAJBANK_MEMORY_TOP_K -> memory.top_k.
	// Split on the first underscore after the prefix: section, then field.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if c.Memory.ConsolidateEvery < 0 {
		return fmt.Errorf("memory.consolidate_every must not be negative, got %d", c.Memory.ConsolidateEvery)
	}
	if c.Memory.TopK < 0 {
		return fmt.Errorf("memory.top_k must not be negative, got %d", c.Memory.TopK)
	}
	if c.Memory.LoopMinRepeat < 0 {
		return fmt.Errorf("memory.loop_min_repeat must not be negative, got %d", c.Memory.LoopMinRepeat)
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	return nil
}

// applyDefaults fills in missing values. Neo4j.URI has no default on
// purpose; an empty URI means offline mode.
func applyDefaults(cfg *Config) {
	if cfg.Neo4j.Username == "" {
		cfg.Neo4j.Username = "neo4j"
	}
	if cfg.Neo4j.Database == "" {
		cfg.Neo4j.Database = "neo4j"
	}

	if cfg.Embedding.Kind == "" {
		cfg.Embedding.Kind = embeddings.KindMock
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}
