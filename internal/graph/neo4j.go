package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Neo4jConfig holds connection settings for the Neo4j-backed store.
type Neo4jConfig struct {
	URI      string `koanf:"uri"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	Database string `koanf:"database"`
}

// DefaultNeo4jConfig returns local-development defaults.
func DefaultNeo4jConfig() Neo4jConfig {
	return Neo4jConfig{
		URI:      "bolt://localhost:7687",
		Username: "neo4j",
		Password: "password",
		Database: "neo4j",
	}
}

// Neo4jStore implements Store on top of the Neo4j bolt driver.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger
}

// NewNeo4jStore opens a driver for the configured instance. The connection
// is lazy; call VerifyConnectivity to probe it.
func NewNeo4jStore(cfg Neo4jConfig, logger *zap.Logger) (*Neo4jStore, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("neo4j URI cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}

	database := cfg.Database
	if database == "" {
		database = "neo4j"
	}

	return &Neo4jStore{
		driver:   driver,
		database: database,
		logger:   logger,
	}, nil
}

// VerifyConnectivity probes the connection.
func (s *Neo4jStore) VerifyConnectivity(ctx context.Context) error {
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("verifying neo4j connectivity: %w", err)
	}
	return nil
}

// ExecuteQuery runs a read query and flattens returned nodes to their
// property maps.
func (s *Neo4jStore) ExecuteQuery(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.database,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("running query: %w", err)
	}

	records, err := result.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("collecting records: %w", err)
	}

	rows := make([]map[string]any, 0, len(records))
	for _, record := range records {
		row := make(map[string]any, len(record.Keys))
		for i, key := range record.Keys {
			row[key] = flattenValue(record.Values[i])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ExecuteWrite runs a write query inside a managed write transaction.
func (s *Neo4jStore) ExecuteWrite(ctx context.Context, query string, params map[string]any) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return nil, res.Err()
	})
	if err != nil {
		return fmt.Errorf("running write: %w", err)
	}
	return nil
}

// Close shuts down the driver.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// flattenValue converts driver node values to plain property maps so callers
// only ever see maps, strings, numbers, bools, and lists.
func flattenValue(v any) any {
	switch val := v.(type) {
	case neo4j.Node:
		return val.Props
	case neo4j.Relationship:
		return val.Props
	default:
		return v
	}
}
