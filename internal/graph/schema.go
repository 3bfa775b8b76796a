package graph

import (
	"context"

	"go.uber.org/zap"
)

// schemaQueries declares the persisted schema: uniqueness constraints on
// every entity id, plus indexes matching the retrieval access patterns.
var schemaQueries = []string{
	"CREATE CONSTRAINT trajectory_id IF NOT EXISTS FOR (t:Trajectory) REQUIRE t.id IS UNIQUE",
	"CREATE CONSTRAINT fragment_id IF NOT EXISTS FOR (f:Fragment) REQUIRE f.id IS UNIQUE",
	"CREATE CONSTRAINT methodology_id IF NOT EXISTS FOR (m:Methodology) REQUIRE m.id IS UNIQUE",
	"CREATE CONSTRAINT error_pattern_id IF NOT EXISTS FOR (e:ErrorPattern) REQUIRE e.id IS UNIQUE",

	"CREATE INDEX trajectory_instance IF NOT EXISTS FOR (t:Trajectory) ON (t.instance_id)",
	"CREATE INDEX trajectory_repo IF NOT EXISTS FOR (t:Trajectory) ON (t.repo)",
	"CREATE INDEX trajectory_success IF NOT EXISTS FOR (t:Trajectory) ON (t.success)",
	"CREATE INDEX fragment_type IF NOT EXISTS FOR (f:Fragment) ON (f.fragment_type)",
	"CREATE INDEX methodology_confidence IF NOT EXISTS FOR (m:Methodology) ON (m.confidence)",
	"CREATE INDEX error_pattern_type IF NOT EXISTS FOR (e:ErrorPattern) ON (e.error_type)",

	`CREATE FULLTEXT INDEX methodology_situation IF NOT EXISTS
	FOR (m:Methodology) ON EACH [m.situation, m.strategy]`,
}

// InitSchema applies constraints and indexes. Safe to call repeatedly; a
// failing statement is logged and skipped since older server versions reject
// some index syntax.
func (s *Neo4jStore) InitSchema(ctx context.Context) error {
	for _, query := range schemaQueries {
		if err := s.ExecuteWrite(ctx, query, nil); err != nil {
			s.logger.Debug("schema statement skipped",
				zap.String("query", query),
				zap.Error(err))
		}
	}
	s.logger.Info("graph schema initialized")
	return nil
}
