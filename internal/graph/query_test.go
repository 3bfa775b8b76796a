package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryBuild(t *testing.T) {
	tests := []struct {
		name       string
		build      func() *Query
		wantText   string
		wantParams map[string]any
	}{
		{
			name:       "bare match",
			build:      func() *Query { return MatchNode("Methodology") },
			wantText:   "MATCH (n:Methodology) RETURN n",
			wantParams: map[string]any{},
		},
		{
			name: "equality and order",
			build: func() *Query {
				return MatchNode("Trajectory").
					WhereEq("n.success", true).
					OrderByDesc("n.created_at").
					Limit(10)
			},
			wantText:   "MATCH (n:Trajectory) WHERE n.success = $p0 RETURN n ORDER BY n.created_at DESC LIMIT 10",
			wantParams: map[string]any{"p0": true},
		},
		{
			name: "contains and not null",
			build: func() *Query {
				return MatchNode("Methodology").
					WhereContains("n.situation", "error").
					WhereNotNull("n.embedding")
			},
			wantText:   "MATCH (n:Methodology) WHERE n.situation CONTAINS $p0 AND n.embedding IS NOT NULL RETURN n",
			wantParams: map[string]any{"p0": "error"},
		},
		{
			name: "or group",
			build: func() *Query {
				return Match("(t:Trajectory)-[:HAS_FRAGMENT]->(f:Fragment)", "f").
					WhereEq("t.success", true).
					OrGroup(func(or *OrBuilder) {
						or.Eq("t.repo", "owner/repo")
						or.Contains("t.summary", "parser")
					}).
					OrderBy("f.step_start")
			},
			wantText: "MATCH (t:Trajectory)-[:HAS_FRAGMENT]->(f:Fragment) " +
				"WHERE t.success = $p0 AND (t.repo = $p1 OR t.summary CONTAINS $p2) " +
				"RETURN f ORDER BY f.step_start",
			wantParams: map[string]any{"p0": true, "p1": "owner/repo", "p2": "parser"},
		},
		{
			name: "empty or group is dropped",
			build: func() *Query {
				return MatchNode("Fragment").OrGroup(func(or *OrBuilder) {})
			},
			wantText:   "MATCH (n:Fragment) RETURN n",
			wantParams: map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, params := tt.build().Build()
			assert.Equal(t, tt.wantText, text)
			assert.Equal(t, tt.wantParams, params)
		})
	}
}

// Values never appear in the query text, only as bound parameters.
func TestQueryBindsValuesAsParameters(t *testing.T) {
	text, params := MatchNode("Methodology").
		WhereContains("n.situation", "'; DETACH DELETE n //").
		Build()

	assert.NotContains(t, text, "DETACH DELETE")
	assert.Equal(t, "'; DETACH DELETE n //", params["p0"])
}
