package consolidate

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/trajbank/internal/graph/graphtest"
	"github.com/fyrsmithlabs/trajbank/internal/memory"
)

func recoveryRow(id, description string, embedding []float64) map[string]any {
	props := map[string]any{
		"id":              id,
		"step_start":      int64(0),
		"step_end":        int64(2),
		"fragment_type":   "error_recovery",
		"description":     description,
		"action_sequence": []any{"edit", "test"},
		"outcome":         "recovered",
	}
	if embedding != nil {
		vals := make([]any, len(embedding))
		for i, v := range embedding {
			vals[i] = v
		}
		props["embedding"] = vals
	}
	return map[string]any{"f": props}
}

func TestConsolidateNilStore(t *testing.T) {
	c := NewConsolidator(nil, zap.NewNop())
	stats := c.Consolidate(context.Background())
	assert.Equal(t, &Stats{}, stats)
}

func TestAbstractMethodologiesFromIdenticalEmbeddings(t *testing.T) {
	store := graphtest.NewFakeStore()
	vec := []float64{1, 0, 0}
	store.StubQuery("fragment_type = $fragment_type", []map[string]any{
		recoveryRow("frag_a", "Error Recovery: edit, test", vec),
		recoveryRow("frag_b", "Error Recovery: edit, test", vec),
		recoveryRow("frag_c", "Error Recovery: edit, test", vec),
	})

	c := NewConsolidator(store, zap.NewNop())
	stats := c.Consolidate(context.Background())

	assert.Equal(t, 1, stats.MethodologiesCreated)

	creates := store.WritesContaining("CREATE (m:Methodology")
	require.Len(t, creates, 1)
	params := creates[0].Params
	assert.Equal(t, 3, params["success_count"])
	assert.InDelta(t, 0.8, params["confidence"].(float64), 1e-9)
	assert.Equal(t, []string{"frag_a", "frag_b", "frag_c"}, params["source_fragment_ids"])
	assert.Contains(t, params["situation"].(string), "When encountering errors similar to:")
	assert.Contains(t, params["strategy"].(string), "edit, test")

	// The new methodology is wired to the error patterns its fragments
	// caused.
	links := store.WritesContaining("RESOLVED_BY")
	require.Len(t, links, 1)
	assert.Equal(t, params["id"], links[0].Params["methodology_id"])
}

// Two similar fragments are not enough evidence for an abstraction.
func TestAbstractMethodologiesBelowMinCluster(t *testing.T) {
	store := graphtest.NewFakeStore()
	vec := []float64{1, 0, 0}
	store.StubQuery("fragment_type = $fragment_type", []map[string]any{
		recoveryRow("frag_a", "Error Recovery: edit, test", vec),
		recoveryRow("frag_b", "Error Recovery: edit, test", vec),
	})

	c := NewConsolidator(store, zap.NewNop())
	stats := c.Consolidate(context.Background())

	assert.Equal(t, 0, stats.MethodologiesCreated)
	assert.Empty(t, store.WritesContaining("CREATE (m:Methodology"))
}

func TestAbstractMethodologiesDissimilarEmbeddings(t *testing.T) {
	store := graphtest.NewFakeStore()
	store.StubQuery("fragment_type = $fragment_type", []map[string]any{
		recoveryRow("frag_a", "Error Recovery: edit", []float64{1, 0, 0}),
		recoveryRow("frag_b", "Error Recovery: run", []float64{0, 1, 0}),
		recoveryRow("frag_c", "Error Recovery: test", []float64{0, 0, 1}),
	})

	c := NewConsolidator(store, zap.NewNop())
	stats := c.Consolidate(context.Background())
	assert.Equal(t, 0, stats.MethodologiesCreated)
}

// Without embeddings the clustering falls back to description word overlap.
func TestAbstractMethodologiesKeywordFallback(t *testing.T) {
	store := graphtest.NewFakeStore()
	store.StubQuery("fragment_type = $fragment_type", []map[string]any{
		recoveryRow("frag_a", "Error Recovery: edit, test", nil),
		recoveryRow("frag_b", "Error Recovery: edit, test", nil),
		recoveryRow("frag_c", "Error Recovery: edit, test", nil),
		recoveryRow("frag_d", "Error Recovery: completely different approach here today", nil),
	})

	c := NewConsolidator(store, zap.NewNop())
	stats := c.Consolidate(context.Background())
	assert.Equal(t, 1, stats.MethodologiesCreated)
}

func TestMergeDuplicatesRepointsBeforeDelete(t *testing.T) {
	store := graphtest.NewFakeStore()
	store.StubQuery("m1.situation = m2.situation", []map[string]any{
		{"id1": "meth_a", "id2": "meth_b"},
	})

	c := NewConsolidator(store, zap.NewNop())
	stats := c.Consolidate(context.Background())

	assert.Equal(t, 1, stats.NodesMerged)

	var repointIdx, mergeIdx int
	for i, w := range store.Writes {
		switch {
		case w.Params != nil && w.Query == repointResolvedByQuery:
			repointIdx = i
		case w.Params != nil && w.Query == mergeMethodologyQuery:
			mergeIdx = i
		}
	}
	// Edges must move to the survivor before the duplicate is deleted.
	assert.Less(t, repointIdx, mergeIdx)

	merges := store.WritesContaining("DETACH DELETE m2")
	require.Len(t, merges, 1)
	assert.Equal(t, "meth_a", merges[0].Params["id1"])
	assert.Equal(t, "meth_b", merges[0].Params["id2"])
}

func TestCleanup(t *testing.T) {
	store := graphtest.NewFakeStore()
	store.StubQuery("RETURN count(m) AS cnt", []map[string]any{{"cnt": int64(2)}})

	c := NewConsolidator(store, zap.NewNop())
	stats := c.Consolidate(context.Background())

	assert.Equal(t, 2, stats.NodesCleaned)
	deletes := store.WritesContaining("DETACH DELETE m")
	require.Len(t, deletes, 1)
	assert.InDelta(t, 0.2, deletes[0].Params["confidence"].(float64), 1e-9)
	assert.Equal(t, 5, deletes[0].Params["min_outcomes"])
}

func TestCleanupNothingStale(t *testing.T) {
	store := graphtest.NewFakeStore()
	store.StubQuery("RETURN count(m) AS cnt", []map[string]any{{"cnt": int64(0)}})

	c := NewConsolidator(store, zap.NewNop())
	stats := c.Consolidate(context.Background())

	assert.Equal(t, 0, stats.NodesCleaned)
}

// One failing task never aborts the rest of the run.
func TestConsolidateTasksAreFailSoft(t *testing.T) {
	store := graphtest.NewFakeStore()
	store.StubQueryErr("fragment_type = $fragment_type", errors.New("store down"))
	store.StubQuery("RETURN count(m) AS cnt", []map[string]any{{"cnt": int64(1)}})

	c := NewConsolidator(store, zap.NewNop())
	stats := c.Consolidate(context.Background())

	assert.Equal(t, 0, stats.MethodologiesCreated)
	assert.Equal(t, 1, stats.NodesCleaned)
}

func TestGroupFragments(t *testing.T) {
	mk := func(id, description string, embedding []float64) *memory.Fragment {
		return &memory.Fragment{
			ID:          id,
			StepStart:   0,
			StepEnd:     1,
			Type:        memory.FragmentErrorRecovery,
			Description: description,
			Embedding:   embedding,
		}
	}

	t.Run("mixed embeddings fall back to keywords", func(t *testing.T) {
		frags := []*memory.Fragment{
			mk("frag_a", "recover by editing imports", []float64{1, 0}),
			mk("frag_b", "recover by editing imports", nil),
		}
		groups := groupFragments(frags)
		require.Len(t, groups, 1)
		assert.Len(t, groups[0], 2)
	})

	t.Run("grouping is deterministic for a fixed order", func(t *testing.T) {
		frags := []*memory.Fragment{
			mk("frag_a", "fix imports", []float64{1, 0}),
			mk("frag_b", "fix imports again", []float64{1, 0.01}),
			mk("frag_c", "unrelated database work", []float64{0, 1}),
		}
		first := fmt.Sprint(groupFragments(frags))
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, fmt.Sprint(groupFragments(frags)))
		}
	})
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float64{1, 2}, []float64{1, 2}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.Zero(t, cosineSimilarity(nil, []float64{1}))
	assert.Zero(t, cosineSimilarity([]float64{1, 0}, []float64{1}))
	assert.Zero(t, cosineSimilarity([]float64{0, 0}, []float64{0, 0}))
}

func TestJaccardOverlap(t *testing.T) {
	set := func(words ...string) map[string]struct{} {
		s := make(map[string]struct{})
		for _, w := range words {
			s[w] = struct{}{}
		}
		return s
	}

	assert.InDelta(t, 1.0, jaccardOverlap(set("a", "b"), set("a", "b")), 1e-9)
	assert.InDelta(t, 1.0/3.0, jaccardOverlap(set("a", "b"), set("b", "c")), 1e-9)
	assert.Zero(t, jaccardOverlap(set("a"), set("b")))
	assert.Zero(t, jaccardOverlap(nil, nil))
}
