// Package consolidate abstracts recurring fix patterns into methodologies
// and prunes stale knowledge.
//
// Consolidation is a batch job of four ordered tasks: abstract methodologies
// from clusters of error-recovery fragments, merge duplicate methodologies,
// refresh error-pattern statistics, and delete methodologies that have
// demonstrably stopped working. Each task is independently fail-soft: a
// failing task logs, contributes zero to the run's stats, and never aborts
// the remaining tasks.
//
// The job makes no atomicity guarantee across its tasks; run one
// consolidation at a time (the bank service serializes its own triggers).
package consolidate

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/trajbank/internal/graph"
	"github.com/fyrsmithlabs/trajbank/internal/memory"
)

const (
	// minClusterSize is the smallest fragment group that becomes a
	// methodology.
	minClusterSize = 3

	// initialConfidence is assigned to freshly abstracted methodologies.
	initialConfidence = 0.8

	// embeddingSimilarityThreshold joins a fragment to a cluster seed.
	embeddingSimilarityThreshold = 0.8

	// keywordOverlapThreshold is the Jaccard fallback when embeddings are
	// unavailable.
	keywordOverlapThreshold = 0.5

	// maxFragments bounds one abstraction pass.
	maxFragments = 100

	// maxMergePairs bounds one duplicate-merge pass.
	maxMergePairs = 10

	// maxStrategyActions caps the actions named in a strategy sentence.
	maxStrategyActions = 5

	// maxSituationChars caps the seed description quoted in a situation.
	maxSituationChars = 100

	// cleanupConfidence and cleanupMinOutcomes select methodologies for
	// deletion: low confidence with enough recorded outcomes to trust it.
	cleanupConfidence  = 0.2
	cleanupMinOutcomes = 5
)

// recoveryFragmentsQuery fetches error-recovery fragments of successful
// trajectories. The secondary id order fixes the clustering iteration order,
// keeping the greedy grouping deterministic.
const recoveryFragmentsQuery = `
MATCH (t:Trajectory {success: true})-[:HAS_FRAGMENT]->(f:Fragment)
WHERE f.fragment_type = $fragment_type
RETURN f
ORDER BY f.outcome DESC, f.id
LIMIT 100`

// linkMethodologyQuery creates RESOLVED_BY edges from every error pattern
// caused by one of the methodology's source fragments.
const linkMethodologyQuery = `
MATCH (f:Fragment)-[:CAUSED_ERROR]->(e:ErrorPattern)
WHERE f.id IN $fragment_ids
MATCH (m:Methodology {id: $methodology_id})
MERGE (e)-[:RESOLVED_BY]->(m)`

// duplicatePairsQuery finds methodology pairs with identical situation text.
// The id ordering prevents processing each pair twice.
const duplicatePairsQuery = `
MATCH (m1:Methodology), (m2:Methodology)
WHERE m1.id < m2.id AND m1.situation = m2.situation
RETURN m1.id AS id1, m2.id AS id2
LIMIT 10`

// repointResolvedByQuery moves RESOLVED_BY edges off the node about to be
// deleted. This MUST run before mergeMethodologyQuery for the same pair or
// the error-pattern links are orphaned with the deleted node.
const repointResolvedByQuery = `
MATCH (e:ErrorPattern)-[r:RESOLVED_BY]->(m2:Methodology {id: $id2})
MATCH (m1:Methodology {id: $id1})
MERGE (e)-[:RESOLVED_BY]->(m1)
DELETE r`

// mergeMethodologyQuery folds the duplicate's outcome counts into the
// survivor and deletes it.
const mergeMethodologyQuery = `
MATCH (m1:Methodology {id: $id1}), (m2:Methodology {id: $id2})
SET m1.success_count = m1.success_count + m2.success_count,
    m1.failure_count = m1.failure_count + m2.failure_count
DETACH DELETE m2`

// refreshFrequenciesQuery recomputes each error pattern's frequency as the
// count of fragments causally linked to it.
const refreshFrequenciesQuery = `
MATCH (f:Fragment)-[:CAUSED_ERROR]->(e:ErrorPattern)
WITH e, count(f) AS cnt
SET e.frequency = cnt`

const countStaleQuery = `
MATCH (m:Methodology)
WHERE m.confidence < $confidence AND m.success_count + m.failure_count > $min_outcomes
RETURN count(m) AS cnt`

const deleteStaleQuery = `
MATCH (m:Methodology)
WHERE m.confidence < $confidence AND m.success_count + m.failure_count > $min_outcomes
DETACH DELETE m`

// Stats reports what one consolidation run changed.
type Stats struct {
	MethodologiesCreated int `json:"methodologies_created"`
	NodesMerged          int `json:"nodes_merged"`
	NodesCleaned         int `json:"nodes_cleaned"`
}

// Consolidator runs the periodic abstraction and cleanup job.
type Consolidator struct {
	store  graph.Store
	logger *zap.Logger
}

// NewConsolidator creates a consolidator. The store may be nil (offline
// mode); consolidation is then a no-op.
func NewConsolidator(store graph.Store, logger *zap.Logger) *Consolidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consolidator{store: store, logger: logger}
}

// Consolidate runs the four consolidation tasks in order and reports the
// aggregate stats.
func (c *Consolidator) Consolidate(ctx context.Context) *Stats {
	stats := &Stats{}
	if c.store == nil {
		return stats
	}

	stats.MethodologiesCreated = c.abstractMethodologies(ctx)
	stats.NodesMerged = c.mergeDuplicates(ctx)
	c.refreshStatistics(ctx)
	stats.NodesCleaned = c.cleanup(ctx)

	c.logger.Info("consolidation complete",
		zap.Int("methodologies_created", stats.MethodologiesCreated),
		zap.Int("nodes_merged", stats.NodesMerged),
		zap.Int("nodes_cleaned", stats.NodesCleaned))
	return stats
}

// abstractMethodologies clusters successful error-recovery fragments and
// turns every cluster of at least minClusterSize into one new methodology.
func (c *Consolidator) abstractMethodologies(ctx context.Context) int {
	rows, err := c.store.ExecuteQuery(ctx, recoveryFragmentsQuery, map[string]any{
		"fragment_type": string(memory.FragmentErrorRecovery),
	})
	if err != nil {
		c.logger.Warn("fetching recovery fragments failed", zap.Error(err))
		return 0
	}

	fragments := make([]*memory.Fragment, 0, len(rows))
	for _, row := range rows {
		props, ok := row["f"].(map[string]any)
		if !ok {
			continue
		}
		frag, err := memory.FragmentFromMap(props)
		if err != nil {
			c.logger.Warn("skipping invalid fragment record", zap.Error(err))
			continue
		}
		fragments = append(fragments, frag)
		if len(fragments) >= maxFragments {
			break
		}
	}
	if len(fragments) == 0 {
		return 0
	}

	created := 0
	for _, group := range groupFragments(fragments) {
		if len(group) < minClusterSize {
			continue
		}
		methodology, err := methodologyFromGroup(group)
		if err != nil {
			c.logger.Warn("building methodology failed", zap.Error(err))
			continue
		}
		if err := graph.CreateMethodology(ctx, c.store, methodology); err != nil {
			c.logger.Warn("persisting methodology failed",
				zap.String("methodology_id", methodology.ID),
				zap.Error(err))
			continue
		}
		if err := c.linkToErrorPatterns(ctx, methodology); err != nil {
			c.logger.Warn("linking methodology to error patterns failed",
				zap.String("methodology_id", methodology.ID),
				zap.Error(err))
		}
		created++
	}
	return created
}

// linkToErrorPatterns connects error patterns caused by the methodology's
// source fragments via RESOLVED_BY edges.
func (c *Consolidator) linkToErrorPatterns(ctx context.Context, m *memory.Methodology) error {
	return c.store.ExecuteWrite(ctx, linkMethodologyQuery, map[string]any{
		"fragment_ids":   m.SourceFragmentIDs,
		"methodology_id": m.ID,
	})
}

// mergeDuplicates merges methodology pairs with identical situation text,
// at most maxMergePairs per run. Edges are re-pointed to the survivor
// before the duplicate is deleted.
func (c *Consolidator) mergeDuplicates(ctx context.Context) int {
	rows, err := c.store.ExecuteQuery(ctx, duplicatePairsQuery, nil)
	if err != nil {
		c.logger.Warn("finding duplicate methodologies failed", zap.Error(err))
		return 0
	}

	merged := 0
	for _, row := range rows {
		id1, _ := row["id1"].(string)
		id2, _ := row["id2"].(string)
		if id1 == "" || id2 == "" {
			continue
		}
		params := map[string]any{"id1": id1, "id2": id2}

		if err := c.store.ExecuteWrite(ctx, repointResolvedByQuery, params); err != nil {
			c.logger.Warn("re-pointing RESOLVED_BY edges failed",
				zap.String("survivor", id1),
				zap.String("duplicate", id2),
				zap.Error(err))
			continue
		}
		if err := c.store.ExecuteWrite(ctx, mergeMethodologyQuery, params); err != nil {
			c.logger.Warn("merging methodologies failed",
				zap.String("survivor", id1),
				zap.String("duplicate", id2),
				zap.Error(err))
			continue
		}
		merged++
		if merged >= maxMergePairs {
			break
		}
	}
	return merged
}

// refreshStatistics recomputes error-pattern frequencies from the graph.
func (c *Consolidator) refreshStatistics(ctx context.Context) {
	if err := c.store.ExecuteWrite(ctx, refreshFrequenciesQuery, nil); err != nil {
		c.logger.Warn("refreshing error pattern statistics failed", zap.Error(err))
	}
}

// cleanup deletes methodologies whose tracked success rate has collapsed.
func (c *Consolidator) cleanup(ctx context.Context) int {
	params := map[string]any{
		"confidence":   cleanupConfidence,
		"min_outcomes": cleanupMinOutcomes,
	}

	rows, err := c.store.ExecuteQuery(ctx, countStaleQuery, params)
	if err != nil {
		c.logger.Warn("counting stale methodologies failed", zap.Error(err))
		return 0
	}
	count := 0
	if len(rows) > 0 {
		switch v := rows[0]["cnt"].(type) {
		case int64:
			count = int(v)
		case int:
			count = v
		case float64:
			count = int(v)
		}
	}
	if count == 0 {
		return 0
	}

	if err := c.store.ExecuteWrite(ctx, deleteStaleQuery, params); err != nil {
		c.logger.Warn("deleting stale methodologies failed", zap.Error(err))
		return 0
	}
	return count
}

// groupFragments clusters fragments greedily: the first unclustered fragment
// seeds a group, and every later fragment joins the first group whose seed
// it is similar enough to. Embedding cosine similarity is used when every
// fragment is embedded; otherwise the fallback is Jaccard overlap of
// description words. Iteration follows the store-returned creation order, so
// grouping is deterministic for a given graph.
func groupFragments(fragments []*memory.Fragment) [][]*memory.Fragment {
	allEmbedded := true
	for _, f := range fragments {
		if len(f.Embedding) == 0 {
			allEmbedded = false
			break
		}
	}

	similar := func(seed, other *memory.Fragment) bool {
		if allEmbedded {
			return cosineSimilarity(seed.Embedding, other.Embedding) >= embeddingSimilarityThreshold
		}
		return jaccardOverlap(descriptionWords(seed), descriptionWords(other)) > keywordOverlapThreshold
	}

	var groups [][]*memory.Fragment
	used := make([]bool, len(fragments))
	for i, seed := range fragments {
		if used[i] {
			continue
		}
		group := []*memory.Fragment{seed}
		used[i] = true
		for j := i + 1; j < len(fragments); j++ {
			if used[j] {
				continue
			}
			if similar(seed, fragments[j]) {
				group = append(group, fragments[j])
				used[j] = true
			}
		}
		groups = append(groups, group)
	}
	return groups
}

// methodologyFromGroup abstracts one methodology from a fragment cluster.
// The group's size seeds the success count; confidence starts at
// initialConfidence and is recomputed from outcomes thereafter.
func methodologyFromGroup(group []*memory.Fragment) (*memory.Methodology, error) {
	var pooled []string
	for _, frag := range group {
		pooled = append(pooled, frag.ActionSequence...)
	}
	actions := dedupe(pooled, maxStrategyActions)

	situation := fmt.Sprintf("When encountering errors similar to: %s",
		truncate(group[0].Description, maxSituationChars))
	strategy := fmt.Sprintf("Apply action sequence: %s", strings.Join(actions, ", "))

	ids := make([]string, len(group))
	for i, frag := range group {
		ids[i] = frag.ID
	}
	return memory.NewMethodology(situation, strategy, initialConfidence, len(group), ids)
}

func descriptionWords(f *memory.Fragment) map[string]struct{} {
	words := strings.Fields(strings.ToLower(f.Description))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func dedupe(values []string, max int) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
		if len(out) >= max {
			break
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
