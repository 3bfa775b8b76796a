// Package retrieval surfaces relevant past experience for the current agent
// state.
//
// Four independent retrieval dimensions run against the graph store:
// error-based (methodologies that resolved this error type), task-based
// (fragments from similar successful trajectories), state-based
// (methodologies matching the current phase), and semantic (fragments ranked
// by embedding similarity). Results are fused by deduplicating on id and
// ranking methodologies by confidence.
//
// Every dimension is fail-soft: a missing store, a missing embedding, or a
// failing backend query contributes zero results, never an error.
package retrieval

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/trajbank/internal/errsig"
	"github.com/fyrsmithlabs/trajbank/internal/graph"
	"github.com/fyrsmithlabs/trajbank/internal/memory"
)

const instrumentationName = "github.com/fyrsmithlabs/trajbank/internal/retrieval"

const (
	// DefaultTopK is the fused result size when the caller passes none.
	DefaultTopK = 5

	errorQueryLimit = 5
	stateQueryLimit = 5
	taskQueryLimit  = 10
	taskKeywordsMax = 5
)

// repoIdentRe extracts an owner/name repository identifier from free text.
var repoIdentRe = regexp.MustCompile(`\b[\w.-]+/[\w.-]+\b`)

// semanticQuery ranks embedded fragments by cosine similarity to the query
// vector. Requires the GDS similarity function on the server; a store that
// lacks it fails this sub-query only.
const semanticQuery = `
MATCH (f:Fragment)
WHERE f.embedding IS NOT NULL
WITH f, gds.similarity.cosine(f.embedding, $embedding) AS similarity
ORDER BY similarity DESC
LIMIT $top_k
RETURN f, similarity`

// errorResolutionQuery follows RESOLVED_BY edges from the matching error
// pattern to the methodologies that fixed it.
const errorResolutionQuery = `
MATCH (e:ErrorPattern {error_type: $error_type})-[:RESOLVED_BY]->(m:Methodology)
RETURN m
ORDER BY m.confidence DESC
LIMIT 5`

// Result is the fused outcome of one retrieval call.
type Result struct {
	Methodologies    []*memory.Methodology `json:"methodologies"`
	SimilarFragments []*memory.Fragment    `json:"similar_fragments"`
	Warnings         []string              `json:"warnings"`
}

// IsEmpty reports whether retrieval surfaced nothing.
func (r *Result) IsEmpty() bool {
	return len(r.Methodologies) == 0 && len(r.SimilarFragments) == 0
}

// Retriever runs multi-dimensional retrieval against the graph store.
// The Retriever never mutates the store.
type Retriever struct {
	store  graph.Store
	logger *zap.Logger
	tracer trace.Tracer
}

// NewRetriever creates a retriever. The store may be nil (offline mode);
// retrieval then returns empty results.
func NewRetriever(store graph.Store, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		store:  store,
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
	}
}

// Retrieve fuses the four retrieval dimensions for the given state. The
// sub-queries are read-only and independent, so they run concurrently and
// are joined before fusion. topK <= 0 falls back to DefaultTopK.
func (r *Retriever) Retrieve(ctx context.Context, state *memory.State, topK int) *Result {
	ctx, span := r.tracer.Start(ctx, "retrieval.Retrieve",
		trace.WithAttributes(attribute.String("phase", string(state.Phase))))
	defer span.End()

	if topK <= 0 {
		topK = DefaultTopK
	}

	result := &Result{Warnings: r.warnings(state)}
	if r.store == nil {
		return result
	}

	var (
		errorMeths []*memory.Methodology
		stateMeths []*memory.Methodology
		taskFrags  []*memory.Fragment
		semFrags   []*memory.Fragment
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if state.CurrentError != "" {
			errorMeths = r.byError(gctx, state.CurrentError)
		}
		return nil
	})
	g.Go(func() error {
		taskFrags = r.byTask(gctx, state.TaskDescription, state.RepoSummary)
		return nil
	})
	g.Go(func() error {
		stateMeths = r.byState(gctx, state)
		return nil
	})
	g.Go(func() error {
		if len(state.Embedding) > 0 {
			semFrags = r.bySemantic(gctx, state.Embedding, topK)
		}
		return nil
	})
	// Sub-queries are fail-soft and never return errors; the group exists
	// only to join them before fusion.
	_ = g.Wait()

	result.Methodologies = fuseMethodologies(append(errorMeths, stateMeths...), topK)
	result.SimilarFragments = fuseFragments(append(taskFrags, semFrags...), topK)

	span.SetAttributes(
		attribute.Int("methodologies", len(result.Methodologies)),
		attribute.Int("fragments", len(result.SimilarFragments)))
	return result
}

// byError finds methodologies that resolved the error type in the message,
// falling back to any methodology whose situation mentions errors.
func (r *Retriever) byError(ctx context.Context, errorMessage string) []*memory.Methodology {
	errType := errsig.ErrorType(errorMessage)

	var (
		query  string
		params map[string]any
	)
	if errType != "" {
		query = errorResolutionQuery
		params = map[string]any{"error_type": errType}
	} else {
		query, params = graph.MatchNode("Methodology").
			WhereContains("n.situation", "error").
			OrderByDesc("n.confidence").
			Limit(errorQueryLimit).
			Build()
	}

	rows, err := r.store.ExecuteQuery(ctx, query, params)
	if err != nil {
		r.logger.Warn("error-based retrieval failed", zap.Error(err))
		return nil
	}
	return methodologiesFromRows(rows, r.logger)
}

// byTask finds fragments of successful trajectories matching the repo
// identifier and/or task keywords, falling back to all successful fragments
// when neither yields a predicate.
func (r *Retriever) byTask(ctx context.Context, taskDescription, repoSummary string) []*memory.Fragment {
	repo := repoIdentRe.FindString(repoSummary)
	keywords := errsig.Keywords(taskDescription, taskKeywordsMax)

	q := graph.Match("(t:Trajectory)-[:HAS_FRAGMENT]->(f:Fragment)", "f").
		WhereEq("t.success", true)

	if repo != "" || len(keywords) > 0 {
		q.OrGroup(func(or *graph.OrBuilder) {
			if repo != "" {
				or.Eq("t.repo", repo)
			}
			for _, kw := range keywords {
				or.Contains("t.summary", kw)
			}
		})
	}

	query, params := q.OrderByDesc("f.outcome").Limit(taskQueryLimit).Build()
	rows, err := r.store.ExecuteQuery(ctx, query, params)
	if err != nil {
		r.logger.Warn("task-based retrieval failed", zap.Error(err))
		return nil
	}
	return fragmentsFromRows(rows, r.logger)
}

// byState finds methodologies whose situation mentions the current phase.
func (r *Retriever) byState(ctx context.Context, state *memory.State) []*memory.Methodology {
	query, params := graph.MatchNode("Methodology").
		WhereContains("n.situation", string(state.Phase)).
		OrderByDesc("n.confidence").
		Limit(stateQueryLimit).
		Build()

	rows, err := r.store.ExecuteQuery(ctx, query, params)
	if err != nil {
		r.logger.Warn("state-based retrieval failed", zap.Error(err))
		return nil
	}
	return methodologiesFromRows(rows, r.logger)
}

// bySemantic ranks embedded fragments by cosine similarity to the query
// vector. Any backend failure (an unsupported similarity function included)
// is treated as zero results.
func (r *Retriever) bySemantic(ctx context.Context, embedding []float64, topK int) []*memory.Fragment {
	rows, err := r.store.ExecuteQuery(ctx, semanticQuery, map[string]any{
		"embedding": embedding,
		"top_k":     topK,
	})
	if err != nil {
		r.logger.Warn("semantic retrieval failed", zap.Error(err))
		return nil
	}
	return fragmentsFromRows(rows, r.logger)
}

// warnings emits advisories for recognized failure signals, independent of
// any store lookups.
func (r *Retriever) warnings(state *memory.State) []string {
	if state.CurrentError == "" {
		return nil
	}
	errType := errsig.ErrorType(state.CurrentError)
	if errType == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("Common mistake with %s: check import paths and module names carefully", errType),
	}
}

// fuseMethodologies deduplicates by id keeping the first occurrence, then
// ranks by confidence descending and truncates.
func fuseMethodologies(meths []*memory.Methodology, topK int) []*memory.Methodology {
	seen := make(map[string]struct{}, len(meths))
	unique := make([]*memory.Methodology, 0, len(meths))
	for _, m := range meths {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		unique = append(unique, m)
	}
	// Stable sort keeps earlier dimensions ahead on confidence ties.
	sortMethodologiesByConfidence(unique)
	if len(unique) > topK {
		unique = unique[:topK]
	}
	return unique
}

// fuseFragments deduplicates by id preserving order and truncates.
func fuseFragments(frags []*memory.Fragment, topK int) []*memory.Fragment {
	seen := make(map[string]struct{}, len(frags))
	unique := make([]*memory.Fragment, 0, len(frags))
	for _, f := range frags {
		if _, ok := seen[f.ID]; ok {
			continue
		}
		seen[f.ID] = struct{}{}
		unique = append(unique, f)
		if len(unique) >= topK {
			break
		}
	}
	return unique
}

func methodologiesFromRows(rows []map[string]any, logger *zap.Logger) []*memory.Methodology {
	out := make([]*memory.Methodology, 0, len(rows))
	for _, row := range rows {
		props, ok := nodeProps(row)
		if !ok {
			continue
		}
		m, err := memory.MethodologyFromMap(props)
		if err != nil {
			logger.Warn("skipping invalid methodology record", zap.Error(err))
			continue
		}
		out = append(out, m)
	}
	return out
}

func fragmentsFromRows(rows []map[string]any, logger *zap.Logger) []*memory.Fragment {
	out := make([]*memory.Fragment, 0, len(rows))
	for _, row := range rows {
		props, ok := nodeProps(row)
		if !ok {
			continue
		}
		f, err := memory.FragmentFromMap(props)
		if err != nil {
			logger.Warn("skipping invalid fragment record", zap.Error(err))
			continue
		}
		out = append(out, f)
	}
	return out
}

// nodeProps pulls the first node property map out of a result record,
// whatever alias the query used.
func nodeProps(row map[string]any) (map[string]any, bool) {
	for _, alias := range []string{"m", "f", "n", "t", "e"} {
		if props, ok := row[alias].(map[string]any); ok {
			return props, true
		}
	}
	return nil, false
}

func sortMethodologiesByConfidence(meths []*memory.Methodology) {
	sort.SliceStable(meths, func(i, j int) bool {
		return meths[i].Confidence > meths[j].Confidence
	})
}
