// Package bank is the unified entry point to the trajectory memory.
//
// The Service wires the segmenter, retriever, consolidator, and loop
// detector around one graph store and exposes the four operations the agent
// runtime calls: Learn after a completed run, Query before each decision,
// CheckLoop over the recent state history, and Stats. Both the store and the
// embedder are optional; without them every operation degrades to an empty
// result instead of failing.
package bank

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/trajbank/internal/consolidate"
	"github.com/fyrsmithlabs/trajbank/internal/embeddings"
	"github.com/fyrsmithlabs/trajbank/internal/graph"
	"github.com/fyrsmithlabs/trajbank/internal/loopdetect"
	"github.com/fyrsmithlabs/trajbank/internal/memory"
	"github.com/fyrsmithlabs/trajbank/internal/retrieval"
	"github.com/fyrsmithlabs/trajbank/internal/segment"
)

const instrumentationName = "github.com/fyrsmithlabs/trajbank/internal/bank"

// MemoryContext is what a Query hands back to the agent runtime.
type MemoryContext struct {
	Methodologies    []*memory.Methodology `json:"methodologies"`
	SimilarFragments []*memory.Fragment    `json:"similar_fragments"`
	Warnings         []string              `json:"warnings"`
}

// HasSuggestions reports whether any methodology applies.
func (c *MemoryContext) HasSuggestions() bool {
	return len(c.Methodologies) > 0
}

// Stats summarizes the stored memory.
type Stats struct {
	TotalTrajectories  int `json:"total_trajectories"`
	TotalMethodologies int `json:"total_methodologies"`
}

// Service is the stateful memory facade.
//
// The trajectory counter is the only mutable state the service owns; it is
// mutex-protected so Learn may be called from multiple goroutines. The same
// mutex serializes policy-triggered consolidation runs.
type Service struct {
	store    graph.Store
	embedder embeddings.Provider

	writer       *segment.Writer
	retriever    *retrieval.Retriever
	consolidator *consolidate.Consolidator
	detector     *loopdetect.Detector

	policy ConsolidationPolicy
	topK   int

	mu              sync.Mutex
	trajectoryCount int

	logger *zap.Logger
	tracer trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

// WithConsolidationPolicy replaces the default every-16 trigger policy.
func WithConsolidationPolicy(p ConsolidationPolicy) Option {
	return func(s *Service) {
		if p != nil {
			s.policy = p
		}
	}
}

// WithTopK sets the fused retrieval result size.
func WithTopK(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithLoopMinRepeat sets how many repetitions count as a loop.
func WithLoopMinRepeat(n int) Option {
	return func(s *Service) {
		s.detector = loopdetect.NewDetector(n)
	}
}

// NewService creates the memory facade. A nil store means offline mode:
// Learn still segments and returns IDs, Query and Stats return empty
// results. A nil embedder skips all embedding work.
func NewService(store graph.Store, embedder embeddings.Provider, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		logger.Warn("running without graph store (offline mode)")
	}
	if embedder == nil {
		logger.Warn("running without embedder, semantic retrieval disabled")
	}

	s := &Service{
		store:        store,
		embedder:     embedder,
		writer:       segment.NewWriter(store, embedder, logger.Named("segment")),
		retriever:    retrieval.NewRetriever(store, logger.Named("retrieval")),
		consolidator: consolidate.NewConsolidator(store, logger.Named("consolidate")),
		detector:     loopdetect.NewDetector(loopdetect.DefaultMinRepeat),
		policy:       NewEveryN(DefaultConsolidationInterval),
		topK:         retrieval.DefaultTopK,
		logger:       logger,
		tracer:       otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InitSchema initializes the store schema when a store is configured.
func (s *Service) InitSchema(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	return s.store.InitSchema(ctx)
}

// Learn ingests one completed trajectory and returns its ID. Every
// policy-selected count triggers a synchronous consolidation run; a failing
// consolidation never fails the learn.
func (s *Service) Learn(ctx context.Context, raw *memory.RawTrajectory) (string, error) {
	ctx, span := s.tracer.Start(ctx, "bank.Learn")
	defer span.End()

	trajectoryID, err := s.writer.WriteTrajectory(ctx, raw)
	if err != nil {
		return "", err
	}
	span.SetAttributes(attribute.String("trajectory_id", trajectoryID))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.trajectoryCount++
	if s.policy.ShouldConsolidate(s.trajectoryCount) {
		s.logger.Info("triggering consolidation",
			zap.Int("trajectory_count", s.trajectoryCount))
		s.consolidator.Consolidate(ctx)
	}

	return trajectoryID, nil
}

// Query retrieves relevant context for the current state. When the state
// carries no embedding and an embedder is configured, one is computed from
// the state's situation string first; embedding failures downgrade to
// non-semantic retrieval.
func (s *Service) Query(ctx context.Context, state *memory.State) *MemoryContext {
	ctx, span := s.tracer.Start(ctx, "bank.Query")
	defer span.End()

	if s.embedder != nil && len(state.Embedding) == 0 {
		vec, err := s.embedder.Embed(ctx, state.SituationString())
		if err != nil {
			s.logger.Warn("embedding query state failed", zap.Error(err))
		} else {
			state.Embedding = vec
		}
	}

	result := s.retriever.Retrieve(ctx, state, s.topK)
	return &MemoryContext{
		Methodologies:    result.Methodologies,
		SimilarFragments: result.SimilarFragments,
		Warnings:         result.Warnings,
	}
}

// CheckLoop reports whether the recent state history repeats a failure
// signature, or nil when it does not.
func (s *Service) CheckLoop(history []*memory.State) *loopdetect.LoopInfo {
	return s.detector.Detect(history)
}

// Consolidate runs consolidation immediately, outside the learn-count
// policy.
func (s *Service) Consolidate(ctx context.Context) *consolidate.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consolidator.Consolidate(ctx)
}

// Stats counts stored trajectories and methodologies. Query failures and a
// missing store both yield zero stats.
func (s *Service) Stats(ctx context.Context) *Stats {
	stats := &Stats{}
	if s.store == nil {
		return stats
	}

	stats.TotalTrajectories = s.countNodes(ctx, "Trajectory")
	stats.TotalMethodologies = s.countNodes(ctx, "Methodology")
	return stats
}

func (s *Service) countNodes(ctx context.Context, label string) int {
	rows, err := s.store.ExecuteQuery(ctx, "MATCH (n:"+label+") RETURN count(n) AS count", nil)
	if err != nil {
		s.logger.Warn("counting nodes failed",
			zap.String("label", label),
			zap.Error(err))
		return 0
	}
	if len(rows) == 0 {
		return 0
	}
	switch v := rows[0]["count"].(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// Close releases the store connection.
func (s *Service) Close(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	return s.store.Close(ctx)
}
