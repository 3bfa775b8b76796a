// Package segment converts raw agent trajectories into typed fragments.
//
// The writer segments a step sequence on error-signal transitions, extracts
// recurring error patterns, and persists the resulting nodes and edges to
// the graph store. Segmentation is total and exclusive: every step belongs
// to exactly one fragment.
package segment

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/trajbank/internal/errsig"
	"github.com/fyrsmithlabs/trajbank/internal/graph"
	"github.com/fyrsmithlabs/trajbank/internal/memory"
)

const (
	// maxDescribedActions caps how many actions a fragment description or
	// trajectory summary names.
	maxDescribedActions = 5

	// maxPatternKeywords caps the keyword set of one error pattern.
	maxPatternKeywords = 10

	// keywordsPerObservation caps keywords extracted from one observation.
	keywordsPerObservation = 5
)

// Writer segments trajectories and writes them to the memory store.
//
// Both the store and the embedder may be nil: without a store the writer
// still segments and returns a trajectory ID (offline mode), and without an
// embedder nodes are persisted without embeddings.
type Writer struct {
	store    graph.Store
	embedder embeddingProvider
	logger   *zap.Logger
}

// embeddingProvider is the slice of the embeddings API the writer needs.
type embeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// NewWriter creates a trajectory writer.
func NewWriter(store graph.Store, embedder embeddingProvider, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		store:    store,
		embedder: embedder,
		logger:   logger,
	}
}

// WriteTrajectory segments and persists one completed run, returning the new
// trajectory ID. A trajectory with no steps is rejected.
func (w *Writer) WriteTrajectory(ctx context.Context, raw *memory.RawTrajectory) (string, error) {
	if err := raw.Validate(); err != nil {
		return "", err
	}

	trajectory, err := memory.NewTrajectory(
		raw.InstanceID,
		raw.Repo,
		inferTaskType(raw.ProblemStatement),
		raw.Success,
		raw.TotalSteps(),
		generateSummary(raw),
	)
	if err != nil {
		return "", fmt.Errorf("building trajectory: %w", err)
	}

	fragments, err := Segment(raw)
	if err != nil {
		return "", fmt.Errorf("segmenting trajectory: %w", err)
	}

	patterns := ExtractErrorPatterns(raw)

	w.embed(ctx, trajectory, fragments)

	if w.store != nil {
		if err := w.persist(ctx, trajectory, fragments, patterns, raw); err != nil {
			return "", err
		}
	}

	w.logger.Info("trajectory written",
		zap.String("trajectory_id", trajectory.ID),
		zap.String("instance_id", raw.InstanceID),
		zap.Bool("success", raw.Success),
		zap.Int("fragments", len(fragments)),
		zap.Int("error_patterns", len(patterns)))

	return trajectory.ID, nil
}

// embed attaches embeddings where an embedder is configured. Embedding
// failures downgrade to unembedded nodes rather than failing the write.
func (w *Writer) embed(ctx context.Context, trajectory *memory.Trajectory, fragments []*memory.Fragment) {
	if w.embedder == nil {
		return
	}
	if vec, err := w.embedder.Embed(ctx, trajectory.Summary); err != nil {
		w.logger.Warn("embedding trajectory summary failed", zap.Error(err))
	} else {
		trajectory.Embedding = vec
	}
	for _, frag := range fragments {
		vec, err := w.embedder.Embed(ctx, frag.Description)
		if err != nil {
			w.logger.Warn("embedding fragment failed",
				zap.String("fragment_id", frag.ID),
				zap.Error(err))
			continue
		}
		frag.Embedding = vec
	}
}

func (w *Writer) persist(ctx context.Context, trajectory *memory.Trajectory, fragments []*memory.Fragment, patterns []*memory.ErrorPattern, raw *memory.RawTrajectory) error {
	if err := graph.CreateTrajectory(ctx, w.store, trajectory); err != nil {
		return fmt.Errorf("persisting trajectory: %w", err)
	}
	for _, frag := range fragments {
		if err := graph.CreateFragment(ctx, w.store, frag, trajectory.ID); err != nil {
			return fmt.Errorf("persisting fragment %s: %w", frag.ID, err)
		}
	}
	for _, pattern := range patterns {
		if err := graph.UpsertErrorPattern(ctx, w.store, pattern); err != nil {
			return fmt.Errorf("persisting error pattern %s: %w", pattern.ErrorType, err)
		}
	}
	w.linkFragmentsToErrors(ctx, fragments, patterns, raw)
	return nil
}

// linkFragmentsToErrors creates CAUSED_ERROR edges from each fragment to the
// error patterns its observations exhibit. Link failures are logged, not
// fatal: the nodes themselves are already durable.
func (w *Writer) linkFragmentsToErrors(ctx context.Context, fragments []*memory.Fragment, patterns []*memory.ErrorPattern, raw *memory.RawTrajectory) {
	known := make(map[string]struct{}, len(patterns))
	for _, p := range patterns {
		known[p.ErrorType] = struct{}{}
	}
	for _, frag := range fragments {
		linked := make(map[string]struct{})
		for i := frag.StepStart; i <= frag.StepEnd && i < len(raw.Steps); i++ {
			errType := errsig.ErrorType(raw.Steps[i].Observation)
			if errType == "" {
				continue
			}
			if _, ok := known[errType]; !ok {
				continue
			}
			if _, done := linked[errType]; done {
				continue
			}
			linked[errType] = struct{}{}
			if err := graph.LinkFragmentToError(ctx, w.store, frag.ID, errType); err != nil {
				w.logger.Warn("linking fragment to error pattern failed",
					zap.String("fragment_id", frag.ID),
					zap.String("error_type", errType),
					zap.Error(err))
			}
		}
	}
}

// Segment splits a raw trajectory into fragments covering every step exactly
// once.
//
// The walk keeps a current fragment type (starting as exploration) and an
// error flag. Entering an error closes the current fragment before the
// failing step and opens a failed_attempt fragment; leaving an error closes
// the whole error episode, recovering step included, as error_recovery. The
// trailing fragment of a successful trajectory is relabeled successful_fix
// unless the run ended mid-error.
func Segment(raw *memory.RawTrajectory) ([]*memory.Fragment, error) {
	if err := raw.Validate(); err != nil {
		return nil, err
	}

	var fragments []*memory.Fragment
	currentStart := 0
	currentType := memory.FragmentExploration
	var currentActions []string
	inError := false

	appendFragment := func(start, end int, fragType memory.FragmentType, actions []string) error {
		frag, err := newFragment(start, end, fragType, actions, raw)
		if err != nil {
			return err
		}
		fragments = append(fragments, frag)
		return nil
	}

	for i, step := range raw.Steps {
		currentActions = append(currentActions, step.Action)
		hasError := errsig.IsError(step.Observation)

		switch {
		case hasError && !inError:
			if i > currentStart {
				if err := appendFragment(currentStart, i-1, currentType, currentActions[:len(currentActions)-1]); err != nil {
					return nil, err
				}
			}
			currentStart = i
			currentType = memory.FragmentFailedAttempt
			currentActions = []string{step.Action}
			inError = true

		case !hasError && inError:
			if err := appendFragment(currentStart, i, memory.FragmentErrorRecovery, currentActions); err != nil {
				return nil, err
			}
			currentStart = i + 1
			currentType = memory.FragmentExploration
			currentActions = nil
			inError = false
		}
	}

	if currentStart < len(raw.Steps) {
		finalType := currentType
		if raw.Success && !inError {
			finalType = memory.FragmentSuccessfulFix
		}
		if err := appendFragment(currentStart, len(raw.Steps)-1, finalType, currentActions); err != nil {
			return nil, err
		}
	}

	return fragments, nil
}

func newFragment(start, end int, fragType memory.FragmentType, actions []string, raw *memory.RawTrajectory) (*memory.Fragment, error) {
	description := describeFragment(raw.Steps[start:end+1], fragType)
	seq := make([]string, len(actions))
	copy(seq, actions)
	return memory.NewFragment(start, end, fragType, description, seq)
}

// describeFragment synthesizes a description from the de-duplicated,
// order-preserving action list of the fragment's steps, capped at five.
func describeFragment(steps []memory.Step, fragType memory.FragmentType) string {
	if len(steps) == 0 {
		return fmt.Sprintf("Empty %s fragment", fragType)
	}
	actions := make([]string, len(steps))
	for i, s := range steps {
		actions[i] = s.Action
	}
	unique := dedupe(actions, maxDescribedActions)
	return fmt.Sprintf("%s: %s", titleize(string(fragType)), strings.Join(unique, ", "))
}

// ExtractErrorPatterns collects one error-pattern candidate per distinct
// typed error observed across the trajectory, with accumulated keyword sets
// and occurrence counts.
func ExtractErrorPatterns(raw *memory.RawTrajectory) []*memory.ErrorPattern {
	type acc struct {
		keywords []string
		count    int
	}
	counts := make(map[string]*acc)
	var order []string

	for _, step := range raw.Steps {
		errType := errsig.ErrorType(step.Observation)
		if errType == "" {
			continue
		}
		a, ok := counts[errType]
		if !ok {
			a = &acc{}
			counts[errType] = a
			order = append(order, errType)
		}
		a.count++
		a.keywords = append(a.keywords, errsig.Keywords(step.Observation, keywordsPerObservation)...)
	}

	patterns := make([]*memory.ErrorPattern, 0, len(order))
	for _, errType := range order {
		a := counts[errType]
		pattern, err := memory.NewErrorPattern(errType, dedupe(a.keywords, maxPatternKeywords), "trajectory", a.count)
		if err != nil {
			continue
		}
		patterns = append(patterns, pattern)
	}
	return patterns
}

// generateSummary renders a short natural-language trajectory summary.
func generateSummary(raw *memory.RawTrajectory) string {
	outcome := "failed"
	if raw.Success {
		outcome = "succeeded"
	}
	actions := make([]string, len(raw.Steps))
	for i, s := range raw.Steps {
		actions[i] = s.Action
	}
	unique := dedupe(actions, maxDescribedActions)

	var b strings.Builder
	fmt.Fprintf(&b, "Trajectory %s after %d steps. ", outcome, raw.TotalSteps())
	fmt.Fprintf(&b, "Actions: %s. ", strings.Join(unique, ", "))
	if raw.ProblemStatement != "" {
		fmt.Fprintf(&b, "Task: %s", truncate(raw.ProblemStatement, 100))
	}
	return b.String()
}

// inferTaskType guesses the task type from the problem statement. Bug fixes
// are the default since most trajectories in the corpus are issue repairs.
func inferTaskType(problemStatement string) memory.TaskType {
	text := strings.ToLower(problemStatement)
	switch {
	case containsAny(text, "fix", "bug", "error", "issue", "crash"):
		return memory.TaskBugFix
	case containsAny(text, "add", "feature", "implement", "create", "new"):
		return memory.TaskFeature
	case containsAny(text, "refactor", "clean", "improve", "optimize"):
		return memory.TaskRefactor
	default:
		return memory.TaskBugFix
	}
}

func containsAny(text string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// dedupe keeps the first occurrence of each value, up to max entries.
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

// titleize turns "error_recovery" into "Error Recovery".
func titleize(s string) string {
	words := strings.Split(s, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
