package memory

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common errors for memory entities.
var (
	ErrEmptyID           = errors.New("entity ID cannot be empty")
	ErrInvalidTaskType   = errors.New("task type must be 'bug_fix', 'feature', or 'refactor'")
	ErrInvalidFragment   = errors.New("invalid fragment")
	ErrInvalidStepRange  = errors.New("fragment step range start cannot exceed end")
	ErrInvalidPhase      = errors.New("phase must be 'understanding', 'locating', 'fixing', or 'testing'")
	ErrInvalidConfidence = errors.New("confidence must be between 0.0 and 1.0")
	ErrNoSourceFragments = errors.New("methodology requires at least one source fragment")
	ErrEmptyErrorType    = errors.New("error pattern type cannot be empty")
	ErrEmptyTrajectory   = errors.New("trajectory has no steps")
)

// TaskType classifies what kind of work a trajectory performed.
type TaskType string

const (
	TaskBugFix   TaskType = "bug_fix"
	TaskFeature  TaskType = "feature"
	TaskRefactor TaskType = "refactor"
)

// Valid reports whether the task type is one of the known values.
func (t TaskType) Valid() bool {
	switch t {
	case TaskBugFix, TaskFeature, TaskRefactor:
		return true
	}
	return false
}

// FragmentType labels the kind of sub-episode a fragment represents.
type FragmentType string

const (
	FragmentErrorRecovery FragmentType = "error_recovery"
	FragmentExploration   FragmentType = "exploration"
	FragmentSuccessfulFix FragmentType = "successful_fix"
	FragmentFailedAttempt FragmentType = "failed_attempt"
	FragmentLoop          FragmentType = "loop"
)

// Valid reports whether the fragment type is one of the known values.
func (t FragmentType) Valid() bool {
	switch t {
	case FragmentErrorRecovery, FragmentExploration, FragmentSuccessfulFix,
		FragmentFailedAttempt, FragmentLoop:
		return true
	}
	return false
}

// Outcome returns the fixed outcome label for this fragment type.
func (t FragmentType) Outcome() string {
	switch t {
	case FragmentSuccessfulFix:
		return "success"
	case FragmentErrorRecovery:
		return "recovered"
	case FragmentFailedAttempt:
		return "failed"
	default:
		return "completed"
	}
}

// Phase identifies which stage of problem solving the agent is in.
type Phase string

const (
	PhaseUnderstanding Phase = "understanding"
	PhaseLocating      Phase = "locating"
	PhaseFixing        Phase = "fixing"
	PhaseTesting       Phase = "testing"
)

// Valid reports whether the phase is one of the known values.
func (p Phase) Valid() bool {
	switch p {
	case PhaseUnderstanding, PhaseLocating, PhaseFixing, PhaseTesting:
		return true
	}
	return false
}

// Step is a single (action, observation) pair within a raw trajectory.
type Step struct {
	Action      string `json:"action"`
	Observation string `json:"observation"`
}

// RawTrajectory is the unprocessed record of one agent run, as handed to
// Learn. The segmenter converts it into a Trajectory plus Fragments.
type RawTrajectory struct {
	InstanceID       string `json:"instance_id"`
	Repo             string `json:"repo"`
	Success          bool   `json:"success"`
	Steps            []Step `json:"steps"`
	ProblemStatement string `json:"problem_statement,omitempty"`
}

// TotalSteps returns the number of steps in the trajectory.
func (r *RawTrajectory) TotalSteps() int {
	return len(r.Steps)
}

// Validate checks that the raw trajectory can be segmented.
func (r *RawTrajectory) Validate() error {
	if r == nil || len(r.Steps) == 0 {
		return ErrEmptyTrajectory
	}
	return nil
}

// Trajectory summarizes a complete agent run. Created once by the segmenter
// at end of run and never mutated afterwards.
type Trajectory struct {
	ID         string    `json:"id"`
	InstanceID string    `json:"instance_id"`
	Repo       string    `json:"repo"`
	TaskType   TaskType  `json:"task_type"`
	Success    bool      `json:"success"`
	TotalSteps int       `json:"total_steps"`
	Summary    string    `json:"summary"`
	Embedding  []float64 `json:"embedding,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewTrajectory creates a trajectory summary with a generated ID.
func NewTrajectory(instanceID, repo string, taskType TaskType, success bool, totalSteps int, summary string) (*Trajectory, error) {
	if !taskType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTaskType, taskType)
	}
	return &Trajectory{
		ID:         NewTrajectoryID(),
		InstanceID: instanceID,
		Repo:       repo,
		TaskType:   taskType,
		Success:    success,
		TotalSteps: totalSteps,
		Summary:    summary,
		CreatedAt:  time.Now(),
	}, nil
}

// Validate checks the trajectory's invariants.
func (t *Trajectory) Validate() error {
	if t.ID == "" {
		return ErrEmptyID
	}
	if !t.TaskType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTaskType, t.TaskType)
	}
	if t.TotalSteps < 0 {
		return errors.New("total steps cannot be negative")
	}
	return nil
}

// Fragment is a contiguous step range within a trajectory representing one
// coherent sub-episode. Never mutated after creation.
type Fragment struct {
	ID             string       `json:"id"`
	StepStart      int          `json:"step_start"`
	StepEnd        int          `json:"step_end"`
	Type           FragmentType `json:"fragment_type"`
	Description    string       `json:"description"`
	ActionSequence []string     `json:"action_sequence"`
	Outcome        string       `json:"outcome"`
	Embedding      []float64    `json:"embedding,omitempty"`
}

// NewFragment creates a fragment with a generated ID. The outcome is derived
// from the fragment type, never supplied by the caller.
func NewFragment(start, end int, fragType FragmentType, description string, actions []string) (*Fragment, error) {
	if !fragType.Valid() {
		return nil, fmt.Errorf("%w: unknown fragment type %q", ErrInvalidFragment, fragType)
	}
	if start > end {
		return nil, fmt.Errorf("%w: [%d, %d]", ErrInvalidStepRange, start, end)
	}
	return &Fragment{
		ID:             NewFragmentID(),
		StepStart:      start,
		StepEnd:        end,
		Type:           fragType,
		Description:    description,
		ActionSequence: actions,
		Outcome:        fragType.Outcome(),
	}, nil
}

// Validate checks the fragment's invariants.
func (f *Fragment) Validate() error {
	if f.ID == "" {
		return ErrEmptyID
	}
	if !f.Type.Valid() {
		return fmt.Errorf("%w: unknown fragment type %q", ErrInvalidFragment, f.Type)
	}
	if f.StepStart > f.StepEnd {
		return fmt.Errorf("%w: [%d, %d]", ErrInvalidStepRange, f.StepStart, f.StepEnd)
	}
	return nil
}

// StepCount returns the number of steps the fragment covers.
func (f *Fragment) StepCount() int {
	return f.StepEnd - f.StepStart + 1
}

// State is a point-in-time snapshot of the agent, used only as a retrieval
// query key. It is not persisted.
type State struct {
	Tools           []string  `json:"tools,omitempty"`
	RepoSummary     string    `json:"repo_summary"`
	TaskDescription string    `json:"task_description"`
	CurrentError    string    `json:"current_error"`
	Phase           Phase     `json:"phase"`
	LastActionType  string    `json:"last_action_type,omitempty"`
	Embedding       []float64 `json:"embedding,omitempty"`
}

// NewState creates a query state, validating the phase.
func NewState(repoSummary, taskDescription, currentError string, phase Phase) (*State, error) {
	if !phase.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPhase, phase)
	}
	return &State{
		RepoSummary:     repoSummary,
		TaskDescription: taskDescription,
		CurrentError:    currentError,
		Phase:           phase,
	}, nil
}

// SituationString renders the state as one string for embedding.
func (s *State) SituationString() string {
	parts := []string{
		"phase: " + string(s.Phase),
		"task: " + s.TaskDescription,
	}
	if s.CurrentError != "" {
		parts = append(parts, "error: "+s.CurrentError)
	}
	if s.RepoSummary != "" {
		parts = append(parts, "repo: "+s.RepoSummary)
	}
	return strings.Join(parts, "\n")
}

// Methodology is an abstracted situation->strategy rule. Confidence is
// always success_count/(success_count+failure_count) after any recorded
// outcome; it is never set independently once outcomes exist.
type Methodology struct {
	ID                string    `json:"id"`
	Situation         string    `json:"situation"`
	Strategy          string    `json:"strategy"`
	Confidence        float64   `json:"confidence"`
	SuccessCount      int       `json:"success_count"`
	FailureCount      int       `json:"failure_count"`
	SourceFragmentIDs []string  `json:"source_fragment_ids"`
	Embedding         []float64 `json:"embedding,omitempty"`
}

// NewMethodology creates a methodology abstracted from a fragment cluster.
func NewMethodology(situation, strategy string, confidence float64, successCount int, sourceFragmentIDs []string) (*Methodology, error) {
	if confidence < 0.0 || confidence > 1.0 {
		return nil, ErrInvalidConfidence
	}
	if len(sourceFragmentIDs) == 0 {
		return nil, ErrNoSourceFragments
	}
	return &Methodology{
		ID:                NewMethodologyID(),
		Situation:         situation,
		Strategy:          strategy,
		Confidence:        confidence,
		SuccessCount:      successCount,
		SourceFragmentIDs: sourceFragmentIDs,
	}, nil
}

// Validate checks the methodology's invariants.
func (m *Methodology) Validate() error {
	if m.ID == "" {
		return ErrEmptyID
	}
	if m.Confidence < 0.0 || m.Confidence > 1.0 {
		return ErrInvalidConfidence
	}
	if m.SuccessCount < 0 || m.FailureCount < 0 {
		return errors.New("outcome counts cannot be negative")
	}
	return nil
}

// RecordOutcome records one application of the methodology and recomputes
// confidence as the observed success rate.
func (m *Methodology) RecordOutcome(success bool) {
	if success {
		m.SuccessCount++
	} else {
		m.FailureCount++
	}
	total := m.SuccessCount + m.FailureCount
	if total > 0 {
		m.Confidence = float64(m.SuccessCount) / float64(total)
	}
}

// TotalOutcomes returns the number of recorded applications.
func (m *Methodology) TotalOutcomes() int {
	return m.SuccessCount + m.FailureCount
}

// ErrorPattern is a recurring error signature. Patterns are upserted by
// error type: re-observing a known type grows its keyword set and frequency.
type ErrorPattern struct {
	ID        string   `json:"id"`
	ErrorType string   `json:"error_type"`
	Keywords  []string `json:"error_keywords"`
	Context   string   `json:"context"`
	Frequency int      `json:"frequency"`
}

// NewErrorPattern creates an error pattern candidate with a generated ID.
func NewErrorPattern(errorType string, keywords []string, context string, frequency int) (*ErrorPattern, error) {
	if errorType == "" {
		return nil, ErrEmptyErrorType
	}
	return &ErrorPattern{
		ID:        NewErrorPatternID(),
		ErrorType: errorType,
		Keywords:  keywords,
		Context:   context,
		Frequency: frequency,
	}, nil
}

// Validate checks the error pattern's invariants.
func (e *ErrorPattern) Validate() error {
	if e.ID == "" {
		return ErrEmptyID
	}
	if e.ErrorType == "" {
		return ErrEmptyErrorType
	}
	if e.Frequency < 0 {
		return errors.New("frequency cannot be negative")
	}
	return nil
}
