package graph

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/trajbank/internal/memory"
)

// Entity persistence. Each helper issues one parameterized write; the
// property maps come from the entities' ToMap forms.

const createTrajectoryQuery = `
CREATE (t:Trajectory {
    id: $id,
    instance_id: $instance_id,
    repo: $repo,
    task_type: $task_type,
    success: $success,
    total_steps: $total_steps,
    summary: $summary,
    embedding: $embedding,
    created_at: $created_at
})`

const createFragmentQuery = `
MATCH (t:Trajectory {id: $trajectory_id})
CREATE (f:Fragment {
    id: $id,
    step_start: $step_start,
    step_end: $step_end,
    fragment_type: $fragment_type,
    description: $description,
    action_sequence: $action_sequence,
    outcome: $outcome,
    embedding: $embedding
})
CREATE (t)-[:HAS_FRAGMENT]->(f)`

const createMethodologyQuery = `
CREATE (m:Methodology {
    id: $id,
    situation: $situation,
    strategy: $strategy,
    confidence: $confidence,
    success_count: $success_count,
    failure_count: $failure_count,
    source_fragment_ids: $source_fragment_ids,
    embedding: $embedding
})`

// upsertErrorPatternQuery merges on error type: a repeat observation of a
// known type grows its keyword set and bumps its frequency instead of
// creating a second node.
const upsertErrorPatternQuery = `
MERGE (e:ErrorPattern {error_type: $error_type})
ON CREATE SET
    e.id = $id,
    e.error_keywords = $error_keywords,
    e.context = $context,
    e.frequency = $frequency
ON MATCH SET
    e.error_keywords = e.error_keywords + [kw IN $error_keywords WHERE NOT kw IN e.error_keywords],
    e.frequency = e.frequency + 1`

const linkFragmentToErrorQuery = `
MATCH (f:Fragment {id: $fragment_id})
MATCH (e:ErrorPattern {error_type: $error_type})
MERGE (f)-[:CAUSED_ERROR]->(e)`

const linkMethodologyToErrorQuery = `
MATCH (e:ErrorPattern {error_type: $error_type})
MATCH (m:Methodology {id: $methodology_id})
MERGE (e)-[:RESOLVED_BY]->(m)`

const getTrajectoryQuery = `MATCH (t:Trajectory {id: $id}) RETURN t`

// CreateTrajectory persists a trajectory node.
func CreateTrajectory(ctx context.Context, s Store, t *memory.Trajectory) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("validating trajectory: %w", err)
	}
	return s.ExecuteWrite(ctx, createTrajectoryQuery, t.ToMap())
}

// GetTrajectory looks up a trajectory by id. Returns nil when absent.
func GetTrajectory(ctx context.Context, s Store, id string) (*memory.Trajectory, error) {
	rows, err := s.ExecuteQuery(ctx, getTrajectoryQuery, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	props, ok := rows[0]["t"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected trajectory record shape")
	}
	return memory.TrajectoryFromMap(props)
}

// CreateFragment persists a fragment node and links it to its trajectory.
func CreateFragment(ctx context.Context, s Store, f *memory.Fragment, trajectoryID string) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("validating fragment: %w", err)
	}
	params := f.ToMap()
	params["trajectory_id"] = trajectoryID
	return s.ExecuteWrite(ctx, createFragmentQuery, params)
}

// CreateMethodology persists a methodology node.
func CreateMethodology(ctx context.Context, s Store, m *memory.Methodology) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("validating methodology: %w", err)
	}
	return s.ExecuteWrite(ctx, createMethodologyQuery, m.ToMap())
}

// UpsertErrorPattern merges an error pattern on its error type.
func UpsertErrorPattern(ctx context.Context, s Store, e *memory.ErrorPattern) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("validating error pattern: %w", err)
	}
	return s.ExecuteWrite(ctx, upsertErrorPatternQuery, e.ToMap())
}

// LinkFragmentToError records that a fragment observed the given error type.
func LinkFragmentToError(ctx context.Context, s Store, fragmentID, errorType string) error {
	return s.ExecuteWrite(ctx, linkFragmentToErrorQuery, map[string]any{
		"fragment_id": fragmentID,
		"error_type":  errorType,
	})
}

// LinkMethodologyToError records that a methodology resolves the given error
// type.
func LinkMethodologyToError(ctx context.Context, s Store, methodologyID, errorType string) error {
	return s.ExecuteWrite(ctx, linkMethodologyToErrorQuery, map[string]any{
		"methodology_id": methodologyID,
		"error_type":     errorType,
	})
}
