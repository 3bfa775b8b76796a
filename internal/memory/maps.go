package memory

import (
	"fmt"
	"time"
)

// Property-map conversion. The graph store persists entities as flat
// property maps and returns them the same way; numeric values come back as
// int64 and lists as []any, so the From* constructors coerce both forms.

// ToMap converts the trajectory to a graph property map.
func (t *Trajectory) ToMap() map[string]any {
	return map[string]any{
		"id":          t.ID,
		"instance_id": t.InstanceID,
		"repo":        t.Repo,
		"task_type":   string(t.TaskType),
		"success":     t.Success,
		"total_steps": t.TotalSteps,
		"summary":     t.Summary,
		"embedding":   floatSliceOrNil(t.Embedding),
		"created_at":  t.CreatedAt.Format(time.RFC3339Nano),
	}
}

// TrajectoryFromMap reconstructs a trajectory from a graph property map.
func TrajectoryFromMap(props map[string]any) (*Trajectory, error) {
	t := &Trajectory{
		ID:         asString(props["id"]),
		InstanceID: asString(props["instance_id"]),
		Repo:       asString(props["repo"]),
		TaskType:   TaskType(asString(props["task_type"])),
		Success:    asBool(props["success"]),
		TotalSteps: asInt(props["total_steps"]),
		Summary:    asString(props["summary"]),
		Embedding:  asFloatSlice(props["embedding"]),
	}
	if raw := asString(props["created_at"]); raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		t.CreatedAt = ts
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// ToMap converts the fragment to a graph property map.
func (f *Fragment) ToMap() map[string]any {
	return map[string]any{
		"id":              f.ID,
		"step_start":      f.StepStart,
		"step_end":        f.StepEnd,
		"fragment_type":   string(f.Type),
		"description":     f.Description,
		"action_sequence": stringSliceOrNil(f.ActionSequence),
		"outcome":         f.Outcome,
		"embedding":       floatSliceOrNil(f.Embedding),
	}
}

// FragmentFromMap reconstructs a fragment from a graph property map.
func FragmentFromMap(props map[string]any) (*Fragment, error) {
	f := &Fragment{
		ID:             asString(props["id"]),
		StepStart:      asInt(props["step_start"]),
		StepEnd:        asInt(props["step_end"]),
		Type:           FragmentType(asString(props["fragment_type"])),
		Description:    asString(props["description"]),
		ActionSequence: asStringSlice(props["action_sequence"]),
		Outcome:        asString(props["outcome"]),
		Embedding:      asFloatSlice(props["embedding"]),
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// ToMap converts the methodology to a graph property map.
func (m *Methodology) ToMap() map[string]any {
	return map[string]any{
		"id":                  m.ID,
		"situation":           m.Situation,
		"strategy":            m.Strategy,
		"confidence":          m.Confidence,
		"success_count":       m.SuccessCount,
		"failure_count":       m.FailureCount,
		"source_fragment_ids": stringSliceOrNil(m.SourceFragmentIDs),
		"embedding":           floatSliceOrNil(m.Embedding),
	}
}

// MethodologyFromMap reconstructs a methodology from a graph property map.
func MethodologyFromMap(props map[string]any) (*Methodology, error) {
	m := &Methodology{
		ID:                asString(props["id"]),
		Situation:         asString(props["situation"]),
		Strategy:          asString(props["strategy"]),
		Confidence:        asFloat(props["confidence"]),
		SuccessCount:      asInt(props["success_count"]),
		FailureCount:      asInt(props["failure_count"]),
		SourceFragmentIDs: asStringSlice(props["source_fragment_ids"]),
		Embedding:         asFloatSlice(props["embedding"]),
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// ToMap converts the error pattern to a graph property map.
func (e *ErrorPattern) ToMap() map[string]any {
	return map[string]any{
		"id":             e.ID,
		"error_type":     e.ErrorType,
		"error_keywords": stringSliceOrNil(e.Keywords),
		"context":        e.Context,
		"frequency":      e.Frequency,
	}
}

// ErrorPatternFromMap reconstructs an error pattern from a graph property map.
func ErrorPatternFromMap(props map[string]any) (*ErrorPattern, error) {
	e := &ErrorPattern{
		ID:        asString(props["id"]),
		ErrorType: asString(props["error_type"]),
		Keywords:  asStringSlice(props["error_keywords"]),
		Context:   asString(props["context"]),
		Frequency: asInt(props["frequency"]),
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

func asStringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		if len(s) == 0 {
			return nil
		}
		out := make([]string, len(s))
		copy(out, s)
		return out
	case []any:
		if len(s) == 0 {
			return nil
		}
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

func asFloatSlice(v any) []float64 {
	switch s := v.(type) {
	case []float64:
		if len(s) == 0 {
			return nil
		}
		out := make([]float64, len(s))
		copy(out, s)
		return out
	case []any:
		if len(s) == 0 {
			return nil
		}
		out := make([]float64, 0, len(s))
		for _, item := range s {
			out = append(out, asFloat(item))
		}
		return out
	}
	return nil
}

// floatSliceOrNil keeps empty embeddings as nil properties instead of empty
// lists, so "embedding IS NOT NULL" filters behave.
func floatSliceOrNil(s []float64) any {
	if len(s) == 0 {
		return nil
	}
	return s
}

func stringSliceOrNil(s []string) any {
	if len(s) == 0 {
		return []string{}
	}
	return s
}
