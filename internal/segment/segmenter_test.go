package segment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/trajbank/internal/embeddings"
	"github.com/fyrsmithlabs/trajbank/internal/graph/graphtest"
	"github.com/fyrsmithlabs/trajbank/internal/memory"
)

func step(action, observation string) memory.Step {
	return memory.Step{Action: action, Observation: observation}
}

func TestSegmentEmptyTrajectory(t *testing.T) {
	_, err := Segment(&memory.RawTrajectory{})
	require.ErrorIs(t, err, memory.ErrEmptyTrajectory)
}

func TestSegmentNoErrors(t *testing.T) {
	tests := []struct {
		name     string
		success  bool
		wantType memory.FragmentType
	}{
		{name: "successful run becomes successful_fix", success: true, wantType: memory.FragmentSuccessfulFix},
		{name: "failed run stays exploration", success: false, wantType: memory.FragmentExploration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := &memory.RawTrajectory{
				Success: tt.success,
				Steps: []memory.Step{
					step("search", "found candidates"),
					step("edit", "file updated"),
					step("test", "all tests passed"),
				},
			}

			frags, err := Segment(raw)
			require.NoError(t, err)
			require.Len(t, frags, 1)
			assert.Equal(t, tt.wantType, frags[0].Type)
			assert.Equal(t, 0, frags[0].StepStart)
			assert.Equal(t, 2, frags[0].StepEnd)
			assert.Equal(t, []string{"search", "edit", "test"}, frags[0].ActionSequence)
		})
	}
}

func TestSegmentErrorRecovery(t *testing.T) {
	raw := &memory.RawTrajectory{
		Success: true,
		Steps: []memory.Step{
			step("search", "found the module"),
			step("edit", "ImportError: No module named foo"),
			step("edit", "ImportError: No module named foo"),
			step("edit", "fixed the import"),
			step("test", "all tests passed"),
		},
	}

	frags, err := Segment(raw)
	require.NoError(t, err)
	require.Len(t, frags, 3)

	assert.Equal(t, memory.FragmentExploration, frags[0].Type)
	assert.Equal(t, 0, frags[0].StepStart)
	assert.Equal(t, 0, frags[0].StepEnd)

	// The recovery fragment spans the failing steps plus the step that
	// cleared the error.
	assert.Equal(t, memory.FragmentErrorRecovery, frags[1].Type)
	assert.Equal(t, 1, frags[1].StepStart)
	assert.Equal(t, 3, frags[1].StepEnd)
	assert.Equal(t, []string{"edit", "edit", "edit"}, frags[1].ActionSequence)
	assert.Equal(t, "recovered", frags[1].Outcome)

	assert.Equal(t, memory.FragmentSuccessfulFix, frags[2].Type)
	assert.Equal(t, 4, frags[2].StepStart)
	assert.Equal(t, 4, frags[2].StepEnd)
}

func TestSegmentEndsInError(t *testing.T) {
	raw := &memory.RawTrajectory{
		Success: false,
		Steps: []memory.Step{
			step("search", "looking around"),
			step("edit", "TypeError: cannot unpack"),
			step("edit", "TypeError: still broken"),
		},
	}

	frags, err := Segment(raw)
	require.NoError(t, err)
	require.Len(t, frags, 2)
	assert.Equal(t, memory.FragmentExploration, frags[0].Type)
	assert.Equal(t, memory.FragmentFailedAttempt, frags[1].Type)
	assert.Equal(t, 1, frags[1].StepStart)
	assert.Equal(t, 2, frags[1].StepEnd)
}

// A run that ends mid-error is never relabeled successful_fix even when the
// harness reported overall success.
func TestSegmentSuccessButEndsInError(t *testing.T) {
	raw := &memory.RawTrajectory{
		Success: true,
		Steps: []memory.Step{
			step("edit", "applied patch"),
			step("test", "FAIL: flaky test failed"),
		},
	}

	frags, err := Segment(raw)
	require.NoError(t, err)
	last := frags[len(frags)-1]
	assert.Equal(t, memory.FragmentFailedAttempt, last.Type)
}

func TestSegmentCoversEveryStepExactlyOnce(t *testing.T) {
	raw := &memory.RawTrajectory{
		Success: true,
		Steps: []memory.Step{
			step("search", "ok"),
			step("edit", "ValueError: bad input"),
			step("edit", "done"),
			step("run", "KeyError: missing"),
			step("edit", "done"),
			step("test", "passed"),
		},
	}

	frags, err := Segment(raw)
	require.NoError(t, err)

	next := 0
	for _, f := range frags {
		assert.Equal(t, next, f.StepStart, "fragment %s starts at wrong step", f.ID)
		assert.LessOrEqual(t, f.StepStart, f.StepEnd)
		next = f.StepEnd + 1
	}
	assert.Equal(t, len(raw.Steps), next, "fragments must cover the whole trajectory")
}

func TestExtractErrorPatterns(t *testing.T) {
	raw := &memory.RawTrajectory{
		Steps: []memory.Step{
			step("edit", "ImportError: No module named foo"),
			step("edit", "ImportError: No module named bar"),
			step("run", "KeyError: 'config'"),
			step("test", "all tests passed"),
		},
	}

	patterns := ExtractErrorPatterns(raw)
	require.Len(t, patterns, 2)

	assert.Equal(t, "ImportError", patterns[0].ErrorType)
	assert.Equal(t, 2, patterns[0].Frequency)
	assert.Contains(t, patterns[0].Keywords, "importerror")
	assert.Contains(t, patterns[0].Keywords, "module")

	assert.Equal(t, "KeyError", patterns[1].ErrorType)
	assert.Equal(t, 1, patterns[1].Frequency)
}

func TestInferTaskType(t *testing.T) {
	tests := []struct {
		statement string
		want      memory.TaskType
	}{
		{statement: "Fix the crash in the parser", want: memory.TaskBugFix},
		{statement: "Add a new export feature", want: memory.TaskFeature},
		{statement: "Refactor the config loader", want: memory.TaskRefactor},
		{statement: "", want: memory.TaskBugFix},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, inferTaskType(tt.statement), tt.statement)
	}
}

func TestWriteTrajectory(t *testing.T) {
	store := graphtest.NewFakeStore()
	writer := NewWriter(store, embeddings.NewMockProvider(8), zap.NewNop())

	raw := &memory.RawTrajectory{
		InstanceID:       "inst-1",
		Repo:             "owner/repo",
		Success:          true,
		ProblemStatement: "Fix the import bug",
		Steps: []memory.Step{
			step("search", "found imports"),
			step("edit", "ImportError: No module named foo"),
			step("edit", "import fixed"),
			step("test", "all tests passed"),
		},
	}

	id, err := writer.WriteTrajectory(context.Background(), raw)
	require.NoError(t, err)
	assert.Contains(t, id, "traj_")

	require.Len(t, store.WritesContaining("CREATE (t:Trajectory"), 1)
	assert.Len(t, store.WritesContaining("HAS_FRAGMENT"), 3)
	assert.Len(t, store.WritesContaining("MERGE (e:ErrorPattern"), 1)
	// The fragment that observed the ImportError gets a causal edge.
	assert.Len(t, store.WritesContaining("CAUSED_ERROR"), 1)
}

func TestWriteTrajectoryOffline(t *testing.T) {
	writer := NewWriter(nil, nil, zap.NewNop())

	raw := &memory.RawTrajectory{
		Success: false,
		Steps:   []memory.Step{step("search", "nothing found")},
	}
	id, err := writer.WriteTrajectory(context.Background(), raw)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestWriteTrajectoryRejectsEmpty(t *testing.T) {
	writer := NewWriter(nil, nil, zap.NewNop())
	_, err := writer.WriteTrajectory(context.Background(), &memory.RawTrajectory{})
	require.ErrorIs(t, err, memory.ErrEmptyTrajectory)
}
