package graph

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/trajbank/internal/memory"
)

// recordingStore is a minimal Store that captures writes and answers queries
// from a canned row set.
type recordingStore struct {
	writes []struct {
		query  string
		params map[string]any
	}
	rows []map[string]any
	err  error
}

func (r *recordingStore) ExecuteQuery(context.Context, string, map[string]any) ([]map[string]any, error) {
	return r.rows, r.err
}

func (r *recordingStore) ExecuteWrite(_ context.Context, query string, params map[string]any) error {
	if r.err != nil {
		return r.err
	}
	r.writes = append(r.writes, struct {
		query  string
		params map[string]any
	}{query, params})
	return nil
}

func (r *recordingStore) InitSchema(context.Context) error { return nil }
func (r *recordingStore) Close(context.Context) error      { return nil }

func TestCreateTrajectory(t *testing.T) {
	store := &recordingStore{}
	traj, err := memory.NewTrajectory("inst-1", "owner/repo", memory.TaskBugFix, true, 4, "fixed it")
	require.NoError(t, err)

	require.NoError(t, CreateTrajectory(context.Background(), store, traj))
	require.Len(t, store.writes, 1)
	assert.True(t, strings.Contains(store.writes[0].query, "CREATE (t:Trajectory"))
	assert.Equal(t, traj.ID, store.writes[0].params["id"])
	assert.Equal(t, "bug_fix", store.writes[0].params["task_type"])
}

func TestCreateTrajectoryRejectsInvalid(t *testing.T) {
	store := &recordingStore{}
	err := CreateTrajectory(context.Background(), store, &memory.Trajectory{TaskType: memory.TaskBugFix})
	require.ErrorIs(t, err, memory.ErrEmptyID)
	assert.Empty(t, store.writes)
}

func TestCreateFragmentLinksTrajectory(t *testing.T) {
	store := &recordingStore{}
	frag, err := memory.NewFragment(0, 2, memory.FragmentErrorRecovery, "desc", []string{"edit"})
	require.NoError(t, err)

	require.NoError(t, CreateFragment(context.Background(), store, frag, "traj_abc"))
	require.Len(t, store.writes, 1)
	assert.Contains(t, store.writes[0].query, "HAS_FRAGMENT")
	assert.Equal(t, "traj_abc", store.writes[0].params["trajectory_id"])
	assert.Equal(t, "recovered", store.writes[0].params["outcome"])
}

func TestUpsertErrorPatternMergesOnType(t *testing.T) {
	store := &recordingStore{}
	pattern, err := memory.NewErrorPattern("ImportError", []string{"importerror"}, "trajectory", 1)
	require.NoError(t, err)

	require.NoError(t, UpsertErrorPattern(context.Background(), store, pattern))
	require.Len(t, store.writes, 1)
	q := store.writes[0].query
	assert.Contains(t, q, "MERGE (e:ErrorPattern {error_type: $error_type})")
	assert.Contains(t, q, "ON MATCH SET")
	assert.Contains(t, q, "e.frequency = e.frequency + 1")
}

func TestLinkQueries(t *testing.T) {
	store := &recordingStore{}

	require.NoError(t, LinkFragmentToError(context.Background(), store, "frag_a", "ImportError"))
	require.NoError(t, LinkMethodologyToError(context.Background(), store, "meth_a", "ImportError"))
	require.Len(t, store.writes, 2)
	assert.Contains(t, store.writes[0].query, "CAUSED_ERROR")
	assert.Contains(t, store.writes[1].query, "RESOLVED_BY")
}

func TestGetTrajectory(t *testing.T) {
	traj, err := memory.NewTrajectory("inst-1", "owner/repo", memory.TaskFeature, false, 2, "gave up")
	require.NoError(t, err)

	store := &recordingStore{rows: []map[string]any{{"t": traj.ToMap()}}}
	got, err := GetTrajectory(context.Background(), store, traj.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, traj.ID, got.ID)
	assert.Equal(t, memory.TaskFeature, got.TaskType)

	empty := &recordingStore{}
	got, err = GetTrajectory(context.Background(), empty, "traj_missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}
