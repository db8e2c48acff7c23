package run

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/mbflow/pkg/dag"
	"github.com/smilemakc/mbflow/pkg/task"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.db")
	s, err := Open(context.Background(), path, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_SaveAndUpdateWorkflowRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	startedAt := time.Now().UTC()

	id, err := s.SaveWorkflowRun(ctx, "my-workflow", dag.WorkflowStatusRunning, startedAt)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	finishedAt := startedAt.Add(time.Second)
	summary := map[string]dag.NodeStatus{"A": dag.NodeStatusSuccess}
	require.NoError(t, s.UpdateWorkflowRun(ctx, id, dag.WorkflowStatusSuccess, summary, finishedAt))

	var row WorkflowRunModel
	require.NoError(t, s.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx))
	assert.Equal(t, string(dag.WorkflowStatusSuccess), row.Status)
	assert.Contains(t, row.ResultSummary, "SUCCESS")
}

func TestStore_CreateAndUpdateNodeRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	startedAt := time.Now().UTC()

	workflowRunID, err := s.SaveWorkflowRun(ctx, "wf", dag.WorkflowStatusRunning, startedAt)
	require.NoError(t, err)

	nodeRunID, err := s.CreateNodeRunRunning(ctx, workflowRunID, "A", "http_get", startedAt)
	require.NoError(t, err)
	assert.NotEmpty(t, nodeRunID)

	result := task.Result{"success": true, "status_code": float64(200)}
	finishedAt := startedAt.Add(500 * time.Millisecond)
	require.NoError(t, s.UpdateNodeRunCompleted(ctx, nodeRunID, dag.NodeStatusSuccess, finishedAt, result))

	var row NodeRunModel
	require.NoError(t, s.db.NewSelect().Model(&row).Where("id = ?", nodeRunID).Scan(ctx))
	assert.Equal(t, string(dag.NodeStatusSuccess), row.Status)
	assert.Contains(t, row.ResultData, "status_code")
}

func TestStore_UpdateNodeRunCompleted_EmptyIDIsNoop(t *testing.T) {
	s := openTestStore(t)
	err := s.UpdateNodeRunCompleted(context.Background(), "", dag.NodeStatusFailed, time.Now(), nil)
	assert.NoError(t, err)
}

func TestStore_UpdateWorkflowRun_UnknownIDFails(t *testing.T) {
	s := openTestStore(t)
	err := s.UpdateWorkflowRun(context.Background(), "does-not-exist", dag.WorkflowStatusFailed, nil, time.Now())
	require.Error(t, err)
	kind, ok := task.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, task.ErrorKindStoreError, kind)
}
