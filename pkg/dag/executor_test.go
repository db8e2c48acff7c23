package dag

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/mbflow/pkg/runner"
	"github.com/smilemakc/mbflow/pkg/task"
	"github.com/smilemakc/mbflow/pkg/task/decorator"
)

// stubRunStore records calls without persisting anything, standing in for
// pkg/store/run in executor tests.
type stubRunStore struct {
	nodeRunSeq int
}

func (s *stubRunStore) SaveWorkflowRun(context.Context, string, WorkflowStatus, time.Time) (string, error) {
	return "run-1", nil
}

func (s *stubRunStore) UpdateWorkflowRun(context.Context, string, WorkflowStatus, map[string]NodeStatus, time.Time) error {
	return nil
}

func (s *stubRunStore) CreateNodeRunRunning(context.Context, string, string, task.Type, time.Time) (string, error) {
	s.nodeRunSeq++
	return "node-run", nil
}

func (s *stubRunStore) UpdateNodeRunCompleted(context.Context, string, NodeStatus, time.Time, task.Result) error {
	return nil
}

// outcomeTask returns the same fixed result/error on every call and, when
// calls is set, counts its invocations for assertions that a task never ran.
type outcomeTask struct {
	typ     task.Type
	result  task.Result
	err     error
	calls   *int
}

func (o *outcomeTask) Metadata() task.Metadata { return task.Metadata{Type: o.typ} }
func (o *outcomeTask) ValidateParams(task.Params) error { return nil }
func (o *outcomeTask) Execute(context.Context, task.Context, task.Params) (task.Result, error) {
	if o.calls != nil {
		*o.calls++
	}
	return o.result, o.err
}

func newExecutor(t *testing.T, registry *task.Registry) (*Executor, *stubRunStore) {
	t.Helper()
	store := &stubRunStore{}
	r := runner.New(registry, nil)
	return New(r, store, nil), store
}

func registerOutcome(t *testing.T, registry *task.Registry, typ task.Type, result task.Result, err error, calls *int) {
	t.Helper()
	require.NoError(t, registry.Register(typ, func() task.Task {
		return &outcomeTask{typ: typ, result: result, err: err, calls: calls}
	}))
}

func TestExecutor_HappyLinearPath(t *testing.T) {
	registry := task.NewRegistry()
	registerOutcome(t, registry, "a_type", task.Result{"success": true, "status_code": float64(200)}, nil, nil)
	registerOutcome(t, registry, "b_type", task.Result{"success": true}, nil, nil)
	executor, _ := newExecutor(t, registry)

	def := Definition{
		Name: "linear",
		Nodes: []Node{
			{ID: "A", Type: "a_type"},
			{ID: "B", Type: "b_type", DependsOn: []string{"A"}},
		},
	}

	result, err := executor.Execute(context.Background(), def)

	require.NoError(t, err)
	assert.Equal(t, WorkflowStatusSuccess, result.Status)
	assert.Equal(t, NodeStatusSuccess, result.Summary()["A"])
	assert.Equal(t, NodeStatusSuccess, result.Summary()["B"])
}

func TestExecutor_FailedLeafSkipsDependents(t *testing.T) {
	registry := task.NewRegistry()
	registerOutcome(t, registry, "v_type", nil, task.WrapExecutionError(assert.AnError), nil)
	var nCalls int
	registerOutcome(t, registry, "n_type", task.Result{"success": true}, nil, &nCalls)
	executor, _ := newExecutor(t, registry)

	def := Definition{
		Name: "fail-skip",
		Nodes: []Node{
			{ID: "V", Type: "v_type"},
			{ID: "N", Type: "n_type", DependsOn: []string{"V"}},
		},
	}

	result, err := executor.Execute(context.Background(), def)

	require.NoError(t, err)
	assert.Equal(t, NodeStatusFailed, result.Summary()["V"])
	assert.Equal(t, NodeStatusSkipped, result.Summary()["N"])
	assert.Equal(t, 0, nCalls, "a skipped node must never invoke Execute")
	assert.Contains(t, result.Results["N"]["reason"], "V")
}

func TestExecutor_PartialSuccessAcrossIndependentRoots(t *testing.T) {
	registry := task.NewRegistry()
	registerOutcome(t, registry, "ok_type", task.Result{"success": true}, nil, nil)
	registerOutcome(t, registry, "fail_type", nil, task.WrapExecutionError(assert.AnError), nil)
	executor, _ := newExecutor(t, registry)

	def := Definition{
		Name: "partial",
		Nodes: []Node{
			{ID: "R1", Type: "ok_type"},
			{ID: "R2", Type: "ok_type"},
			{ID: "R3", Type: "fail_type"},
		},
	}

	result, err := executor.Execute(context.Background(), def)

	require.NoError(t, err)
	assert.Equal(t, WorkflowStatusPartialSuccess, result.Status)
}

func TestExecutor_AllFailedReducesToFailed(t *testing.T) {
	registry := task.NewRegistry()
	registerOutcome(t, registry, "fail_type", nil, task.WrapExecutionError(assert.AnError), nil)
	executor, _ := newExecutor(t, registry)

	def := Definition{
		Name:  "all-fail",
		Nodes: []Node{{ID: "R1", Type: "fail_type"}},
	}

	result, err := executor.Execute(context.Background(), def)

	require.NoError(t, err)
	assert.Equal(t, WorkflowStatusFailed, result.Status)
}

func TestExecutor_CyclicDependencyNeverExecutesAnyTask(t *testing.T) {
	registry := task.NewRegistry()
	var calls int
	registerOutcome(t, registry, "cyc_type", task.Result{"success": true}, nil, &calls)
	executor, _ := newExecutor(t, registry)

	def := Definition{
		Name: "cycle",
		Nodes: []Node{
			{ID: "A", Type: "cyc_type", DependsOn: []string{"B"}},
			{ID: "B", Type: "cyc_type", DependsOn: []string{"A"}},
		},
	}

	_, err := executor.Execute(context.Background(), def)

	require.Error(t, err)
	kind, ok := task.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, task.ErrorKindCyclicOrBlockedDAG, kind)
	assert.Equal(t, 0, calls, "no node in a blocked pass should ever execute")
}

func TestExecutor_RetryExhaustionFailsNodeAfterMaxRetriesPlusOne(t *testing.T) {
	registry := task.NewRegistry()
	var calls int
	require.NoError(t, registry.Register("flaky", func() task.Task {
		return &outcomeTask{typ: "flaky", err: task.WrapExecutionError(assert.AnError), calls: &calls}
	}))

	r := runner.New(registry, runner.DecoratorConfig{
		"flaky": {decorator.NewRetry(decorator.RetryConfig{MaxRetries: 2, DelaySeconds: 0.001, BackoffMultiplier: 2})},
	})
	executor := New(r, &stubRunStore{}, nil)

	def := Definition{Name: "retry", Nodes: []Node{{ID: "R", Type: "flaky"}}}

	result, err := executor.Execute(context.Background(), def)

	require.NoError(t, err)
	assert.Equal(t, NodeStatusFailed, result.Summary()["R"])
	assert.Equal(t, 3, calls)
}

func TestExecutor_ContextThreadingOnlyCompletedNodesVisible(t *testing.T) {
	registry := task.NewRegistry()
	require.NoError(t, registry.Register("observe", func() task.Task {
		return &observingTask{}
	}))
	require.NoError(t, registry.Register("seed", func() task.Task {
		return &outcomeTask{typ: "seed", result: task.Result{"success": true, "value": "from-seed"}}
	}))
	executor, _ := newExecutor(t, registry)

	def := Definition{
		Name: "context",
		Nodes: []Node{
			{ID: "Seed", Type: "seed"},
			{ID: "Observer", Type: "observe", DependsOn: []string{"Seed"}},
		},
	}

	result, err := executor.Execute(context.Background(), def)

	require.NoError(t, err)
	assert.Equal(t, []string{"Seed"}, result.Results["Observer"]["seen_keys"])
}

type observingTask struct{}

func (o *observingTask) Metadata() task.Metadata { return task.Metadata{Type: "observe"} }
func (o *observingTask) ValidateParams(task.Params) error { return nil }
func (o *observingTask) Execute(_ context.Context, execCtx task.Context, _ task.Params) (task.Result, error) {
	keys := make([]string, 0, len(execCtx))
	for k := range execCtx {
		keys = append(keys, k)
	}
	return task.Result{"success": true, "seen_keys": keys}, nil
}
