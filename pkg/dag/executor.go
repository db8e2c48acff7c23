package dag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/smilemakc/mbflow/pkg/runner"
	"github.com/smilemakc/mbflow/pkg/task"
)

// RunStore is the subset of the Run Store (C6) the executor needs to
// persist WorkflowRun/NodeRun rows. Implemented by pkg/store/run.
type RunStore interface {
	SaveWorkflowRun(ctx context.Context, name string, status WorkflowStatus, startedAt time.Time) (string, error)
	UpdateWorkflowRun(ctx context.Context, workflowRunID string, status WorkflowStatus, summary map[string]NodeStatus, finishedAt time.Time) error
	CreateNodeRunRunning(ctx context.Context, workflowRunID, nodeID string, nodeType task.Type, startedAt time.Time) (string, error)
	UpdateNodeRunCompleted(ctx context.Context, nodeRunID string, status NodeStatus, finishedAt time.Time, result task.Result) error
}

// Executor is the DAG Executor (C5): a single-threaded, pass-based
// scheduler. It never runs independent branches in parallel — within a
// workflow, nodes always execute strictly sequentially (Non-goal: parallel
// execution of independent DAG branches).
type Executor struct {
	runner   *runner.Runner
	runStore RunStore
	logger   *slog.Logger
}

// New builds an Executor over r, persisting through store.
func New(r *runner.Runner, store RunStore, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{runner: r, runStore: store, logger: logger}
}

// Execute runs def to completion: dependency resolution, skip-on-failed-
// dependency propagation, context threading, and terminal-status
// reduction. It returns an error in two cases: def fails Definition.Validate
// (nothing is run or persisted), or a full pass makes no progress
// (CyclicOrBlockedDAG). Every per-node failure is captured in the returned
// Result instead of propagating.
func (e *Executor) Execute(ctx context.Context, def Definition) (Result, error) {
	if err := def.Validate(); err != nil {
		return Result{}, err
	}

	startedAt := time.Now()
	workflowRunID, err := e.runStore.SaveWorkflowRun(ctx, def.Name, WorkflowStatusRunning, startedAt)
	if err != nil {
		e.logger.Error("failed to create workflow run record", "workflow", def.Name, "error", err)
	}

	pending := make(map[string]Node, len(def.Nodes))
	for _, n := range def.Nodes {
		pending[n.ID] = n
	}
	executed := make(map[string]struct{}, len(def.Nodes))
	statuses := make(map[string]NodeStatus, len(def.Nodes))
	execCtx := task.Context{}
	results := make(map[string]task.Result, len(def.Nodes))
	var nodeRecords []NodeRecord

	for len(pending) > 0 {
		progress := false

		for _, n := range def.Nodes {
			if _, done := executed[n.ID]; done {
				continue
			}
			if _, stillPending := pending[n.ID]; !stillPending {
				continue
			}

			if failedDeps := failedDependencies(n, statuses); len(failedDeps) > 0 {
				record := e.skipNode(n, failedDeps)
				statuses[n.ID] = NodeStatusSkipped
				results[n.ID] = record.Result
				execCtx[n.ID] = record.Result
				nodeRecords = append(nodeRecords, record)
				delete(pending, n.ID)
				executed[n.ID] = struct{}{}
				progress = true
				continue
			}

			if !dependenciesSatisfied(n, executed) {
				continue
			}

			record := e.runNode(ctx, workflowRunID, def, n, execCtx)
			statuses[n.ID] = record.Status
			results[n.ID] = record.Result
			execCtx[n.ID] = record.Result
			nodeRecords = append(nodeRecords, record)
			delete(pending, n.ID)
			executed[n.ID] = struct{}{}
			progress = true
		}

		if !progress {
			pendingIDs := make([]string, 0, len(pending))
			for id := range pending {
				pendingIDs = append(pendingIDs, id)
			}
			err := task.NewCyclicOrBlockedDAG(pendingIDs)
			e.finaliseWorkflowRun(ctx, workflowRunID, def.Name, WorkflowStatusFailed, statuses, time.Now())
			return Result{}, err
		}
	}

	finishedAt := time.Now()
	status := reduceStatus(statuses)
	e.finaliseWorkflowRun(ctx, workflowRunID, def.Name, status, statuses, finishedAt)

	return Result{
		WorkflowName: def.Name,
		Status:       status,
		Results:      results,
		Nodes:        nodeRecords,
		StartedAt:    startedAt,
		FinishedAt:   finishedAt,
	}, nil
}

// failedDependencies returns every dependency of n whose recorded status is
// FAILED, in depends_on order; it is empty when none has failed.
func failedDependencies(n Node, statuses map[string]NodeStatus) []string {
	var failed []string
	for _, dep := range n.DependsOn {
		if statuses[dep] == NodeStatusFailed {
			failed = append(failed, dep)
		}
	}
	return failed
}

// dependenciesSatisfied reports whether every id in n.DependsOn has
// already executed (status recorded, regardless of outcome).
func dependenciesSatisfied(n Node, executed map[string]struct{}) bool {
	for _, dep := range n.DependsOn {
		if _, ok := executed[dep]; !ok {
			return false
		}
	}
	return true
}

func (e *Executor) skipNode(n Node, failedDeps []string) NodeRecord {
	now := time.Now()
	result := task.Result{
		"status": "SKIPPED",
		"reason": fmt.Sprintf("Dependencia fallida: [%s]", strings.Join(failedDeps, ", ")),
	}
	return NodeRecord{
		NodeID:     n.ID,
		Type:       n.Type,
		Status:     NodeStatusSkipped,
		Result:     result,
		StartedAt:  now,
		FinishedAt: now,
	}
}

func (e *Executor) runNode(ctx context.Context, workflowRunID string, def Definition, n Node, execCtx task.Context) NodeRecord {
	startedAt := time.Now()

	nodeRunID, err := e.runStore.CreateNodeRunRunning(ctx, workflowRunID, n.ID, n.Type, startedAt)
	if err != nil {
		e.logger.Error("failed to create node run placeholder", "node", n.ID, "error", err)
	}

	envelope := e.runner.Run(ctx, runner.Command{
		RunID:   def.ID,
		NodeKey: n.ID,
		Type:    n.Type,
		Params:  n.Params,
	}, execCtx.Clone())

	finishedAt := time.Now()
	status := e.statusOf(envelope)
	result := envelope.Result
	if status == NodeStatusFailed && result == nil {
		result = task.Result{"success": false, "error": envelope.Error, "error_type": "TaskExecutionError"}
	}

	if err := e.runStore.UpdateNodeRunCompleted(ctx, nodeRunID, status, finishedAt, result); err != nil {
		e.logger.Error("failed to finalise node run", "node", n.ID, "error", err)
	}

	return NodeRecord{
		NodeID:     n.ID,
		Type:       n.Type,
		Status:     status,
		Result:     result,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
	}
}

// statusOf determines node status per §4.5: SUCCESS iff the runner
// returned transport SUCCESS and the result is either not a mapping or its
// success field is not literally false.
func (e *Executor) statusOf(envelope runner.Envelope) NodeStatus {
	if envelope.Status != runner.EnvelopeSuccess {
		return NodeStatusFailed
	}
	if envelope.Result.IsGracefulFailure() {
		return NodeStatusFailed
	}
	return NodeStatusSuccess
}

func reduceStatus(statuses map[string]NodeStatus) WorkflowStatus {
	allSuccess := true
	anySuccess := false
	for _, s := range statuses {
		if s == NodeStatusSuccess {
			anySuccess = true
		} else {
			allSuccess = false
		}
	}
	switch {
	case allSuccess:
		return WorkflowStatusSuccess
	case anySuccess:
		return WorkflowStatusPartialSuccess
	default:
		return WorkflowStatusFailed
	}
}

func (e *Executor) finaliseWorkflowRun(ctx context.Context, workflowRunID, name string, status WorkflowStatus, statuses map[string]NodeStatus, finishedAt time.Time) {
	if workflowRunID == "" {
		return
	}
	if err := e.runStore.UpdateWorkflowRun(ctx, workflowRunID, status, statuses, finishedAt); err != nil {
		e.logger.Error("failed to finalise workflow run", "workflow", name, "error", err)
	}
}
