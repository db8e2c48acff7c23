// Package dag implements the DAG Executor (C5): dependency resolution,
// sequential pass-based scheduling, skip-on-failed-dependency propagation,
// context threading, and terminal-status reduction.
package dag

import (
	"time"

	"github.com/smilemakc/mbflow/pkg/task"
)

// NodeStatus is the per-node terminal or in-flight status.
type NodeStatus string

const (
	NodeStatusPending NodeStatus = "PENDING"
	NodeStatusRunning NodeStatus = "RUNNING"
	NodeStatusSuccess NodeStatus = "SUCCESS"
	NodeStatusFailed  NodeStatus = "FAILED"
	NodeStatusSkipped NodeStatus = "SKIPPED"
)

// WorkflowStatus is the internal, pre-translation workflow outcome.
type WorkflowStatus string

const (
	WorkflowStatusRunning        WorkflowStatus = "RUNNING"
	WorkflowStatusSuccess        WorkflowStatus = "SUCCESS"
	WorkflowStatusPartialSuccess WorkflowStatus = "PARTIAL_SUCCESS"
	WorkflowStatusFailed         WorkflowStatus = "FAILED"
)

// Node is a WorkflowNode: a position in the workflow with a workflow-local
// id, a task type, params, and an ordered list of dependency ids.
type Node struct {
	ID        string
	Type      task.Type
	Params    task.Params
	DependsOn []string
}

// Definition is a WorkflowDefinition: a named, ordered sequence of nodes.
// ID is the optional external identifier carried from the shared store.
type Definition struct {
	Name  string
	ID    string
	Nodes []Node
}

// NodeRecord captures one node's execution for persistence and for the
// WorkflowResult returned to the caller.
type NodeRecord struct {
	NodeID     string
	Type       task.Type
	Status     NodeStatus
	Result     task.Result
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration is FinishedAt - StartedAt in seconds.
func (n NodeRecord) Duration() float64 {
	return n.FinishedAt.Sub(n.StartedAt).Seconds()
}

// Result is the WorkflowResult: the executor's output for one run.
type Result struct {
	WorkflowName string
	Status       WorkflowStatus
	Results      map[string]task.Result
	Nodes        []NodeRecord
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Duration is FinishedAt - StartedAt in seconds.
func (r Result) Duration() float64 {
	return r.FinishedAt.Sub(r.StartedAt).Seconds()
}

// Summary reduces Nodes into the {node_id: status} map persisted alongside
// the WorkflowRun row.
func (r Result) Summary() map[string]NodeStatus {
	summary := make(map[string]NodeStatus, len(r.Nodes))
	for _, n := range r.Nodes {
		summary[n.NodeID] = n.Status
	}
	return summary
}

// Validate checks the WorkflowDefinition invariant: every depends_on id
// names another node in the same definition, ids are unique, and (by
// construction of the pass-based executor) cycles surface as a scheduling
// error rather than here — this only catches dangling references.
func (d Definition) Validate() error {
	seen := make(map[string]struct{}, len(d.Nodes))
	for _, n := range d.Nodes {
		if _, dup := seen[n.ID]; dup {
			return task.NewInvalidParams("duplicate node id", n.ID)
		}
		seen[n.ID] = struct{}{}
	}
	for _, n := range d.Nodes {
		for _, dep := range n.DependsOn {
			if _, ok := seen[dep]; !ok {
				return task.NewInvalidParams("depends_on references unknown node", n.ID, dep)
			}
		}
	}
	return nil
}
