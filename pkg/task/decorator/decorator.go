// Package decorator wraps a task.Task with cross-cutting behaviours
// (timing, structured logging, retry) without altering its metadata or
// validation contract. Decorators are composed by per-type configuration,
// not by concrete sub-typing (§9 re-architecture note).
package decorator

import (
	"context"

	"github.com/smilemakc/mbflow/pkg/task"
)

// Constructor builds a decorator around an inner task.
type Constructor func(inner task.Task) task.Task

// Chain composes constructors into a single wrapping of base. The first
// entry in constructors is the outermost decorator; wrapping proceeds
// right-to-left so the last entry executes closest to the inner task. An
// empty slice returns base unwrapped.
func Chain(base task.Task, constructors ...Constructor) task.Task {
	wrapped := base
	for i := len(constructors) - 1; i >= 0; i-- {
		wrapped = constructors[i](wrapped)
	}
	return wrapped
}

// base embeds the shared plumbing every decorator needs: metadata
// passthrough and params validation delegation to the inner task.
type base struct {
	inner task.Task
}

func (b base) Metadata() task.Metadata { return b.inner.Metadata() }

func (b base) ValidateParams(params task.Params) error { return b.inner.ValidateParams(params) }

// runInner runs the inner task's whole lifecycle (hooks included) through
// task.Run with a fresh State. base has no Execute of its own; each concrete
// decorator defines Execute and calls runInner from it, so the decorator's
// logic observes the complete lifecycle rather than just the execute step.
func (b base) runInner(ctx context.Context, execCtx task.Context, params task.Params) (task.Result, error) {
	state := &task.State{}
	return task.Run(ctx, b.inner, execCtx, params, state)
}
