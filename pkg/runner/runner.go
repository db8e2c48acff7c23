// Package runner implements the Task Runner (C4): given a TaskCommand and a
// shared execution context, it resolves the task from the registry, applies
// the configured decorator chain, invokes the task lifecycle, and returns a
// uniform result envelope. It has no retry loop of its own — retry comes
// from the Retry decorator (pkg/task/decorator), which Run wraps around the
// task when the per-type decorator configuration lists it.
package runner

import (
	"context"

	"github.com/smilemakc/mbflow/pkg/task"
	"github.com/smilemakc/mbflow/pkg/task/decorator"
)

// Command is the immutable unit of work dispatched to a task.
type Command struct {
	RunID    string
	NodeKey  string
	Type     task.Type
	Params   task.Params
	Metadata map[string]any
}

// EnvelopeStatus is the runner's transport-level outcome, distinct from the
// DAG executor's NodeStatus (§4.5 distinguishes transport SUCCESS from a
// graceful-failure Result that the executor still treats as FAILED).
type EnvelopeStatus string

const (
	EnvelopeSuccess EnvelopeStatus = "SUCCESS"
	EnvelopeFailed  EnvelopeStatus = "FAILED"
)

// Envelope is the uniform result the runner returns for every command.
type Envelope struct {
	Status  EnvelopeStatus
	RunID   string
	NodeKey string
	Result  task.Result
	Error   string
}

// DecoratorConfig maps a task type to its ordered decorator constructors.
// The first entry is outermost; an absent or empty entry means no wrapping.
type DecoratorConfig map[task.Type][]decorator.Constructor

// Runner resolves, decorates, and executes commands against a Registry.
type Runner struct {
	registry   *task.Registry
	decorators DecoratorConfig
}

// New builds a Runner over registry with the given per-type decorator chain.
func New(registry *task.Registry, decorators DecoratorConfig) *Runner {
	if decorators == nil {
		decorators = DecoratorConfig{}
	}
	return &Runner{registry: registry, decorators: decorators}
}

// Run resolves cmd.Type, applies its decorator chain, and executes the
// task's full lifecycle. It never returns an error itself: any failure is
// carried inside the returned Envelope, matching the source's "runner never
// throws" contract.
func (r *Runner) Run(ctx context.Context, cmd Command, execCtx task.Context) Envelope {
	if execCtx == nil {
		execCtx = task.Context{}
	}

	base, err := r.registry.Create(cmd.Type)
	if err != nil {
		return Envelope{
			Status:  EnvelopeFailed,
			RunID:   cmd.RunID,
			NodeKey: cmd.NodeKey,
			Error:   err.Error(),
		}
	}

	wrapped := decorator.Chain(base, r.decorators[cmd.Type]...)

	state := &task.State{}
	result, runErr := task.Run(ctx, wrapped, execCtx, cmd.Params, state)
	if runErr != nil {
		return Envelope{
			Status:  EnvelopeFailed,
			RunID:   cmd.RunID,
			NodeKey: cmd.NodeKey,
			Error:   runErr.Error(),
		}
	}

	return Envelope{
		Status:  EnvelopeSuccess,
		RunID:   cmd.RunID,
		NodeKey: cmd.NodeKey,
		Result:  result,
	}
}
