package task

import (
	"context"
	"log/slog"
)

// State tracks the execution lifecycle of a single task instance.
type State struct {
	Started   bool
	Completed bool
	Failed    bool
	LastError error
}

// Run is the template method every task obeys. It is a free function over
// the Task capability plus whichever optional hooks the concrete task
// implements, rather than a method on a shared base type (§9 re-architecture
// note: behavioural contract, not structural inheritance).
//
// Steps: before (best-effort) -> validate_params -> execute -> after
// (best-effort) on success; on any validation/execution error, invoke
// on_error and return its structured Result if it converts the failure,
// otherwise propagate the original error.
func Run(ctx context.Context, t Task, execCtx Context, params Params, state *State) (Result, error) {
	state.Started = true

	if hook, ok := t.(BeforeHook); ok {
		if err := hook.Before(ctx, execCtx, params); err != nil {
			slog.Default().Warn("task before-hook failed", "type", t.Metadata().Type, "error", err)
		}
	}

	result, err := runBody(ctx, t, execCtx, params)
	if err != nil {
		state.Failed = true
		state.LastError = err

		if hook, ok := t.(ErrorHook); ok {
			if recovered, converted := hook.OnError(ctx, err, execCtx, params); converted {
				return recovered, nil
			}
		}
		return nil, err
	}

	if hook, ok := t.(AfterHook); ok {
		if hookErr := hook.After(result); hookErr != nil {
			slog.Default().Warn("task after-hook failed", "type", t.Metadata().Type, "error", hookErr)
		}
	}
	state.Completed = true
	return result, nil
}

func runBody(ctx context.Context, t Task, execCtx Context, params Params) (Result, error) {
	if err := t.ValidateParams(params); err != nil {
		return nil, err
	}
	result, err := t.Execute(ctx, execCtx, params)
	if err != nil {
		return nil, err
	}
	return result, nil
}
