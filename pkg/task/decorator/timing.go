package decorator

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/smilemakc/mbflow/pkg/task"
)

// Timing records wall-clock time around the inner task's full run and
// injects _execution_time_seconds into a successful mapping result. On
// failure it logs the elapsed time and rethrows without suppressing.
type Timing struct {
	base
	logger *slog.Logger
}

// NewTiming returns a Constructor wrapping inner with the Timing decorator.
func NewTiming(logger *slog.Logger) Constructor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(inner task.Task) task.Task {
		return Timing{base: base{inner: inner}, logger: logger}
	}
}

func (t Timing) Execute(ctx context.Context, execCtx task.Context, params task.Params) (task.Result, error) {
	start := time.Now()
	result, err := t.runInner(ctx, execCtx, params)
	elapsed := time.Since(start)

	if err != nil {
		t.logger.Warn("task failed",
			"type", t.Metadata().Type,
			"elapsed_seconds", roundMillis(elapsed.Seconds()),
			"error", err,
		)
		return nil, err
	}

	if result != nil {
		result["_execution_time_seconds"] = roundMillis(elapsed.Seconds())
	}
	return result, nil
}

func roundMillis(seconds float64) float64 {
	return math.Round(seconds*1000) / 1000
}
