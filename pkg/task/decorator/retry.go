package decorator

import (
	"context"
	"math"
	"time"

	"github.com/smilemakc/mbflow/pkg/task"
)

// RetryConfig parameterises the Retry decorator.
type RetryConfig struct {
	MaxRetries        int
	DelaySeconds      float64
	BackoffMultiplier float64
}

// DefaultRetryConfig matches the spec's stated defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, DelaySeconds: 1.0, BackoffMultiplier: 2.0}
}

// Retry re-invokes the inner task's full run on a thrown error, waiting
// DelaySeconds * BackoffMultiplier^(attempt-1) between attempts, up to
// MaxRetries additional attempts beyond the first. It never retries a
// graceful failure (a success:false Result returned without error) because
// that path never reaches the error branch, and it returns an InvalidParams
// error at once without retrying.
type Retry struct {
	base
	cfg RetryConfig
}

// NewRetry returns a Constructor wrapping inner with the Retry decorator.
func NewRetry(cfg RetryConfig) Constructor {
	return func(inner task.Task) task.Task {
		return Retry{base: base{inner: inner}, cfg: cfg}
	}
}

func (r Retry) Execute(ctx context.Context, execCtx task.Context, params task.Params) (task.Result, error) {
	var lastErr error

	for attempt := 1; attempt <= r.cfg.MaxRetries+1; attempt++ {
		result, err := r.runInner(ctx, execCtx, params)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if kind, ok := task.KindOf(err); ok && kind == task.ErrorKindInvalidParams {
			break
		}
		if attempt > r.cfg.MaxRetries {
			break
		}

		delay := r.delayFor(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, lastErr
}

// delayFor returns the wait before retrying after the given 1-indexed
// attempt: delay_seconds * backoff_multiplier^(attempt-1).
func (r Retry) delayFor(attempt int) time.Duration {
	seconds := r.cfg.DelaySeconds * math.Pow(r.cfg.BackoffMultiplier, float64(attempt-1))
	return time.Duration(seconds * float64(time.Second))
}
