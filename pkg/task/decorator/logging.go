package decorator

import (
	"context"
	"log/slog"
	"strings"

	"github.com/smilemakc/mbflow/pkg/task"
)

const sanitisedPlaceholder = "***REDACTED***"

var sensitiveKeyFragments = []string{"password", "token", "api_key", "secret", "auth"}

// DefaultTruncateLength bounds string fields logged from a result, per the
// Logging decorator's truncated-view requirement.
const DefaultTruncateLength = 200

// Logging logs sanitised params before a run, a truncated result view on
// success, and error detail on failure, then rethrows. Any params key whose
// name contains a sensitive fragment is replaced with a fixed placeholder.
type Logging struct {
	base
	logger          *slog.Logger
	truncateLength  int
}

// NewLogging returns a Constructor wrapping inner with the Logging decorator.
func NewLogging(logger *slog.Logger) Constructor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(inner task.Task) task.Task {
		return Logging{base: base{inner: inner}, logger: logger, truncateLength: DefaultTruncateLength}
	}
}

func (l Logging) Execute(ctx context.Context, execCtx task.Context, params task.Params) (task.Result, error) {
	l.logger.Debug("task starting", "type", l.Metadata().Type, "params", sanitiseParams(params))

	result, err := l.runInner(ctx, execCtx, params)
	if err != nil {
		kind, _ := task.KindOf(err)
		l.logger.Error("task failed", "type", l.Metadata().Type, "error_type", kind, "error", err.Error())
		return nil, err
	}

	l.logger.Debug("task completed", "type", l.Metadata().Type, "result", truncateResult(result, l.truncateLength))
	return result, nil
}

// sanitiseParams returns a copy of params with sensitive-looking keys
// replaced by a fixed placeholder.
func sanitiseParams(params task.Params) task.Params {
	sanitised := make(task.Params, len(params))
	for k, v := range params {
		if isSensitiveKey(k) {
			sanitised[k] = sanitisedPlaceholder
			continue
		}
		sanitised[k] = v
	}
	return sanitised
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, fragment := range sensitiveKeyFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// truncateResult returns a copy of result with long string fields
// truncated to maxLen characters, ellipsis-suffixed.
func truncateResult(result task.Result, maxLen int) task.Result {
	if result == nil {
		return nil
	}
	truncated := make(task.Result, len(result))
	for k, v := range result {
		if s, ok := v.(string); ok && len(s) > maxLen {
			truncated[k] = s[:maxLen] + "..."
			continue
		}
		truncated[k] = v
	}
	return truncated
}
