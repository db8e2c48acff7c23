package builtin

import (
	"context"
	"time"

	"github.com/smilemakc/mbflow/pkg/task"
)

// NotifyMockParams is the validated params shape for notify_mock.
type NotifyMockParams struct {
	Channel string  `json:"channel" validate:"required"`
	Message string  `json:"message" validate:"required,min=1,max=500"`
	Delay   float64 `json:"delay" validate:"gte=0,lte=10"`
}

// NotifyMock implements the notify_mock task: a stand-in notification sink
// that simulates delivery latency via Delay and reports what would have
// been sent.
type NotifyMock struct{}

// NewNotifyMock returns a fresh notify_mock task instance.
func NewNotifyMock() task.Task {
	return &NotifyMock{}
}

func (n *NotifyMock) Metadata() task.Metadata {
	return task.Metadata{
		Type:        "notify_mock",
		DisplayName: "Mock Notification",
		Description: "Simulates delivering a message to a named channel.",
		Category:    "Notification",
		Icon:        "bell",
		ParamsSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"channel": map[string]any{"type": "string"},
				"message": map[string]any{"type": "string", "minLength": 1, "maxLength": 500},
				"delay":   map[string]any{"type": "number", "minimum": 0, "maximum": 10},
			},
			"required": []string{"channel", "message"},
		},
	}
}

func (n *NotifyMock) ValidateParams(params task.Params) error {
	var p NotifyMockParams
	return decodeParams(params, &p)
}

func (n *NotifyMock) Execute(ctx context.Context, _ task.Context, params task.Params) (task.Result, error) {
	var p NotifyMockParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	if p.Delay > 0 {
		timer := time.NewTimer(time.Duration(p.Delay * float64(time.Second)))
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, task.WrapExecutionError(ctx.Err())
		}
	}

	return task.Result{
		"sent":      true,
		"channel":   p.Channel,
		"message":   p.Message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}, nil
}
