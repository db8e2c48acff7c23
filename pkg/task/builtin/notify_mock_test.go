package builtin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/mbflow/pkg/task"
)

func TestNotifyMock_SendsImmediatelyWithoutDelay(t *testing.T) {
	n := NewNotifyMock()

	result, err := n.Execute(context.Background(), task.Context{}, task.Params{
		"channel": "ops",
		"message": "hello",
	})

	require.NoError(t, err)
	assert.Equal(t, true, result["sent"])
	assert.Equal(t, "ops", result["channel"])
	assert.Equal(t, "hello", result["message"])
	_, err = time.Parse(time.RFC3339, result["timestamp"].(string))
	assert.NoError(t, err)
}

func TestNotifyMock_HonoursDelay(t *testing.T) {
	n := NewNotifyMock()
	start := time.Now()

	_, err := n.Execute(context.Background(), task.Context{}, task.Params{
		"channel": "ops",
		"message": "hello",
		"delay":   0.05,
	})

	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestNotifyMock_ContextCancellationDuringDelayAborts(t *testing.T) {
	n := NewNotifyMock()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := n.Execute(ctx, task.Context{}, task.Params{
		"channel": "ops",
		"message": "hello",
		"delay":   5,
	})

	require.Error(t, err)
}

func TestNotifyMock_RejectsDelayAboveBound(t *testing.T) {
	n := NewNotifyMock()
	err := n.ValidateParams(task.Params{"channel": "ops", "message": "hi", "delay": 11})

	require.Error(t, err)
	kind, ok := task.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, task.ErrorKindInvalidParams, kind)
}

func TestNotifyMock_RejectsEmptyMessage(t *testing.T) {
	n := NewNotifyMock()
	err := n.ValidateParams(task.Params{"channel": "ops", "message": ""})

	require.Error(t, err)
}
