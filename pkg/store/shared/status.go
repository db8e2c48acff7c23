package shared

import "github.com/smilemakc/mbflow/pkg/dag"

// ExternalStatus maps an internal WorkflowStatus to the producer-facing
// vocabulary: SUCCESS/PARTIAL_SUCCESS -> completado, FAILED -> fallido,
// RUNNING -> en_progreso.
func ExternalStatus(internal dag.WorkflowStatus) Status {
	switch internal {
	case dag.WorkflowStatusSuccess, dag.WorkflowStatusPartialSuccess:
		return StatusCompleted
	case dag.WorkflowStatusRunning:
		return StatusInProgress
	default:
		return StatusFailed
	}
}
