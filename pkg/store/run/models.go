// Package run implements the Run Store (C6): persistence of workflow-run
// and node-run rows, backed by bun over an embedded SQLite file (see
// SPEC_FULL.md §4.6). Schema is created on first use if absent; there is no
// migration framework.
package run

import (
	"time"

	"github.com/uptrace/bun"
)

// WorkflowRunModel is the persisted WorkflowRun row.
type WorkflowRunModel struct {
	bun.BaseModel `bun:"table:workflowrun,alias:wr"`

	ID             string    `bun:"id,pk"`
	Name           string    `bun:"name,notnull"`
	Status         string    `bun:"status,notnull"`
	StartedAt      time.Time `bun:"started_at,notnull"`
	FinishedAt     time.Time `bun:"finished_at,nullzero"`
	DurationSecond float64   `bun:"duration_seconds"`
	ResultSummary  string    `bun:"result_summary"`
}

// NodeRunModel is the persisted NodeRun row.
type NodeRunModel struct {
	bun.BaseModel `bun:"table:noderun,alias:nr"`

	ID             string    `bun:"id,pk"`
	WorkflowRunID  string    `bun:"workflow_run_id,notnull"`
	NodeID         string    `bun:"node_id,notnull"`
	Type           string    `bun:"type,notnull"`
	Status         string    `bun:"status,notnull"`
	StartedAt      time.Time `bun:"started_at,notnull"`
	FinishedAt     time.Time `bun:"finished_at,nullzero"`
	DurationSecond float64   `bun:"duration_seconds"`
	ResultData     string    `bun:"result_data"`
}
