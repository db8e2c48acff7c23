// Package shared implements the Shared Store Adapter (C7): reading
// en_espera workflow rows, claiming them atomically, writing terminal
// status and results back, and translating both the native and legacy
// inbound definition wire formats.
package shared

import (
	"github.com/uptrace/bun"
)

// Status is the producer-facing (external) workflow status vocabulary.
type Status string

const (
	StatusPending    Status = "en_espera"
	StatusInProgress Status = "en_progreso"
	StatusCompleted  Status = "completado"
	StatusFailed     Status = "fallido"
)

// RowModel is the persisted SharedWorkflowRow.
type RowModel struct {
	bun.BaseModel `bun:"table:workflowtable,alias:w"`

	ID         string    `bun:"id,pk"`
	Name       string    `bun:"name,notnull"`
	Status     string    `bun:"status,notnull"`
	CreatedAt  string    `bun:"created_at,notnull"`
	UpdatedAt  string    `bun:"updated_at,notnull"`
	Definition string `bun:"definition"`
}
