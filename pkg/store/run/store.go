package run

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/extra/bundebug"

	_ "modernc.org/sqlite"

	"github.com/smilemakc/mbflow/pkg/dag"
	"github.com/smilemakc/mbflow/pkg/task"
)

// Store is the Run Store (C6): it persists WorkflowRun and NodeRun rows to
// an embedded SQLite file through bun, creating its own schema on first use.
type Store struct {
	db *bun.DB
}

// Open opens (creating if absent) the SQLite file at path and ensures the
// workflowrun/noderun tables exist.
func Open(ctx context.Context, path string, debug bool) (*Store, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open run store %q: %w", path, err)
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = sqldb.Close()
		return nil, err
	}
	return s, nil
}

// Close disposes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*WorkflowRunModel)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create workflowrun table: %w", err)
	}
	if _, err := s.db.NewCreateTable().Model((*NodeRunModel)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create noderun table: %w", err)
	}
	return nil
}

// SaveWorkflowRun inserts a new WorkflowRun row and returns its id.
func (s *Store) SaveWorkflowRun(ctx context.Context, name string, status dag.WorkflowStatus, startedAt time.Time) (string, error) {
	row := &WorkflowRunModel{
		ID:        uuid.NewString(),
		Name:      name,
		Status:    string(status),
		StartedAt: startedAt,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return "", task.NewStoreError(fmt.Errorf("save workflow run: %w", err))
	}
	return row.ID, nil
}

// UpdateWorkflowRun finalises a WorkflowRun row with its terminal status,
// result summary, and duration.
func (s *Store) UpdateWorkflowRun(ctx context.Context, workflowRunID string, status dag.WorkflowStatus, summary map[string]dag.NodeStatus, finishedAt time.Time) error {
	var existing WorkflowRunModel
	if err := s.db.NewSelect().Model(&existing).Where("id = ?", workflowRunID).Scan(ctx); err != nil {
		return task.NewStoreError(fmt.Errorf("load workflow run %s: %w", workflowRunID, err))
	}

	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return task.NewStoreError(fmt.Errorf("marshal result summary: %w", err))
	}

	existing.Status = string(status)
	existing.FinishedAt = finishedAt
	existing.DurationSecond = finishedAt.Sub(existing.StartedAt).Seconds()
	existing.ResultSummary = string(summaryJSON)

	if _, err := s.db.NewUpdate().Model(&existing).WherePK().Exec(ctx); err != nil {
		return task.NewStoreError(fmt.Errorf("update workflow run %s: %w", workflowRunID, err))
	}
	return nil
}

// CreateNodeRunRunning inserts a placeholder NodeRun row with status
// RUNNING and returns its id.
func (s *Store) CreateNodeRunRunning(ctx context.Context, workflowRunID, nodeID string, nodeType task.Type, startedAt time.Time) (string, error) {
	row := &NodeRunModel{
		ID:            uuid.NewString(),
		WorkflowRunID: workflowRunID,
		NodeID:        nodeID,
		Type:          string(nodeType),
		Status:        string(dag.NodeStatusRunning),
		StartedAt:     startedAt,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return "", task.NewStoreError(fmt.Errorf("create node run: %w", err))
	}
	return row.ID, nil
}

// UpdateNodeRunCompleted finalises a RUNNING NodeRun row.
func (s *Store) UpdateNodeRunCompleted(ctx context.Context, nodeRunID string, status dag.NodeStatus, finishedAt time.Time, result task.Result) error {
	if nodeRunID == "" {
		return nil
	}

	var existing NodeRunModel
	if err := s.db.NewSelect().Model(&existing).Where("id = ?", nodeRunID).Scan(ctx); err != nil {
		return task.NewStoreError(fmt.Errorf("load node run %s: %w", nodeRunID, err))
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return task.NewStoreError(fmt.Errorf("marshal node result: %w", err))
	}

	existing.Status = string(status)
	existing.FinishedAt = finishedAt
	existing.DurationSecond = finishedAt.Sub(existing.StartedAt).Seconds()
	existing.ResultData = string(resultJSON)

	if _, err := s.db.NewUpdate().Model(&existing).WherePK().Exec(ctx); err != nil {
		return task.NewStoreError(fmt.Errorf("update node run %s: %w", nodeRunID, err))
	}
	return nil
}
