package shared

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/extra/bundebug"

	_ "modernc.org/sqlite"

	"github.com/smilemakc/mbflow/pkg/dag"
	"github.com/smilemakc/mbflow/pkg/task"
)

// PendingRow is one claimed-or-claimable row together with its parsed
// workflow definition.
type PendingRow struct {
	ID         string
	Name       string
	Definition dag.Definition
}

// Store is the Shared Store Adapter (C7).
type Store struct {
	db     *bun.DB
	logger *slog.Logger
}

// Open opens (creating if absent) the SQLite file at path and ensures the
// workflowtable exists.
func Open(ctx context.Context, path string, debug bool, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open shared store %q: %w", path, err)
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	s := &Store{db: db, logger: logger}
	if _, err := db.NewCreateTable().Model((*RowModel)(nil)).IfNotExists().Exec(ctx); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("create workflowtable: %w", err)
	}
	return s, nil
}

// Close disposes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Pending returns every row whose status is en_espera, with its definition
// parsed into a dag.Definition. A row whose definition fails to parse is
// logged and skipped, not returned.
func (s *Store) Pending(ctx context.Context) ([]PendingRow, error) {
	var rows []RowModel
	if err := s.db.NewSelect().Model(&rows).Where("status = ?", string(StatusPending)).Scan(ctx); err != nil {
		return nil, task.NewStoreError(fmt.Errorf("query pending rows: %w", err))
	}

	pending := make([]PendingRow, 0, len(rows))
	for _, row := range rows {
		def, err := ParseDefinition(row.Name, row.ID, row.Definition)
		if err != nil {
			s.logger.Warn("skipping row with unparseable definition", "id", row.ID, "error", err)
			continue
		}
		pending = append(pending, PendingRow{ID: row.ID, Name: row.Name, Definition: def})
	}
	return pending, nil
}

// Claim atomically transitions row id from en_espera to en_progreso. It
// returns ok=false (no error) if another worker already claimed it, making
// claim uniqueness a database-level guarantee rather than a race the
// caller must avoid.
func (s *Store) Claim(ctx context.Context, id string) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*RowModel)(nil)).
		Set("status = ?", string(StatusInProgress)).
		Set("updated_at = ?", nowISO8601()).
		Where("id = ?", id).
		Where("status = ?", string(StatusPending)).
		Exec(ctx)
	if err != nil {
		return false, task.NewStoreError(fmt.Errorf("claim row %s: %w", id, err))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, task.NewStoreError(fmt.Errorf("claim row %s: read rows affected: %w", id, err))
	}
	return affected == 1, nil
}

// Finalise writes the terminal external status and rewrites definition to
// additionally carry execution_results and executed_at, preserving any
// existing keys (including the original nodes verbatim).
func (s *Store) Finalise(ctx context.Context, id string, status Status, results map[string]task.Result) error {
	var row RowModel
	if err := s.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx); err != nil {
		return task.NewStoreError(fmt.Errorf("load row %s: %w", id, err))
	}

	var definition map[string]json.RawMessage
	if err := json.Unmarshal([]byte(row.Definition), &definition); err != nil {
		return task.NewStoreError(fmt.Errorf("parse definition for row %s: %w", id, err))
	}

	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return task.NewStoreError(fmt.Errorf("marshal execution results: %w", err))
	}
	executedAtJSON, err := json.Marshal(nowISO8601())
	if err != nil {
		return task.NewStoreError(fmt.Errorf("marshal executed_at: %w", err))
	}

	definition["execution_results"] = resultsJSON
	definition["executed_at"] = executedAtJSON

	rewritten, err := json.Marshal(definition)
	if err != nil {
		return task.NewStoreError(fmt.Errorf("marshal rewritten definition: %w", err))
	}

	row.Status = string(status)
	row.UpdatedAt = nowISO8601()
	row.Definition = string(rewritten)

	if _, err := s.db.NewUpdate().Model(&row).WherePK().Exec(ctx); err != nil {
		return task.NewStoreError(fmt.Errorf("finalise row %s: %w", id, err))
	}
	return nil
}

// CreateRow inserts a new en_espera row. It exists to support tests and
// local smoke-testing of the poller; the producer is an external
// collaborator in production (see SPEC_FULL.md §1).
func (s *Store) CreateRow(ctx context.Context, id, name, definitionJSON string) error {
	now := nowISO8601()
	row := &RowModel{
		ID:         id,
		Name:       name,
		Status:     string(StatusPending),
		CreatedAt:  now,
		UpdatedAt:  now,
		Definition: definitionJSON,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return task.NewStoreError(fmt.Errorf("create row %s: %w", id, err))
	}
	return nil
}

func nowISO8601() string {
	return time.Now().UTC().Format(time.RFC3339)
}
