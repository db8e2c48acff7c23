package builtin

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/smilemakc/mbflow/pkg/task"
)

const defaultSaveDBPath = "data/output.db"

// SaveDBParams is the validated params shape for save_db.
type SaveDBParams struct {
	DBPath string `json:"db_path" validate:"omitempty,endswith=.db"`
}

// SaveDB implements the save_db task: applies a .sql artifact produced by an
// upstream transform_simple node against a standalone SQLite database file.
//
// It opens its own database/sql connection independent of the ORM-modelled
// run/shared stores, since the file it writes is a user-facing data
// artifact rather than service state.
type SaveDB struct{}

// NewSaveDB returns a fresh save_db task instance.
func NewSaveDB() task.Task {
	return &SaveDB{}
}

func (s *SaveDB) Metadata() task.Metadata {
	return task.Metadata{
		Type:        "save_db",
		DisplayName: "Save to Database",
		Description: "Applies an upstream SQL artifact against a target SQLite database file.",
		Category:    "Storage",
		Icon:        "database",
		ParamsSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"db_path": map[string]any{"type": "string", "default": defaultSaveDBPath},
			},
		},
	}
}

func (s *SaveDB) ValidateParams(params task.Params) error {
	var p SaveDBParams
	return decodeParams(params, &p)
}

func (s *SaveDB) Execute(ctx context.Context, execCtx task.Context, params task.Params) (task.Result, error) {
	var p SaveDBParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	dbPath := p.DBPath
	if dbPath == "" {
		dbPath = defaultSaveDBPath
	}

	sourceNode, sqlFile, tableName, err := discoverUpstreamSQL(execCtx)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(sqlFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, task.WrapExecutionError(fmt.Errorf("FileNotFound: %s", sqlFile))
		}
		return nil, task.WrapExecutionError(fmt.Errorf("read sql artifact: %w", err))
	}

	statements := splitSQLStatements(string(raw))

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, task.WrapExecutionError(fmt.Errorf("create db directory: %w", err))
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, task.WrapExecutionError(fmt.Errorf("open target database: %w", err))
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return nil, task.WrapExecutionError(fmt.Errorf("connect to target database: %w", err))
	}

	var executed, failed int
	var execErrors []string
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			failed++
			execErrors = append(execErrors, fmt.Sprintf("%s: %v", truncate(stmt, 120), err))
			continue
		}
		executed++
	}

	var rowCount int
	if tableName != "" {
		row := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM "%s"`, strings.ReplaceAll(tableName, `"`, `""`)))
		_ = row.Scan(&rowCount)
	}

	result := task.Result{
		"success":             failed == 0,
		"source_node":         sourceNode,
		"sql_file":            sqlFile,
		"db_path":             dbPath,
		"table_name":          tableName,
		"total_statements":    len(statements),
		"executed_statements": executed,
		"failed_statements":   failed,
		"total_rows_in_table": rowCount,
	}
	if len(execErrors) > 0 {
		result["errors"] = execErrors
	}
	return result, nil
}

// discoverUpstreamSQL scans context, in sorted-key order, for the first
// entry carrying both output_path and table_name (the shape published by
// transform_simple).
func discoverUpstreamSQL(execCtx task.Context) (sourceNode, sqlFile, tableName string, err error) {
	keys := make([]string, 0, len(execCtx))
	for k := range execCtx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		result := execCtx[key]
		path, hasPath := result["output_path"].(string)
		table, hasTable := result["table_name"].(string)
		if hasPath && hasTable && path != "" {
			return key, path, table, nil
		}
	}
	return "", "", "", task.WrapExecutionError(fmt.Errorf("NoUpstreamSQL: no upstream context entry carries output_path and table_name"))
}

// splitSQLStatements strips `--` line comments and splits on `;`, discarding
// empty fragments.
func splitSQLStatements(raw string) []string {
	var cleaned strings.Builder
	for _, line := range strings.Split(raw, "\n") {
		if idx := strings.Index(line, "--"); idx >= 0 {
			line = line[:idx]
		}
		cleaned.WriteString(line)
		cleaned.WriteByte('\n')
	}

	parts := strings.Split(cleaned.String(), ";")
	statements := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			statements = append(statements, trimmed)
		}
	}
	return statements
}
