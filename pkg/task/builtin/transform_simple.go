package builtin

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/itchyny/gojq"

	"github.com/smilemakc/mbflow/pkg/task"
)

const transformOutputDir = "./data"

// TransformSimpleParams is the validated params shape for transform_simple.
type TransformSimpleParams struct {
	TableName     string   `json:"table_name" validate:"required"`
	SelectColumns []string `json:"select_columns"`
}

// TransformSimple implements the transform_simple task: discovers tabular
// data published by an upstream node and emits a standalone .sql artifact
// (CREATE TABLE + one INSERT per row) to disk.
type TransformSimple struct{}

// NewTransformSimple returns a fresh transform_simple task instance.
func NewTransformSimple() task.Task {
	return &TransformSimple{}
}

func (t *TransformSimple) Metadata() task.Metadata {
	return task.Metadata{
		Type:        "transform_simple",
		DisplayName: "Simple Transform",
		Description: "Converts the nearest upstream tabular result into a standalone SQL artifact.",
		Category:    "Transform",
		Icon:        "table-export",
		ParamsSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"table_name":     map[string]any{"type": "string"},
				"select_columns": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
			"required": []string{"table_name"},
		},
	}
}

func (t *TransformSimple) ValidateParams(params task.Params) error {
	var p TransformSimpleParams
	return decodeParams(params, &p)
}

func (t *TransformSimple) Execute(_ context.Context, execCtx task.Context, params task.Params) (task.Result, error) {
	var p TransformSimpleParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	sourceNode, rows, originalColumns, err := discoverUpstreamRows(execCtx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, task.WrapExecutionError(fmt.Errorf("NoUpstreamData: upstream source %s produced no rows", sourceNode))
	}

	columns := originalColumns
	if len(p.SelectColumns) > 0 {
		columns = p.SelectColumns
	}

	types := inferColumnTypes(rows, columns)

	ts := time.Now().UTC().Format("20060102T150405")
	suffix := uuid.NewString()
	if len(suffix) > 6 {
		suffix = suffix[:6]
	}
	filename := fmt.Sprintf("%s_%s_%s.sql", p.TableName, ts, suffix)
	outputPath := filepath.Join(transformOutputDir, filename)

	if err := os.MkdirAll(transformOutputDir, 0o755); err != nil {
		return nil, task.WrapExecutionError(fmt.Errorf("create output directory: %w", err))
	}

	statements := buildStatements(p.TableName, columns, types, rows)
	if err := os.WriteFile(outputPath, []byte(strings.Join(statements, "\n")+"\n"), 0o644); err != nil {
		return nil, task.WrapExecutionError(fmt.Errorf("write sql artifact: %w", err))
	}

	return task.Result{
		"success":               true,
		"source_node":           sourceNode,
		"output_path":           outputPath,
		"output_filename":       filename,
		"table_name":            p.TableName,
		"rows":                  len(rows),
		"columns":               columns,
		"original_columns":      originalColumns,
		"statements_generated":  len(statements),
	}, nil
}

// discoverUpstreamRows implements the §4.5 context-discovery contract:
// scan context (in deterministic, sorted-key order, since Go maps carry no
// iteration order of their own) for the first entry carrying a data or body
// key (with nested data unwrapping) or a path key.
func discoverUpstreamRows(execCtx task.Context) (string, []map[string]any, []string, error) {
	keys := make([]string, 0, len(execCtx))
	for k := range execCtx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		result := execCtx[key]

		if rows, cols, ok := tryExtractData(result); ok {
			return key, rows, cols, nil
		}
		if rows, cols, ok := tryExtractBody(result); ok {
			return key, rows, cols, nil
		}
		if rows, cols, ok := tryExtractPath(result); ok {
			return key, rows, cols, nil
		}
	}
	return "", nil, nil, task.WrapExecutionError(fmt.Errorf("NoUpstreamData: no upstream context entry carries data, body, or path"))
}

var dataUnwrapQuery = mustParseJQ(".data.data // .data // empty")
var bodyQuery = mustParseJQ(".body // empty")
var pathQuery = mustParseJQ(".path // empty")

func mustParseJQ(src string) *gojq.Query {
	q, err := gojq.Parse(src)
	if err != nil {
		panic(fmt.Sprintf("invalid builtin jq query %q: %v", src, err))
	}
	return q
}

func tryExtractData(result task.Result) ([]map[string]any, []string, bool) {
	val, ok := runJQFirst(dataUnwrapQuery, map[string]any(result))
	if !ok || val == nil {
		return nil, nil, false
	}
	return coerceRows(val)
}

func tryExtractBody(result task.Result) ([]map[string]any, []string, bool) {
	val, ok := runJQFirst(bodyQuery, map[string]any(result))
	if !ok || val == nil {
		return nil, nil, false
	}
	if s, ok := val.(string); ok {
		var parsed any
		if err := json.Unmarshal([]byte(s), &parsed); err == nil {
			if rows, cols, ok := coerceRows(parsed); ok {
				return rows, cols, true
			}
		}
		return nil, nil, false
	}
	return coerceRows(val)
}

func tryExtractPath(result task.Result) ([]map[string]any, []string, bool) {
	val, ok := runJQFirst(pathQuery, map[string]any(result))
	if !ok || val == nil {
		return nil, nil, false
	}
	path, ok := val.(string)
	if !ok || path == "" {
		return nil, nil, false
	}
	return readCSVRows(path)
}

func runJQFirst(q *gojq.Query, input map[string]any) (any, bool) {
	iter := q.Run(input)
	v, ok := iter.Next()
	if !ok {
		return nil, false
	}
	if err, isErr := v.(error); isErr {
		_ = err
		return nil, false
	}
	return v, true
}

func coerceRows(val any) ([]map[string]any, []string, bool) {
	list, ok := val.([]any)
	if !ok || len(list) == 0 {
		return nil, nil, false
	}
	rows := make([]map[string]any, 0, len(list))
	var columns []string
	seen := make(map[string]struct{})
	for _, item := range list {
		row, ok := item.(map[string]any)
		if !ok {
			continue
		}
		rows = append(rows, row)
		for k := range row {
			if _, dup := seen[k]; !dup {
				seen[k] = struct{}{}
				columns = append(columns, k)
			}
		}
	}
	if len(rows) == 0 {
		return nil, nil, false
	}
	sort.Strings(columns)
	return rows, columns, true
}

func readCSVRows(path string) ([]map[string]any, []string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, false
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil || len(records) < 1 {
		return nil, nil, false
	}

	header := records[0]
	rows := make([]map[string]any, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]any, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, header, true
}

// inferColumnTypes samples every row's value for each column and picks the
// narrowest SQL type consistent with every sample: INTEGER, REAL, or TEXT.
func inferColumnTypes(rows []map[string]any, columns []string) map[string]string {
	types := make(map[string]string, len(columns))
	for _, col := range columns {
		sqlType := "INTEGER"
		sawAny := false
		for _, row := range rows {
			v, ok := row[col]
			if !ok || v == nil {
				continue
			}
			sawAny = true
			switch candidate := classifyValue(v); {
			case candidate == "TEXT":
				sqlType = "TEXT"
			case candidate == "REAL" && sqlType != "TEXT":
				sqlType = "REAL"
			}
			if sqlType == "TEXT" {
				break
			}
		}
		if !sawAny {
			sqlType = "TEXT"
		}
		types[col] = sqlType
	}
	return types
}

func classifyValue(v any) string {
	switch val := v.(type) {
	case float64:
		if val == float64(int64(val)) {
			return "INTEGER"
		}
		return "REAL"
	case string:
		if _, err := strconv.ParseInt(val, 10, 64); err == nil {
			return "INTEGER"
		}
		if _, err := strconv.ParseFloat(val, 64); err == nil {
			return "REAL"
		}
		return "TEXT"
	default:
		return "TEXT"
	}
}

func buildStatements(tableName string, columns []string, types map[string]string, rows []map[string]any) []string {
	statements := make([]string, 0, len(rows)+1)

	colDefs := make([]string, 0, len(columns))
	for _, col := range columns {
		colDefs = append(colDefs, fmt.Sprintf("%s %s", quoteIdent(col), types[col]))
	}
	statements = append(statements, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s);",
		quoteIdent(tableName), strings.Join(colDefs, ", "),
	))

	quotedColumns := make([]string, len(columns))
	for i, col := range columns {
		quotedColumns[i] = quoteIdent(col)
	}

	for _, row := range rows {
		values := make([]string, len(columns))
		for i, col := range columns {
			values[i] = sqlLiteral(row[col])
		}
		statements = append(statements, fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (%s);",
			quoteIdent(tableName), strings.Join(quotedColumns, ", "), strings.Join(values, ", "),
		))
	}
	return statements
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func sqlLiteral(v any) string {
	if v == nil {
		return "NULL"
	}
	switch val := v.(type) {
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	case bool:
		if val {
			return "1"
		}
		return "0"
	default:
		raw, _ := json.Marshal(val)
		return "'" + strings.ReplaceAll(string(raw), "'", "''") + "'"
	}
}
