package builtin

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/smilemakc/mbflow/pkg/task"
)

// ValidateCSVParams is the validated params shape for validate_csv.
type ValidateCSVParams struct {
	Path              string   `json:"path" validate:"required"`
	Columns           []string `json:"columns" validate:"required,min=1"`
	AllowExtraColumns *bool    `json:"allow_extra_columns"`
}

func (p ValidateCSVParams) allowExtra() bool {
	if p.AllowExtraColumns == nil {
		return true
	}
	return *p.AllowExtraColumns
}

// ValidateCSV implements the validate_csv task: checks a CSV file exists,
// parses it, and confirms its header carries every expected column. Columns
// beyond the expected set are accepted unless allow_extra_columns is false.
type ValidateCSV struct{}

// NewValidateCSV returns a fresh validate_csv task instance.
func NewValidateCSV() task.Task {
	return &ValidateCSV{}
}

func (v *ValidateCSV) Metadata() task.Metadata {
	return task.Metadata{
		Type:        "validate_csv",
		DisplayName: "Validate CSV File",
		Description: "Parses a CSV file and checks it carries the expected columns.",
		Category:    "Validation",
		Icon:        "table",
		ParamsSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":                map[string]any{"type": "string"},
				"columns":             map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"allow_extra_columns": map[string]any{"type": "boolean", "default": true},
			},
			"required": []string{"path", "columns"},
		},
	}
}

func (v *ValidateCSV) ValidateParams(params task.Params) error {
	var p ValidateCSVParams
	return decodeParams(params, &p)
}

func (v *ValidateCSV) Execute(_ context.Context, _ task.Context, params task.Params) (task.Result, error) {
	var p ValidateCSVParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	f, err := os.Open(p.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, task.WrapExecutionError(fmt.Errorf("FileNotFound: %s", p.Path))
		}
		return nil, task.WrapExecutionError(fmt.Errorf("open csv file: %w", err))
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, task.WrapExecutionError(fmt.Errorf("parse csv: %w", err))
	}
	if len(rows) == 0 {
		return nil, task.WrapExecutionError(fmt.Errorf("csv file %s is empty", p.Path))
	}

	header := rows[0]
	headerSet := make(map[string]struct{}, len(header))
	for _, col := range header {
		headerSet[strings.TrimSpace(col)] = struct{}{}
	}

	expectedSet := make(map[string]struct{}, len(p.Columns))
	var missing []string
	for _, expected := range p.Columns {
		expectedSet[expected] = struct{}{}
		if _, ok := headerSet[expected]; !ok {
			missing = append(missing, expected)
		}
	}
	if len(missing) > 0 {
		return nil, task.WrapExecutionError(fmt.Errorf("MissingColumns: %s", strings.Join(missing, ", ")))
	}

	var extra []string
	for _, col := range header {
		if _, ok := expectedSet[col]; !ok {
			extra = append(extra, col)
		}
	}
	hasExtra := len(extra) > 0
	if hasExtra && !p.allowExtra() {
		return nil, task.WrapExecutionError(fmt.Errorf("UnexpectedExtraColumns: %s", strings.Join(extra, ", ")))
	}

	return task.Result{
		"success":           true,
		"valid":             true,
		"path":              p.Path,
		"rows":              len(rows) - 1,
		"columns":           header,
		"expected_columns":  p.Columns,
		"has_extra_columns": hasExtra,
	}, nil
}
