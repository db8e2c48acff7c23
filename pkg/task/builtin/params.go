// Package builtin implements the five closed-set task types: http_get,
// validate_csv, transform_simple, save_db, notify_mock.
package builtin

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/smilemakc/mbflow/pkg/task"
)

var paramsValidator = validator.New(validator.WithRequiredStructEnabled())

// decodeParams round-trips params through JSON into dst (a pointer to a
// typed, validator-tagged struct) and runs struct-tag validation,
// surfacing any failure as InvalidParams naming the offending fields.
func decodeParams(params task.Params, dst any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return task.NewInvalidParams(fmt.Sprintf("params not serialisable: %v", err))
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return task.NewInvalidParams(fmt.Sprintf("params do not match expected shape: %v", err))
	}
	if err := paramsValidator.Struct(dst); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Namespace())
			}
			return task.NewInvalidParams("params validation failed", fields...)
		}
		return task.NewInvalidParams(err.Error())
	}
	return nil
}
