package builtin

import "github.com/smilemakc/mbflow/pkg/task"

// RegisterBuiltins registers the closed set of five builtin task types
// against the given registry.
func RegisterBuiltins(registry *task.Registry) error {
	factories := map[task.Type]task.Factory{
		"http_get":         NewHTTPGet,
		"validate_csv":     NewValidateCSV,
		"transform_simple": NewTransformSimple,
		"save_db":          NewSaveDB,
		"notify_mock":      NewNotifyMock,
	}

	for t, factory := range factories {
		if err := registry.Register(t, factory); err != nil {
			return err
		}
	}
	return nil
}

// MustRegisterBuiltins registers the builtin task types and panics on error.
// Intended for initialisation code where a registration failure is a
// programming error.
func MustRegisterBuiltins(registry *task.Registry) {
	if err := RegisterBuiltins(registry); err != nil {
		panic("failed to register builtin tasks: " + err.Error())
	}
}
