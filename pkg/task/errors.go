package task

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a task or the machinery around it failed.
type ErrorKind string

const (
	// ErrorKindInvalidParams means params validation rejected the command.
	ErrorKindInvalidParams ErrorKind = "InvalidParams"
	// ErrorKindUnknownTaskType means the registry has no factory for the type.
	ErrorKindUnknownTaskType ErrorKind = "UnknownTaskType"
	// ErrorKindTaskExecutionError wraps any error raised by Execute.
	ErrorKindTaskExecutionError ErrorKind = "TaskExecutionError"
	// ErrorKindGracefulFailure marks a task-returned success:false result.
	ErrorKindGracefulFailure ErrorKind = "GracefulFailure"
	// ErrorKindCyclicOrBlockedDAG means a scheduling pass made no progress.
	ErrorKindCyclicOrBlockedDAG ErrorKind = "CyclicOrBlockedDAG"
	// ErrorKindStoreError means a shared or run store operation failed.
	ErrorKindStoreError ErrorKind = "StoreError"
)

// Error is the structured error type carried through the task lifecycle.
// Fields holds any offending-field detail (e.g. which params keys failed
// validation); it is nil when there is none to report.
type Error struct {
	Kind    ErrorKind
	Message string
	Fields  []string
	cause   error
}

func (e *Error) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s: %s (fields: %v)", e.Kind, e.Message, e.Fields)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// NewInvalidParams builds an InvalidParams error naming the offending fields.
func NewInvalidParams(message string, fields ...string) *Error {
	return &Error{Kind: ErrorKindInvalidParams, Message: message, Fields: fields}
}

// NewUnknownTaskType builds the registry-miss error for a task type.
func NewUnknownTaskType(t Type) *Error {
	return &Error{Kind: ErrorKindUnknownTaskType, Message: fmt.Sprintf("Unknown task type: %s", t)}
}

// WrapExecutionError wraps an arbitrary execution-time error.
func WrapExecutionError(err error) *Error {
	return &Error{Kind: ErrorKindTaskExecutionError, Message: err.Error(), cause: err}
}

// NewCyclicOrBlockedDAG builds the fatal scheduling error.
func NewCyclicOrBlockedDAG(pendingIDs []string) *Error {
	return &Error{
		Kind:    ErrorKindCyclicOrBlockedDAG,
		Message: "a full scheduling pass made no progress",
		Fields:  pendingIDs,
	}
}

// NewStoreError wraps a shared/run store failure.
func NewStoreError(err error) *Error {
	return &Error{Kind: ErrorKindStoreError, Message: err.Error(), cause: err}
}

// ErrDuplicateTaskType is returned by Registry.Register when the type is
// already registered.
var ErrDuplicateTaskType = errors.New("task type already registered")

// KindOf extracts the ErrorKind from err if it is (or wraps) a *Error.
func KindOf(err error) (ErrorKind, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return "", false
}
