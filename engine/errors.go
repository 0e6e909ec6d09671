package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies engine errors by how the caller should recover.
type ErrorKind string

const (
	// KindValidation signals per-field input errors; re-render the same step.
	KindValidation ErrorKind = "validation"
	// KindNoSelection signals an empty audience selection; re-render the step.
	KindNoSelection ErrorKind = "no_selection"
	// KindAccessDenied signals the operator lacks the required permission.
	KindAccessDenied ErrorKind = "access_denied"
	// KindNotFound signals a missing task definition or absent flow state.
	KindNotFound ErrorKind = "not_found"
	// KindConfig signals a malformed task definition or unknown subtype.
	KindConfig ErrorKind = "config"
	// KindUpstream signals an external service failure; safe to retry.
	KindUpstream ErrorKind = "upstream"
)

// FieldError points at one offending widget or variable.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FlowError is the canonical error type propagated out of the engine.
type FlowError struct {
	Kind    ErrorKind    `json:"kind"`
	Message string       `json:"message"`
	TaskID  int          `json:"taskId,omitempty"`
	Fields  []FieldError `json:"fields,omitempty"`
	Cause   error        `json:"-"`
}

func (e *FlowError) Error() string {
	if len(e.Fields) > 0 {
		fields := make([]string, len(e.Fields))
		for i, f := range e.Fields {
			fields[i] = f.Field
		}
		return fmt.Sprintf("[%s] %s (fields: %s)", e.Kind, e.Message, strings.Join(fields, ", "))
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *FlowError) Unwrap() error {
	return e.Cause
}

func newValidationError(taskID int, fields []FieldError) *FlowError {
	return &FlowError{
		Kind:    KindValidation,
		Message: "the submitted answers did not pass validation",
		TaskID:  taskID,
		Fields:  fields,
	}
}

// NewNoSelectionError reports an audience confirmation with zero identifiers.
func NewNoSelectionError(taskID int) *FlowError {
	return &FlowError{
		Kind:    KindNoSelection,
		Message: "at least one licence must be selected",
		TaskID:  taskID,
	}
}

// NewAccessDeniedError carries the task id for audit logging.
func NewAccessDeniedError(taskID int, permission string) *FlowError {
	return &FlowError{
		Kind:    KindAccessDenied,
		Message: fmt.Sprintf("operator lacks permission %q", permission),
		TaskID:  taskID,
	}
}

// NewConfigError reports a malformed task definition. Fatal, fail closed.
func NewConfigError(taskID int, format string, args ...any) *FlowError {
	return &FlowError{
		Kind:    KindConfig,
		Message: fmt.Sprintf(format, args...),
		TaskID:  taskID,
	}
}

// NewUpstreamError wraps an external service failure so the transport can
// map it without losing the cause.
func NewUpstreamError(taskID int, cause error) *FlowError {
	return &FlowError{
		Kind:    KindUpstream,
		Message: "external service call failed",
		TaskID:  taskID,
		Cause:   cause,
	}
}

// ErrTaskNotFound is returned by definition sources for unknown task ids.
var ErrTaskNotFound = &FlowError{Kind: KindNotFound, Message: "task definition not found"}

// ErrFlowNotStarted is returned when a step is submitted without a flow in
// progress for the (session, task) slot.
var ErrFlowNotStarted = &FlowError{Kind: KindNotFound, Message: "no notification flow in progress"}

// KindOf extracts the ErrorKind from err, or KindUpstream for plain errors.
func KindOf(err error) ErrorKind {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUpstream
}
