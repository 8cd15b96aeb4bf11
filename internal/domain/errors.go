package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for repository and scheduler lookups.
var (
	ErrCellNotFound = errors.New("cell not found")
	ErrNoDSN        = errors.New("no database connection configured")
)

// ErrorKind classifies cell-scoped errors.
type ErrorKind string

const (
	ErrKindAnalysis            ErrorKind = "analysis"
	ErrKindDuplicateDefinition ErrorKind = "duplicate_definition"
	ErrKindCycle               ErrorKind = "cycle"
	ErrKindNameNotDefined      ErrorKind = "name_not_defined"
	ErrKindRuntime             ErrorKind = "runtime"
	ErrKindMissingPlaceholder  ErrorKind = "missing_placeholder"
	ErrKindTimeout             ErrorKind = "timeout"
	ErrKindQueryExecution      ErrorKind = "query_execution"
)

// CellError is an error attributed to a single cell. It is captured on the
// cell and delivered as a cell_error event; it never aborts the run.
type CellError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *CellError) Error() string {
	return e.Message
}

func (e *CellError) Unwrap() error {
	return e.Cause
}

// NewDuplicateDefinition reports a name defined by two cells at once. The
// peer is the other colliding cell; each participant receives its own error.
func NewDuplicateDefinition(name, peerID string) *CellError {
	return &CellError{
		Kind:    ErrKindDuplicateDefinition,
		Message: fmt.Sprintf("duplicate definition of '%s' with cell %s", name, peerID),
	}
}

// NewCycle reports a dependency cycle, listing every participant.
func NewCycle(members []string) *CellError {
	return &CellError{
		Kind:    ErrKindCycle,
		Message: fmt.Sprintf("dependency cycle between cells %s", strings.Join(members, ", ")),
	}
}

// NewNameNotDefined reports a free-name lookup failure at execution time.
func NewNameNotDefined(name string, cause error) *CellError {
	return &CellError{
		Kind:    ErrKindNameNotDefined,
		Message: fmt.Sprintf("name '%s' is not defined", name),
		Cause:   cause,
	}
}

// NewMissingPlaceholder reports a {{name}} placeholder with no namespace
// value. The query is not executed.
func NewMissingPlaceholder(name string) *CellError {
	return &CellError{
		Kind:    ErrKindMissingPlaceholder,
		Message: fmt.Sprintf("missing value for placeholder {{%s}}", name),
	}
}

// NewTimeout reports an executor exceeding its wall-clock deadline.
func NewTimeout(seconds float64) *CellError {
	return &CellError{
		Kind:    ErrKindTimeout,
		Message: fmt.Sprintf("execution timeout after %.0fs", seconds),
	}
}

// NewAnalysisError reports a parse failure, surfaced at execution time.
func NewAnalysisError(cause error) *CellError {
	return &CellError{
		Kind:    ErrKindAnalysis,
		Message: cause.Error(),
		Cause:   cause,
	}
}

// NewRuntimeError wraps an evaluation failure that is neither a parse
// error nor a free-name lookup failure.
func NewRuntimeError(cause error) *CellError {
	return &CellError{
		Kind:    ErrKindRuntime,
		Message: cause.Error(),
		Cause:   cause,
	}
}

// NewQueryError wraps a driver or SQL error, including the no-DSN case.
func NewQueryError(cause error) *CellError {
	return &CellError{
		Kind:    ErrKindQueryExecution,
		Message: cause.Error(),
		Cause:   cause,
	}
}

// KindOf returns the error kind when err is a CellError, or empty.
func KindOf(err error) ErrorKind {
	var ce *CellError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}
