// Package stackvm implements the stack-and-variable scripting language
// interpreter: a line translator and an execution engine over a shared
// machine state (operand stack plus variable table).
package stackvm

import (
	"errors"
	"fmt"
)

// Error definitions specific to translation and execution.
var (
	ErrDivisionByZero  = errors.New("division by zero")
	ErrUnknownVariable = errors.New("unknown variable")
	ErrStackEmpty      = errors.New("stack is empty")
	ErrInvalidNumber   = errors.New("invalid number")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInputRead       = errors.New("failed to read input")
	ErrRecursionDepth  = errors.New("recursion depth exceeded")
	ErrFileOpen        = errors.New("failed to open file")
)

// Error categories
const (
	// ErrCategorySyntax marks errors raised while translating program text.
	ErrCategorySyntax = "SYNTAX ERROR"
	// ErrCategoryEvaluation marks errors raised while resolving operands.
	ErrCategoryEvaluation = "EVALUATION ERROR"
	// ErrCategoryExecution marks general execution errors.
	ErrCategoryExecution = "EXECUTION ERROR"
	// ErrCategoryIO marks input/output errors.
	ErrCategoryIO = "I/O ERROR"
	// ErrCategoryResource marks resource exhaustion errors.
	ErrCategoryResource = "RESOURCE ERROR"
)

// MachineError is a structured interpreter error. Every runtime error is
// fatal to the run that produced it; the category and detail are what the
// operator sees.
type MachineError struct {
	Category string // error category (e.g. "EVALUATION ERROR")
	Detail   string // specific failure description
	Err      error  // underlying sentinel error
}

// Error implements the error interface.
func (me *MachineError) Error() string {
	if me.Detail == "" {
		return me.Category + ": " + me.Err.Error()
	}
	return me.Category + ": " + me.Detail
}

// Unwrap exposes the underlying sentinel for errors.Is checks.
func (me *MachineError) Unwrap() error {
	return me.Err
}

// newMachineError builds a MachineError around a sentinel.
func newMachineError(category string, err error, format string, args ...interface{}) *MachineError {
	return &MachineError{
		Category: category,
		Detail:   fmt.Sprintf(format, args...),
		Err:      err,
	}
}
