// Package diffimerr defines the error taxonomy shared by the kernel
// solver packages: InvalidInput, NotSolved, Numerical, Runtime and Logic.
package diffimerr

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed.
type Kind int

const (
	// InvalidInput covers bad arguments: non-positive variance, mismatched
	// dimensions, or an unrecognized configuration enum value.
	InvalidInput Kind = iota
	// NotSolved covers access to a kernel/background/ksum before a
	// successful solve.
	NotSolved
	// Numerical covers a solver that could not produce finite
	// coefficients: NaN in the solution, a failed eigendecomposition, or
	// a size mismatch in an intermediate risk-estimation quantity.
	Numerical
	// Runtime covers a request for a solution slot (Original/PCA) that
	// does not exist.
	Runtime
	// Logic covers an internal invariant violation, such as an unknown
	// candidate-switch value.
	Logic
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "InvalidInput"
	case NotSolved:
		return "NotSolved"
	case Numerical:
		return "Numerical"
	case Runtime:
		return "Runtime"
	case Logic:
		return "Logic"
	default:
		return "Unknown"
	}
}

// Sentinels for use with errors.Is. Every *Error produced by this module
// wraps one of these via Unwrap, so callers can write
// errors.Is(err, diffimerr.ErrNumerical) without caring about Op or
// ConditionNumber.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotSolved    = errors.New("not solved")
	ErrNumerical    = errors.New("numerical failure")
	ErrRuntime      = errors.New("runtime error")
	ErrLogic        = errors.New("logic error")
)

func sentinelFor(k Kind) error {
	switch k {
	case InvalidInput:
		return ErrInvalidInput
	case NotSolved:
		return ErrNotSolved
	case Numerical:
		return ErrNumerical
	case Runtime:
		return ErrRuntime
	case Logic:
		return ErrLogic
	default:
		return ErrLogic
	}
}

// Error is the concrete error type returned by the solver packages. Op
// names the failing operation (e.g. "linsolve.Solve"); ConditionNumber
// is set only for Numerical errors that arose from a NaN coefficient
// after a solve, mirroring the condition number embedded in the
// original implementation's NaN exception messages.
type Error struct {
	Kind            Kind
	Op              string
	Msg             string
	ConditionNumber float64
	Err             error
}

func (e *Error) Error() string {
	if e.ConditionNumber != 0 {
		return fmt.Sprintf("%s: %s: %s (condition number = %.3e)", e.Op, e.Kind, e.Msg, e.ConditionNumber)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return sentinelFor(e.Kind)
}

// New builds an *Error for op with the given kind and message.
func New(op string, kind Kind, msg string) *Error {
	return &Error{Op: op, Kind: kind, Msg: msg}
}

// Newf is New with fmt.Sprintf-style formatting of msg.
func Newf(op string, kind Kind, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WithConditionNumber returns a copy of e with ConditionNumber set.
func (e *Error) WithConditionNumber(c float64) *Error {
	cp := *e
	cp.ConditionNumber = c
	return &cp
}
