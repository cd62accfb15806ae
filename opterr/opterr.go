// Package opterr holds the error taxonomy shared by the optical element
// packages.  Construction failures (orientation, parameters, optical axis) are
// fatal for an element; NoIntersection and OutOfAperture are per-ray outcomes
// that the propagator turns into zero field.
package opterr

import (
	"fmt"

	"golang.org/x/xerrors"
)

type Code uint8

const (
	Unknown Code = iota
	InvalidOrientation
	InvalidParameter
	NoOpticalAxis
	AllocationFailure
	NoIntersection
	OutOfAperture
)

func (c Code) String() string {
	switch c {
	case InvalidOrientation:
		return "invalid orientation"
	case InvalidParameter:
		return "invalid parameter"
	case NoOpticalAxis:
		return "no optical axis"
	case AllocationFailure:
		return "allocation failure"
	case NoIntersection:
		return "no intersection"
	case OutOfAperture:
		return "out of aperture"
	}
	return "unknown"
}

// Sentinels for errors.Is.  Any *Error with the same Code matches.
var (
	ErrInvalidOrientation = &Error{Code: InvalidOrientation}
	ErrInvalidParameter   = &Error{Code: InvalidParameter}
	ErrNoOpticalAxis      = &Error{Code: NoOpticalAxis}
	ErrAllocationFailure  = &Error{Code: AllocationFailure}
	ErrNoIntersection     = &Error{Code: NoIntersection}
	ErrOutOfAperture      = &Error{Code: OutOfAperture}
)

type Error struct {
	Code    Code
	Message string

	inner error
	frame xerrors.Frame
}

func New(code Code, message string, inner error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		inner:   inner,
		frame:   xerrors.Caller(1),
	}
}

// Newf is New with a formatted message and no inner error.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		frame:   xerrors.Caller(1),
	}
}

func (e *Error) Error() string {
	msg := e.Code.String()
	if e.Message != "" {
		msg = msg + ": " + e.Message
	}
	if e.inner != nil {
		msg = msg + ": " + e.inner.Error()
	}
	return msg
}

func (e *Error) Format(f fmt.State, c rune) { // implements fmt.Formatter
	xerrors.FormatError(e, f, c)
}

func (e *Error) FormatError(p xerrors.Printer) error { // implements xerrors.Formatter
	if e.Message != "" {
		p.Printf("%s: %s", e.Code, e.Message)
	} else {
		p.Print(e.Code.String())
	}
	if p.Detail() {
		e.frame.Format(p)
	}
	return e.inner
}

func (e *Error) Unwrap() error {
	return e.inner
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// CodeOf extracts the Code of the first *Error in err's chain, or Unknown.
func CodeOf(err error) Code {
	var e *Error
	if xerrors.As(err, &e) {
		return e.Code
	}
	return Unknown
}
