// Package apperr defines the error taxonomy shared by the scanning and publishing code.
package apperr

import (
	"errors"
	"strings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrBusy          = errors.New("another publish operation is in progress")
)

// Kind classifies an Error.
type Kind int

const (
	KindInput Kind = iota + 1
	KindPrecondition
	KindExternalTool
	KindIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindPrecondition:
		return "precondition"
	case KindExternalTool:
		return "external-tool"
	case KindIntegrity:
		return "integrity"
	default:
		return "unknown"
	}
}

// Kind sentinels for errors.Is checks.
var (
	ErrInput        = &Error{Kind: KindInput}
	ErrPrecondition = &Error{Kind: KindPrecondition}
	ErrExternalTool = &Error{Kind: KindExternalTool}
	ErrIntegrity    = &Error{Kind: KindIntegrity}
)

// Error is a classified failure. Step names the pipeline stage that failed and
// Output carries captured subprocess output, if any.
type Error struct {
	Kind    Kind
	Step    string
	Message string
	Output  string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Step != "" {
		b.WriteString(e.Step)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		b.WriteString("\n")
		b.WriteString(out)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so callers can test against the
// ErrInput/ErrPrecondition/... sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Step == ""
}

func Input(step, msg string, err error) *Error {
	return &Error{Kind: KindInput, Step: step, Message: msg, Err: err}
}

func Precondition(step, msg string) *Error {
	return &Error{Kind: KindPrecondition, Step: step, Message: msg}
}

func Integrity(step, msg string) *Error {
	return &Error{Kind: KindIntegrity, Step: step, Message: msg}
}

// ExternalTool reports a failed subprocess together with its combined output.
func ExternalTool(step, msg, output string, err error) *Error {
	return &Error{Kind: KindExternalTool, Step: step, Message: msg, Output: output, Err: err}
}

// KindOf returns the Kind of err, or 0 when err carries no classification.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
