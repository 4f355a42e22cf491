// Package perrors classifies the error kinds of the blockhash attribution
// pipeline so that callers (in particular the CLI's exit-code mapping) can
// branch on what went wrong without string-matching error messages.
package perrors

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind identifies one of the error categories of the system.
type Kind int

const (
	// KindNone is returned by KindOf(err) when err is nil.
	KindNone Kind = iota
	// KindUsage covers bad CLI invocations or missing required input.
	KindUsage
	// KindIO covers file-not-found, permission, and other filesystem errors.
	KindIO
	// KindCorruptDB covers malformed JSON, bad integer keys, or missing
	// required fields in a persisted database or blockhash report.
	KindCorruptDB
	// KindDisassemblyFailed is propagated from the disassembler collaborator.
	KindDisassemblyFailed
	// KindHashInputInvalid covers instruction bytes the escaper cannot
	// decode, e.g. a malformed hex-encoded Instruction.Bytes field.
	KindHashInputInvalid
)

func (k Kind) String() string {
	switch k {
	case KindUsage:
		return "usage error"
	case KindIO:
		return "io error"
	case KindCorruptDB:
		return "corrupt db"
	case KindDisassemblyFailed:
		return "disassembly failed"
	case KindHashInputInvalid:
		return "hash input invalid"
	default:
		return "none"
	}
}

// ExitCode maps a Kind to the process exit code mandated by the CLI surface:
// 0 success, 1 usage/missing input, 2 corrupt DB.
func (k Kind) ExitCode() int {
	switch k {
	case KindNone:
		return 0
	case KindCorruptDB:
		return 2
	default:
		return 1
	}
}

type wrappedError struct {
	kind Kind
	err  error
}

func (w *wrappedError) Error() string { return w.err.Error() }
func (w *wrappedError) Unwrap() error { return w.err }

// New builds an error of the given kind, wrapping it with a stack trace via
// github.com/pkg/errors so that top-level handlers can log a useful trace.
func New(kind Kind, format string, args ...interface{}) error {
	return &wrappedError{kind: kind, err: pkgerrors.New(fmt.Sprintf(format, args...))}
}

// Wrap attaches kind to an existing error, preserving it for errors.Is/As and
// adding a stack trace recorded at the point of the call.
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &wrappedError{kind: kind, err: pkgerrors.Wrap(err, message)}
}

// KindOf extracts the Kind from err, walking the Unwrap chain. Returns
// KindNone for a nil error and KindIO as the default classification for an
// unclassified non-nil error (the overwhelming majority of unclassified
// errors in this system originate from file I/O).
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var w *wrappedError
	if errors.As(err, &w) {
		return w.kind
	}
	return KindIO
}
