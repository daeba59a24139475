// Package errors defines the sentinel errors shared by the indexing, merge
// and retrieval packages, plus an AppError wrapper that carries the failing
// operation and maps to a process exit code.
package errors

import (
	"errors"
	"fmt"
)

var (
	// Document-level failures. Recovered by skipping the document.
	ErrDocumentProcessing = errors.New("document processing failed")
	ErrEmptyDocument      = fmt.Errorf("%w: empty document", ErrDocumentProcessing)

	// Format and byte-accounting failures. Fatal to the operation.
	ErrCorruptFormat  = errors.New("corrupt index format")
	ErrInvalidPosting = errors.New("invalid posting")
	ErrUnsortedTerm   = errors.New("terms not in ascending order")
	ErrInvalidTerm    = errors.New("invalid term")
	ErrDuplicateDoc   = errors.New("duplicate document id in posting list")
	ErrOutOfOrder     = errors.New("document ids not ascending")

	ErrUnknownDoc    = errors.New("document id missing from metadata")
	ErrIndexNotFound = errors.New("index not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidConfig = errors.New("invalid configuration")
)

type AppError struct {
	Err     error
	Op      string
	Message string
}

func (e *AppError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, op string, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Op:      op,
		Message: message,
	}
}

func Newf(sentinel error, op string, format string, args ...any) *AppError {
	return &AppError{
		Err:     sentinel,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// Corruptf is shorthand for a format error raised while parsing a file.
func Corruptf(op string, format string, args ...any) *AppError {
	return Newf(ErrCorruptFormat, op, format, args...)
}

// IsDocumentError reports whether err only affects a single document.
func IsDocumentError(err error) bool {
	return errors.Is(err, ErrDocumentProcessing)
}

// ExitCode maps an error to the CLI exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidConfig):
		return 2
	case errors.Is(err, ErrIndexNotFound):
		return 3
	case errors.Is(err, ErrCorruptFormat), errors.Is(err, ErrDuplicateDoc), errors.Is(err, ErrUnknownDoc):
		return 4
	default:
		return 1
	}
}

// Is and As re-export the standard helpers so callers need one import.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }
