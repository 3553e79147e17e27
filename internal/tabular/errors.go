package tabular

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrEngine            = errors.New("engine error")

	// ErrLegacySpreadsheet marks pre-XML binary workbooks. It matches
	// ErrUnsupportedFormat under errors.Is.
	ErrLegacySpreadsheet = fmt.Errorf("%w: legacy binary spreadsheet", ErrUnsupportedFormat)
)

// EngineError wraps a failure raised by an embedded engine. It matches
// ErrEngine under errors.Is and unwraps to the driver error.
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrEngine, e.Op, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

func (e *EngineError) Is(target error) bool {
	return target == ErrEngine
}

// Engine returns nil for a nil err so call sites can wrap unconditionally.
func Engine(op string, err error) error {
	if err == nil {
		return nil
	}
	return &EngineError{Op: op, Err: err}
}

func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func Unsupported(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, fmt.Sprintf(format, args...))
}
