package domain

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a class of batch failure.
type ErrorCode string

const (
	CodeAlreadyRun     ErrorCode = "BATCH_ALREADY_RUN"
	CodeDataError      ErrorCode = "BATCH_DATA_ERROR"
	CodeProcessing     ErrorCode = "BATCH_PROCESSING_ERROR"
	CodeInvalidCommand ErrorCode = "BATCH_INVALID_COMMAND"
)

// Error is a coded batch error.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements error.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrAlreadyRun     = &Error{Code: CodeAlreadyRun, Message: "already run before"}
	ErrDataError      = &Error{Code: CodeDataError, Message: "invalid data"}
	ErrProcessing     = &Error{Code: CodeProcessing, Message: "processing failed"}
	ErrInvalidCommand = &Error{Code: CodeInvalidCommand, Message: "invalid command"}
)

// NewAlreadyRun reports an active run for key.
func NewAlreadyRun(key RunKey) error {
	return &Error{Code: CodeAlreadyRun, Message: fmt.Sprintf("batch already run for %s", key)}
}

// NewDataError reports malformed input data.
func NewDataError(format string, args ...any) error {
	return &Error{Code: CodeDataError, Message: fmt.Sprintf(format, args...)}
}

// NewProcessingError wraps an orchestration failure.
func NewProcessingError(cause error) error {
	return &Error{Code: CodeProcessing, Message: "batch processing failed", Cause: cause}
}

// NewInvalidCommand reports a rejected run request.
func NewInvalidCommand(format string, args ...any) error {
	return &Error{Code: CodeInvalidCommand, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code of the outermost coded error in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}
