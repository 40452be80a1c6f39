package domain

import (
	"errors"
	"fmt"
)

// CodeNoData is the message key reported when a report query returns no rows.
const CodeNoData = "claim_batch.reports.nodata"

// CodeInvalidQuery identifies rejected report parameters.
const CodeInvalidQuery = "claim_batch.reports.invalid_query"

// Error is a coded reporting error.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
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
	ErrNoData       = &Error{Code: CodeNoData, Message: "no data for report"}
	ErrInvalidQuery = &Error{Code: CodeInvalidQuery, Message: "invalid report query"}
)

func invalidQuery(format string, args ...any) error {
	return &Error{Code: CodeInvalidQuery, Message: fmt.Sprintf(format, args...)}
}
