package application

import (
	"context"
	"errors"
	"fmt"

	batch "claim-batch/internal/batch/domain"
)

// Legacy submit error codes.
const (
	LegacyCodeMessage      = -1
	LegacyCodeGeneralFault = 1
	LegacyCodeAlreadyRun   = 2
)

// LegacySubmitError is the error shape expected by legacy batch callers.
type LegacySubmitError struct {
	Code int
	Msg  string
}

func (e LegacySubmitError) Error() string {
	return fmt.Sprintf("ProcessBatchSubmitError %d: %s", e.Code, e.Msg)
}

// NewLegacySubmitError builds an error with the default message for code.
func NewLegacySubmitError(code int, msg string) LegacySubmitError {
	if msg == "" {
		switch code {
		case LegacyCodeGeneralFault:
			msg = "General fault"
		case LegacyCodeAlreadyRun:
			msg = "Already run before"
		}
	}
	return LegacySubmitError{Code: code, Msg: msg}
}

// LegacyErrorOf maps a run error to its legacy form.
func LegacyErrorOf(err error) LegacySubmitError {
	switch {
	case err == nil:
		return LegacySubmitError{}
	case errors.Is(err, batch.ErrAlreadyRun):
		return NewLegacySubmitError(LegacyCodeAlreadyRun, "")
	case errors.Is(err, batch.ErrInvalidCommand):
		return NewLegacySubmitError(LegacyCodeMessage, err.Error())
	case errors.Is(err, batch.ErrProcessing):
		return NewLegacySubmitError(LegacyCodeGeneralFault, "")
	}
	return NewLegacySubmitError(LegacyCodeMessage, err.Error())
}

// Runner executes batch runs.
type Runner interface {
	Run(ctx context.Context, cmd RunCommand) (*RunSummary, error)
}

// SubmitService adapts run outcomes to the legacy list-of-errors contract.
type SubmitService struct {
	runner Runner
}

// NewSubmitService constructs a SubmitService.
func NewSubmitService(runner Runner) *SubmitService {
	return &SubmitService{runner: runner}
}

// Submit runs the batch and returns legacy error strings, empty on success.
func (s *SubmitService) Submit(ctx context.Context, auditUserID int64, locationID *int64, year, month int) []string {
	_, errs := s.SubmitCommand(ctx, RunCommand{
		AuditUserID: auditUserID,
		LocationID:  locationID,
		Month:       month,
		Year:        year,
	})
	return errs
}

// SubmitCommand runs cmd and returns the summary alongside the legacy
// error strings. The summary is nil whenever errors are returned.
func (s *SubmitService) SubmitCommand(ctx context.Context, cmd RunCommand) (*RunSummary, []string) {
	if s == nil || s.runner == nil {
		return nil, []string{NewLegacySubmitError(LegacyCodeMessage, "batch runner not configured").Error()}
	}
	summary, err := s.runner.Run(ctx, cmd)
	if err != nil {
		return nil, []string{LegacyErrorOf(err).Error()}
	}
	return summary, []string{}
}
