package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/artpar/flowgate/domain/datatype"
	"github.com/artpar/flowgate/domain/flow"
)

// Validation errors. Both are per-request.
var (
	ErrInputValidationFailed  = errors.New("input validation failed")
	ErrOutputValidationFailed = errors.New("output validation failed")
)

// Stage names the side of a flow call a validation ran on.
type Stage string

const (
	StageInput  Stage = "input"
	StageOutput Stage = "output"
)

// ValidationError carries the rules a flow's input or output failed.
type ValidationError struct {
	Stage          Stage
	FlowID         string
	TypeIdentifier string
	Violations     []datatype.Violation
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: flow %s, type %s, %d violation(s)",
		e.sentinel(), e.FlowID, e.TypeIdentifier, len(e.Violations))
}

// Is matches ErrInputValidationFailed or ErrOutputValidationFailed.
func (e *ValidationError) Is(target error) bool {
	return target == e.sentinel()
}

func (e *ValidationError) sentinel() error {
	if e.Stage == StageOutput {
		return ErrOutputValidationFailed
	}
	return ErrInputValidationFailed
}

// Report renders the violations for the adapter.
func (e *ValidationError) Report() datatype.Report {
	return datatype.NewReport(e.Violations)
}

// ErrorResponse is the protocol-neutral classification of a dispatch error.
type ErrorResponse struct {
	Status  int
	Code    string
	Message string
	Report  *datatype.Report
}

func (e *ErrorResponse) Error() string {
	return e.Code + ": " + e.Message
}

// Predefined classifications.
var (
	ErrRespNoMatch = ErrorResponse{
		Status:  404,
		Code:    "no_matching_flow",
		Message: "No flow is registered for this request",
	}
	ErrRespAmbiguous = ErrorResponse{
		Status:  409,
		Code:    "ambiguous_flow",
		Message: "More than one flow matches this request",
	}
	ErrRespInvalidInput = ErrorResponse{
		Status:  400,
		Code:    "invalid_input",
		Message: "Request does not satisfy the flow input type",
	}
	ErrRespInvalidOutput = ErrorResponse{
		Status:  500,
		Code:    "invalid_output",
		Message: "Flow produced a result that does not satisfy its return type",
	}
	ErrRespTimeout = ErrorResponse{
		Status:  504,
		Code:    "execution_timeout",
		Message: "Flow execution timed out",
	}
	ErrRespCanceled = ErrorResponse{
		Status:  503,
		Code:    "execution_canceled",
		Message: "Flow execution was canceled",
	}
	ErrRespExecution = ErrorResponse{
		Status:  502,
		Code:    "execution_failed",
		Message: "Flow execution failed",
	}
)

// ClassifyError maps a dispatch error to a response class. Adapters encode
// the result for their protocol.
func ClassifyError(err error) *ErrorResponse {
	var resp ErrorResponse
	var verr *ValidationError

	switch {
	case errors.Is(err, flow.ErrNoMatch):
		resp = ErrRespNoMatch
	case errors.Is(err, flow.ErrAmbiguousMatch):
		resp = ErrRespAmbiguous
	case errors.As(err, &verr):
		if verr.Stage == StageOutput {
			resp = ErrRespInvalidOutput
		} else {
			resp = ErrRespInvalidInput
		}
		report := verr.Report()
		resp.Report = &report
	case errors.Is(err, context.DeadlineExceeded):
		resp = ErrRespTimeout
	case errors.Is(err, context.Canceled):
		resp = ErrRespCanceled
	default:
		resp = ErrRespExecution
		if err != nil {
			resp.Message = err.Error()
		}
	}
	return &resp
}

// Outcome labels a dispatch result for metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, flow.ErrNoMatch):
		return "no_match"
	case errors.Is(err, flow.ErrAmbiguousMatch):
		return "ambiguous"
	case errors.Is(err, ErrInputValidationFailed):
		return "input_invalid"
	case errors.Is(err, ErrOutputValidationFailed):
		return "output_invalid"
	default:
		return "execution_error"
	}
}
