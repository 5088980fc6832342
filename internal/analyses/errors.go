package analyses

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a classification result does not exist.
	ErrNotFound = errors.New("classification result not found")
	// ErrMalformedResponse is returned when the model reply cannot be parsed
	// into the task schema even after a repair attempt.
	ErrMalformedResponse = errors.New("malformed model response")
	// ErrInvalidSelection is returned when the model keeps choosing a
	// counterparty code outside the candidate set.
	ErrInvalidSelection = errors.New("invalid counterparty code selected")
)

// AnalysisFailedError reports that both classification tasks failed. It keeps
// the per-task causes so callers can distinguish outage from bad output.
type AnalysisFailedError struct {
	JurisdictionErr error
	CounterpartyErr error
}

func (e *AnalysisFailedError) Error() string {
	return fmt.Sprintf("analysis failed: jurisdiction: %v; counterparty: %v", e.JurisdictionErr, e.CounterpartyErr)
}

func (e *AnalysisFailedError) Unwrap() []error {
	return []error{e.JurisdictionErr, e.CounterpartyErr}
}
