package event

import "fmt"

// Code is the pipeline error taxonomy.
type Code string

const (
	CodeValidation Code = "VALIDATION_ERROR"
	CodeInternal   Code = "INTERNAL_ERROR"
)

// Severity of a pipeline error or validation issue.
type Severity string

const (
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
	SeverityFatal Severity = "FATAL"
)

// ReasonDuplicate is recorded on events ignored by deduplication.
const ReasonDuplicate = "Duplicate Detected"

// PipelineError is attached to a raw event when a stage fails. It is never
// retried inside the pipeline.
type PipelineError struct {
	RawEventID string                 `json:"raw_event_id"`
	Code       Code                   `json:"code"`
	Message    string                 `json:"message"`
	Severity   Severity               `json:"severity"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Code, e.Severity, e.Message)
}

// NewValidationError builds the VALIDATION_ERROR attached to events whose
// payload failed validation.
func NewValidationError(rawEventID, msg string, details map[string]interface{}) *PipelineError {
	return &PipelineError{
		RawEventID: rawEventID,
		Code:       CodeValidation,
		Message:    msg,
		Severity:   SeverityError,
		Details:    details,
	}
}

// NewInternalError builds the FATAL INTERNAL_ERROR for unexpected faults
// after validation.
func NewInternalError(rawEventID string, err error, stage string) *PipelineError {
	return &PipelineError{
		RawEventID: rawEventID,
		Code:       CodeInternal,
		Message:    err.Error(),
		Severity:   SeverityFatal,
		Details:    map[string]interface{}{"stage": stage},
	}
}
