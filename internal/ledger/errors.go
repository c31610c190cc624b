package ledger

import (
	"errors"
	"fmt"
)

// Failure codes recorded on failed jobs. Every terminal failure carries
// one of these so callers can distinguish operator-actionable outcomes
// from caller errors.
const (
	CodeEngineFailure     = "engine_failure"
	CodeTimeout           = "timeout"
	CodeCancelled         = "cancelled"
	CodeArtifactIO        = "artifact_io"
	CodeInvalidRegion     = "invalid_region"
	CodeUnsupportedFormat = "unsupported_format"
	CodeShutdown          = "shutdown"
)

// ErrConflict indicates the project already has a job in flight.
var ErrConflict = errors.New("project already has a job in flight")

// ErrNotFound indicates the requested job, project, or generation does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidState indicates a transition was attempted from an incompatible state.
var ErrInvalidState = errors.New("invalid job state for transition")

// JobError is the structured failure reason persisted on failed jobs.
type JobError struct {
	Code    string
	Message string
}

func (e *JobError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewJobError builds a JobError from a code and an underlying cause.
func NewJobError(code string, err error) *JobError {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &JobError{Code: code, Message: msg}
}

// Cancelled is the failure recorded when a queued job is cancelled
// before any slot claims it.
func Cancelled() *JobError {
	return &JobError{Code: CodeCancelled, Message: "Cancelled"}
}
