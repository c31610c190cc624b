package ledger

import (
	"strings"
	"time"
)

// State represents the lifecycle of a job.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

var allStates = []State{
	StateQueued,
	StateRunning,
	StateCompleted,
	StateFailed,
}

var stateSet = func() map[State]struct{} {
	set := make(map[State]struct{}, len(allStates))
	for _, state := range allStates {
		set[state] = struct{}{}
	}
	return set
}()

// Operation identifies the kind of processing a job performs.
type Operation string

const (
	OpProcess   Operation = "process"
	OpReprocess Operation = "reprocess"
	OpInpaint   Operation = "inpaint"
	OpExport    Operation = "export"
)

var allOperations = []Operation{OpProcess, OpReprocess, OpInpaint, OpExport}

var operationSet = func() map[Operation]struct{} {
	set := make(map[Operation]struct{}, len(allOperations))
	for _, op := range allOperations {
		set[op] = struct{}{}
	}
	return set
}()

// Job is the durable record of one unit of asynchronous processing work.
// Settings are snapshotted at submission and never mutated; terminal
// states are immutable. Jobs are retained as audit records and never
// deleted by the core.
type Job struct {
	ID            string
	ProjectID     string
	Operation     Operation
	Input         string
	SettingsJSON  string
	State         State
	Output        string
	ErrorCode     string
	ErrorMessage  string
	Percent       float64
	WorkerID      string
	CreatedAt     time.Time
	StartedAt     *time.Time
	FinishedAt    *time.Time
	LastHeartbeat *time.Time
}

// Terminal reports whether the job has reached an immutable state.
func (j *Job) Terminal() bool {
	return j.State == StateCompleted || j.State == StateFailed
}

// InFlight reports whether the job still occupies the project's single
// in-flight allowance.
func (j *Job) InFlight() bool {
	return j.State == StateQueued || j.State == StateRunning
}

// Err returns the structured failure reason for a failed job, or nil.
func (j *Job) Err() *JobError {
	if j.State != StateFailed {
		return nil
	}
	return &JobError{Code: j.ErrorCode, Message: j.ErrorMessage}
}

// Generation is a named, user-visible result derived from a completed
// job. Deleting a generation removes only the user-facing pointer; the
// job that produced it remains as an audit record.
type Generation struct {
	ID        string
	ProjectID string
	JobID     string
	Name      string
	Artifact  string
	CreatedAt time.Time
}

// Stats is a count of jobs grouped by state.
type Stats map[State]int

// Depth returns the number of queued jobs.
func (s Stats) Depth() int { return s[StateQueued] }

// Running returns the number of running jobs.
func (s Stats) Running() int { return s[StateRunning] }

// HealthSummary describes aggregated job counts per lifecycle state.
type HealthSummary struct {
	Total     int
	Queued    int
	Running   int
	Completed int
	Failed    int
}

// AllStates returns the ordered list of known states.
func AllStates() []State {
	cp := make([]State, len(allStates))
	copy(cp, allStates)
	return cp
}

// ParseState converts a string into a known State.
func ParseState(value string) (State, bool) {
	normalized := State(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stateSet[normalized]
	return normalized, ok
}

// ParseOperation converts a string into a known Operation.
func ParseOperation(value string) (Operation, bool) {
	normalized := Operation(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := operationSet[normalized]
	return normalized, ok
}
