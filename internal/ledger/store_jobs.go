package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const jobColumns = "id, project_id, operation, input, settings_json, state, output, error_code, error_message, percent, worker_id, created_at, started_at, finished_at, last_heartbeat"

// Submit persists a new queued job, enforcing the per-project invariant:
// at most one job in {queued, running} at a time. The check and insert
// execute as a single statement so concurrent submitters cannot both
// win.
func (s *Store) Submit(ctx context.Context, projectID string, op Operation, input, settingsJSON string) (*Job, error) {
	if projectID == "" {
		return nil, errors.New("project id is required")
	}
	if _, ok := operationSet[op]; !ok {
		return nil, fmt.Errorf("unknown operation %q", op)
	}
	if input == "" {
		return nil, errors.New("input reference is required")
	}
	if settingsJSON == "" {
		settingsJSON = "{}"
	}

	id := uuid.NewString()
	now := formatTime(time.Now())

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (id, project_id, operation, input, settings_json, state, percent, created_at)
         SELECT ?, ?, ?, ?, ?, ?, 0, ?
         WHERE NOT EXISTS (
             SELECT 1 FROM jobs WHERE project_id = ? AND state IN (?, ?)
         )`,
		id,
		projectID,
		op,
		input,
		settingsJSON,
		StateQueued,
		now,
		projectID,
		StateQueued,
		StateRunning,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrConflict)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a job by identifier. Unknown identifiers return an
// error wrapping ErrNotFound.
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// CurrentForProject returns the project's most recent job, or nil.
func (s *Store) CurrentForProject(ctx context.Context, projectID string) (*Job, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+jobColumns+` FROM jobs WHERE project_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		projectID,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("current job for project: %w", err)
	}
	return job, nil
}

// NextQueued returns the oldest queued job, or nil when the queue is empty.
func (s *Store) NextQueued(ctx context.Context) (*Job, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+jobColumns+` FROM jobs WHERE state = ? ORDER BY created_at, id LIMIT 1`,
		StateQueued,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next queued job: %w", err)
	}
	return job, nil
}

// Claim transitions a job from queued to running on behalf of a worker
// slot. The conditional update is the single mutual-exclusion point in
// the system: exactly one caller can win a given job. A false return
// with nil error means another slot won or the job is no longer queued;
// duplicate queue signals land here as no-ops.
func (s *Store) Claim(ctx context.Context, jobID, workerID string) (bool, error) {
	if workerID == "" {
		return false, errors.New("worker id is required")
	}
	now := formatTime(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET state = ?, worker_id = ?, started_at = ?, last_heartbeat = ?
         WHERE id = ? AND state = ?`,
		StateRunning,
		workerID,
		now,
		now,
		jobID,
		StateQueued,
	)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

// Complete transitions a running job to completed with its output
// artifact reference. Terminal states are immutable; completing a job
// that is no longer running returns ErrInvalidState (the caller lost a
// cancellation race or the job was requeued by an operator).
func (s *Store) Complete(ctx context.Context, jobID, output string) error {
	if output == "" {
		return errors.New("output reference is required")
	}
	now := formatTime(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET state = ?, output = ?, percent = 100, finished_at = ?, last_heartbeat = NULL
         WHERE id = ? AND state = ?`,
		StateCompleted,
		output,
		now,
		jobID,
		StateRunning,
	)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return s.checkTransition(ctx, res, jobID)
}

// Fail transitions a running job to failed with a structured reason.
func (s *Store) Fail(ctx context.Context, jobID string, jobErr *JobError) error {
	if jobErr == nil {
		jobErr = &JobError{Code: CodeEngineFailure, Message: "unknown failure"}
	}
	now := formatTime(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET state = ?, error_code = ?, error_message = ?, finished_at = ?, last_heartbeat = NULL
         WHERE id = ? AND state = ?`,
		StateFailed,
		jobErr.Code,
		jobErr.Message,
		now,
		jobID,
		StateRunning,
	)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return s.checkTransition(ctx, res, jobID)
}

// Cancel transitions a queued job directly to failed/Cancelled before
// any slot claims it. Cancelling a running or terminal job returns
// ErrInvalidState; running jobs are cancelled best-effort through the
// worker pool instead.
func (s *Store) Cancel(ctx context.Context, jobID string) error {
	cancelErr := Cancelled()
	now := formatTime(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET state = ?, error_code = ?, error_message = ?, finished_at = ?
         WHERE id = ? AND state = ?`,
		StateFailed,
		cancelErr.Code,
		cancelErr.Message,
		now,
		jobID,
		StateQueued,
	)
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	return s.checkTransition(ctx, res, jobID)
}

func (s *Store) checkTransition(ctx context.Context, res sql.Result, jobID string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}
	job, err := s.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	return fmt.Errorf("job %s is %s: %w", jobID, job.State, ErrInvalidState)
}

// UpdateProgress records an engine-reported progress fraction for a
// running job. Progress on non-running jobs is silently ignored; a late
// report from a cancelled engine must not resurrect the record.
func (s *Store) UpdateProgress(ctx context.Context, jobID string, percent float64) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	_, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET percent = ? WHERE id = ? AND state = ?`,
		percent,
		jobID,
		StateRunning,
	)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// UpdateHeartbeat refreshes the liveness timestamp for a running job.
func (s *Store) UpdateHeartbeat(ctx context.Context, jobID string) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET last_heartbeat = ? WHERE id = ? AND state = ?`,
		formatTime(time.Now()),
		jobID,
		StateRunning,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// StaleRunning lists running jobs whose heartbeat predates the cutoff.
// These jobs belong to slots presumed crashed; they are surfaced for
// operator review and are never requeued automatically.
func (s *Store) StaleRunning(ctx context.Context, cutoff time.Time) ([]*Job, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+jobColumns+` FROM jobs
         WHERE state = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?
         ORDER BY created_at`,
		StateRunning,
		formatTime(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("query stale running: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// Requeue resets a stale running job back to queued. This is an explicit
// operator action (crash recovery); it refuses jobs that are not running
// so a completed job can never be double-processed.
func (s *Store) Requeue(ctx context.Context, jobID string) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET state = ?, worker_id = NULL, started_at = NULL, last_heartbeat = NULL, percent = 0
         WHERE id = ? AND state = ?`,
		StateQueued,
		jobID,
		StateRunning,
	)
	if err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	return s.checkTransition(ctx, res, jobID)
}

// List returns jobs filtered by state set (or all jobs when no state is provided).
func (s *Store) List(ctx context.Context, states ...State) ([]*Job, error) {
	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at, id`

	var (
		rows *sql.Rows
		err  error
	)
	if len(states) == 0 {
		rows, err = s.db.QueryContext(ensureContext(ctx), baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(states))
		args := make([]any, len(states))
		for i, state := range states {
			args[i] = state
		}
		rows, err = s.db.QueryContext(ensureContext(ctx), baseQuery+` WHERE state IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// RecentFinished returns the states of the most recently finished jobs,
// newest first, bounded by limit. The monitor derives its trailing
// error rate from this window.
func (s *Store) RecentFinished(ctx context.Context, limit int) ([]State, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT state FROM jobs
         WHERE finished_at IS NOT NULL
         ORDER BY finished_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent finished: %w", err)
	}
	defer rows.Close()

	var states []State
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		states = append(states, State(raw))
	}
	return states, rows.Err()
}

// Stats returns a count of jobs grouped by state.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT state, COUNT(1) FROM jobs GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("ledger stats: %w", err)
	}
	defer rows.Close()

	stats := make(Stats)
	for rows.Next() {
		var state State
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		stats[state] = count
	}
	return stats, rows.Err()
}

// Health aggregates ledger state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for state, count := range stats {
		health.Total += count
		switch state {
		case StateQueued:
			health.Queued += count
		case StateRunning:
			health.Running += count
		case StateCompleted:
			health.Completed += count
		case StateFailed:
			health.Failed += count
		}
	}
	return health, nil
}

func collectJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id           string
		projectID    string
		operation    string
		input        string
		settingsJSON string
		stateStr     string
		output       sql.NullString
		errorCode    sql.NullString
		errorMessage sql.NullString
		percent      sql.NullFloat64
		workerID     sql.NullString
		createdRaw   string
		startedRaw   sql.NullString
		finishedRaw  sql.NullString
		heartbeatRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&projectID,
		&operation,
		&input,
		&settingsJSON,
		&stateStr,
		&output,
		&errorCode,
		&errorMessage,
		&percent,
		&workerID,
		&createdRaw,
		&startedRaw,
		&finishedRaw,
		&heartbeatRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:           id,
		ProjectID:    projectID,
		Operation:    Operation(operation),
		Input:        input,
		SettingsJSON: settingsJSON,
		State:        State(stateStr),
		Output:       output.String,
		ErrorCode:    errorCode.String,
		ErrorMessage: errorMessage.String,
		Percent:      percent.Float64,
		WorkerID:     workerID.String,
	}

	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			job.StartedAt = &started
		}
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			job.FinishedAt = &finished
		}
	}
	if heartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(heartbeatRaw.String); err == nil {
			job.LastHeartbeat = &heartbeat
		}
	}
	return job, nil
}
