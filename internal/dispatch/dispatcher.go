package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"overtone/internal/engine"
	"overtone/internal/ledger"
	"overtone/internal/logging"
	"overtone/internal/transport"
)

const generationRefPrefix = "gen:"

// Canceller is the slice of the worker pool the dispatcher needs for
// best-effort cancellation of running jobs.
type Canceller interface {
	CancelJob(jobID string) bool
}

// Dispatcher is the submission front door. It resolves inputs,
// snapshots settings, creates the durable job row, and nudges the
// worker pool. All admission decisions happen in the job store; the
// dispatcher never holds state of its own.
type Dispatcher struct {
	store  *ledger.Store
	queue  transport.Transport
	pool   Canceller
	logger *slog.Logger
}

func New(store *ledger.Store, queue transport.Transport, pool Canceller, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Dispatcher{
		store:  store,
		queue:  queue,
		pool:   pool,
		logger: logger.With(logging.String(logging.FieldComponent, "dispatch")),
	}
}

// SubmitRequest describes one job submission.
type SubmitRequest struct {
	ProjectID string
	Operation string
	// Input is either an artifact ref ("art:...") or a generation ref
	// ("gen:<id>") naming a previous result to build on.
	Input    string
	Settings engine.Settings
}

// Submit validates and persists a new job, then signals the pool.
// Returns ledger.ErrConflict when the project already has a job in
// flight and ledger.ErrNotFound when the input names a deleted
// generation.
func (d *Dispatcher) Submit(ctx context.Context, req SubmitRequest) (*ledger.Job, error) {
	projectID := strings.TrimSpace(req.ProjectID)
	if projectID == "" {
		return nil, errors.New("project id is required")
	}
	op, ok := ledger.ParseOperation(req.Operation)
	if !ok {
		return nil, fmt.Errorf("unknown operation %q", req.Operation)
	}

	input, err := d.resolveInput(ctx, strings.TrimSpace(req.Input))
	if err != nil {
		return nil, err
	}

	settingsJSON, err := req.Settings.Encode()
	if err != nil {
		return nil, err
	}

	job, err := d.store.Submit(ctx, projectID, op, input, settingsJSON)
	if err != nil {
		return nil, err
	}

	logger := d.logger.With(
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldProjectID, projectID),
		logging.String(logging.FieldOperation, string(op)),
	)
	logger.Info("job submitted")

	// The signal is a latency hint only. A failed enqueue is logged and
	// swallowed: workers poll the store, so the job still runs.
	if err := d.queue.Enqueue(ctx, job.ID); err != nil {
		logger.Warn("queue signal failed, job will be picked up by polling", logging.Error(err))
	}
	return job, nil
}

// resolveInput pins generation refs to their underlying artifact at
// submission time. A job therefore keeps producing the same output even
// if the generation it was submitted against is deleted later.
func (d *Dispatcher) resolveInput(ctx context.Context, input string) (string, error) {
	if input == "" {
		return "", errors.New("input is required")
	}
	if !strings.HasPrefix(input, generationRefPrefix) {
		return input, nil
	}
	gen, err := d.store.GetGeneration(ctx, strings.TrimPrefix(input, generationRefPrefix))
	if err != nil {
		return "", err
	}
	return gen.Artifact, nil
}

// Progress describes the observable state of a project's latest job.
type Progress struct {
	JobID      string
	State      ledger.State
	Operation  ledger.Operation
	Percent    float64
	ErrorCode  string
	Error      string
	ETASeconds float64
}

// ProjectProgress reports the project's in-flight job, or its most
// recently finished one when nothing is in flight. Returns
// ledger.ErrNotFound when the project has no jobs at all.
func (d *Dispatcher) ProjectProgress(ctx context.Context, projectID string) (*Progress, error) {
	job, err := d.store.CurrentForProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ledger.ErrNotFound
	}
	report := &Progress{
		JobID:     job.ID,
		State:     job.State,
		Operation: job.Operation,
		Percent:   job.Percent,
		ErrorCode: job.ErrorCode,
		Error:     job.ErrorMessage,
	}
	if job.State == ledger.StateRunning {
		report.ETASeconds = estimateETA(job, time.Now())
	}
	if job.State == ledger.StateCompleted {
		report.Percent = 100
	}
	return report, nil
}

// estimateETA extrapolates remaining time from the progress rate so
// far. Zero means no estimate is available yet.
func estimateETA(job *ledger.Job, now time.Time) float64 {
	if job.StartedAt == nil || job.Percent <= 0 || job.Percent >= 100 {
		return 0
	}
	elapsed := now.Sub(*job.StartedAt).Seconds()
	if elapsed <= 0 {
		return 0
	}
	rate := job.Percent / elapsed
	return (100 - job.Percent) / rate
}

// Cancel stops a job. Queued jobs are cancelled directly in the store;
// running jobs get a best-effort interrupt delivered to the pool, and
// the outcome is whatever the worker records. Terminal jobs return
// ledger.ErrInvalidState.
func (d *Dispatcher) Cancel(ctx context.Context, jobID string) error {
	err := d.store.Cancel(ctx, jobID)
	if err == nil {
		d.logger.Info("queued job cancelled", logging.String(logging.FieldJobID, jobID))
		return nil
	}
	if !errors.Is(err, ledger.ErrInvalidState) {
		return err
	}

	job, getErr := d.store.GetByID(ctx, jobID)
	if getErr != nil {
		return getErr
	}
	if job.State != ledger.StateRunning {
		return err
	}
	if d.pool != nil && d.pool.CancelJob(jobID) {
		d.logger.Info("running job interrupt requested", logging.String(logging.FieldJobID, jobID))
		return nil
	}
	return fmt.Errorf("job %s is running but not interruptible here: %w", jobID, ledger.ErrInvalidState)
}

// Requeue returns a stale running job to the queue. This is an explicit
// operator action: the daemon never requeues on its own, because a slow
// worker and a dead one look identical from the outside.
func (d *Dispatcher) Requeue(ctx context.Context, jobID string) error {
	if err := d.store.Requeue(ctx, jobID); err != nil {
		return err
	}
	d.logger.Info("job requeued", logging.String(logging.FieldJobID, jobID))
	if err := d.queue.Enqueue(ctx, jobID); err != nil {
		d.logger.Warn("queue signal failed after requeue", logging.Error(err))
	}
	return nil
}

// StaleRunning lists running jobs whose last heartbeat is older than
// the timeout, as candidates for operator requeue.
func (d *Dispatcher) StaleRunning(ctx context.Context, timeout time.Duration) ([]*ledger.Job, error) {
	return d.store.StaleRunning(ctx, time.Now().Add(-timeout))
}
