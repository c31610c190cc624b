package pool

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"overtone/internal/artifact"
	"overtone/internal/engine"
	"overtone/internal/ledger"
	"overtone/internal/logging"
	"overtone/internal/transport"
)

func (p *Pool) runSlot(ctx context.Context, slot int) {
	id := workerID(slot)
	logger := p.logger.With(logging.String(logging.FieldWorkerID, id))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !p.slotActive(slot) {
			p.waitOrShutdown(ctx)
			continue
		}

		job, delivery, err := p.nextJob(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Error("failed to fetch next job", logging.Error(err))
			p.waitOrShutdown(ctx)
			continue
		}
		if job == nil {
			continue
		}

		claimed, err := p.store.Claim(ctx, job.ID, id)
		if err != nil {
			logger.Error("claim failed", logging.Error(err), logging.String(logging.FieldJobID, job.ID))
			p.settleDelivery(ctx, delivery, false)
			p.waitOrShutdown(ctx)
			continue
		}
		if !claimed {
			// Duplicate signal or another slot won the claim.
			p.settleDelivery(ctx, delivery, true)
			continue
		}
		p.settleDelivery(ctx, delivery, true)

		p.runJob(ctx, logger, job, slot)
	}
}

// nextJob waits for a wake-up signal or a poll tick, then reads the
// oldest queued job from the store. A signal names a specific job but
// the store stays authoritative: the named job may already be claimed
// or cancelled, in which case the claim attempt simply fails.
func (p *Pool) nextJob(ctx context.Context) (*ledger.Job, *transport.Delivery, error) {
	delivery, err := p.queue.Dequeue(ctx, p.pollInterval)
	switch {
	case err == nil:
		job, err := p.store.GetByID(ctx, delivery.JobID)
		if errors.Is(err, ledger.ErrNotFound) {
			_ = p.queue.Ack(ctx, delivery)
			return nil, nil, nil
		}
		if err != nil {
			_ = p.queue.Nack(ctx, delivery)
			return nil, nil, err
		}
		if job.State != ledger.StateQueued {
			_ = p.queue.Ack(ctx, delivery)
			return nil, nil, nil
		}
		return job, &delivery, nil
	case errors.Is(err, transport.ErrEmpty):
		job, err := p.store.NextQueued(ctx)
		if err != nil {
			return nil, nil, err
		}
		return job, nil, nil
	default:
		return nil, nil, err
	}
}

func (p *Pool) settleDelivery(ctx context.Context, delivery *transport.Delivery, ack bool) {
	if delivery == nil {
		return
	}
	if ack {
		_ = p.queue.Ack(ctx, *delivery)
		return
	}
	_ = p.queue.Nack(ctx, *delivery)
}

func (p *Pool) waitOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.pollInterval):
	}
}

// runJob drives one claimed job to a terminal state. Every exit path
// writes either Complete or Fail; the claim is never abandoned.
func (p *Pool) runJob(ctx context.Context, logger *slog.Logger, job *ledger.Job, slot int) {
	jobCtx, cancelJob := context.WithCancel(ctx)
	if p.jobTimeout > 0 {
		var cancelTimeout context.CancelFunc
		jobCtx, cancelTimeout = context.WithTimeout(jobCtx, p.jobTimeout)
		defer cancelTimeout()
	}
	defer cancelJob()

	p.trackJob(slot, job.ID, cancelJob)
	defer p.untrackJob(slot, job.ID)

	logger = logger.With(
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldProjectID, job.ProjectID),
		logging.String(logging.FieldOperation, string(job.Operation)),
	)
	logger.Info("job started")
	started := time.Now()

	var wg sync.WaitGroup
	wg.Add(1)
	go p.heartbeatLoop(jobCtx, &wg, logger, job.ID)
	defer wg.Wait()

	// Terminal writes must land even when the pool context is already
	// cancelled, otherwise shutdown leaves phantom running rows.
	writeCtx := context.WithoutCancel(ctx)

	output, runErr := p.execute(jobCtx, job)
	if runErr != nil {
		p.failJob(writeCtx, logger, job, ctx, jobCtx, runErr)
		return
	}

	if err := p.store.Complete(writeCtx, job.ID, output); err != nil {
		logger.Error("failed to record completion", logging.Error(err))
		return
	}
	if job.Operation != ledger.OpExport {
		if _, err := p.store.CreateGeneration(writeCtx, job.ID, ""); err != nil {
			logger.Error("failed to record generation", logging.Error(err))
		}
	}
	logger.Info("job completed", logging.Duration("duration", time.Since(started)))
	if err := p.notifier.NotifyJobCompleted(writeCtx, job.ProjectID, string(job.Operation), time.Since(started)); err != nil {
		logger.Warn("completion notification failed", logging.Error(err))
	}
}

// execute resolves the input artifact, runs the engine, and stores the
// result, reporting progress into the job row along the way.
func (p *Pool) execute(ctx context.Context, job *ledger.Job) (string, error) {
	settings, err := engine.ParseSettings(job.SettingsJSON)
	if err != nil {
		return "", err
	}

	input, err := p.artifacts.Get(ctx, job.Input)
	if err != nil {
		return "", err
	}

	progress := func(percent float64) {
		_ = p.store.UpdateProgress(ctx, job.ID, percent)
	}
	result, err := p.engine.Execute(ctx, string(job.Operation), input, settings, progress)
	if err != nil {
		return "", err
	}

	ref, err := p.artifacts.Put(ctx, result, engine.ContentTypeWAV)
	if err != nil {
		return "", err
	}
	return ref, nil
}

func (p *Pool) failJob(writeCtx context.Context, logger *slog.Logger, job *ledger.Job, poolCtx, jobCtx context.Context, runErr error) {
	jobErr := classifyError(poolCtx, jobCtx, runErr)
	logger.Error("job failed", logging.Error(runErr), logging.String("code", jobErr.Code))

	if err := p.store.Fail(writeCtx, job.ID, jobErr); err != nil {
		logger.Error("failed to record failure", logging.Error(err))
		return
	}
	if err := p.notifier.NotifyJobFailed(writeCtx, job.ProjectID, string(job.Operation), jobErr.Message); err != nil {
		logger.Warn("failure notification failed", logging.Error(err))
	}
}

func (p *Pool) heartbeatLoop(ctx context.Context, wg *sync.WaitGroup, logger *slog.Logger, jobID string) {
	defer wg.Done()
	ticker := time.NewTicker(p.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.store.UpdateHeartbeat(ctx, jobID); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				logger.Warn("heartbeat update failed", logging.Error(err))
			}
		}
	}
}

// classifyError maps an execution error to the failure code recorded on
// the job. The contexts disambiguate cancellation reasons: a dead job
// deadline means timeout, a cancelled pool means shutdown, anything
// else is an operator cancel.
func classifyError(poolCtx, jobCtx context.Context, err error) *ledger.JobError {
	var invalidRegion *engine.InvalidRegionError
	var unsupported *engine.UnsupportedFormatError

	switch {
	case errors.As(err, &invalidRegion):
		return ledger.NewJobError(ledger.CodeInvalidRegion, err)
	case errors.As(err, &unsupported):
		return ledger.NewJobError(ledger.CodeUnsupportedFormat, err)
	case errors.Is(err, context.DeadlineExceeded):
		return ledger.NewJobError(ledger.CodeTimeout, err)
	case errors.Is(err, context.Canceled):
		if errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
			return ledger.NewJobError(ledger.CodeTimeout, err)
		}
		if poolCtx.Err() != nil {
			return &ledger.JobError{Code: ledger.CodeShutdown, Message: "worker pool shut down"}
		}
		return ledger.Cancelled()
	case errors.Is(err, artifact.ErrNotFound) || isFileErr(err):
		return ledger.NewJobError(ledger.CodeArtifactIO, err)
	default:
		return ledger.NewJobError(ledger.CodeEngineFailure, err)
	}
}

func isFileErr(err error) bool {
	var pathErr *fs.PathError
	return errors.As(err, &pathErr)
}
