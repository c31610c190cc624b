package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"overtone/internal/artifact"
	"overtone/internal/config"
	"overtone/internal/engine"
	"overtone/internal/ledger"
	"overtone/internal/logging"
	"overtone/internal/notifications"
	"overtone/internal/transport"
)

// Pool runs a fixed set of worker slots that claim queued jobs and
// drive them through the engine. Claiming goes through the job store's
// conditional update, so two slots waking on the same signal never run
// the same job.
type Pool struct {
	store     *ledger.Store
	artifacts artifact.Store
	engine    *engine.Engine
	queue     transport.Transport
	notifier  notifications.Service
	logger    *slog.Logger

	pollInterval      time.Duration
	heartbeatInterval time.Duration
	jobTimeout        time.Duration
	minWorkers        int
	maxWorkers        int

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	group    *errgroup.Group
	capacity int
	busy     int
	active   map[string]context.CancelFunc
	slotJobs map[int]string
}

// SlotInfo reports one slot's occupancy. Slots at or above the current
// capacity are parked and never carry a job.
type SlotInfo struct {
	Slot   int
	Worker string
	Active bool
	JobID  string
}

// New wires a pool from configuration. Capacity starts at the
// configured worker count, clamped to [min_workers, max_workers].
func New(cfg *config.Config, store *ledger.Store, artifacts artifact.Store, eng *engine.Engine, queue transport.Transport, notifier notifications.Service, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = logging.NewNop()
	}
	p := &Pool{
		store:             store,
		artifacts:         artifacts,
		engine:            eng,
		queue:             queue,
		notifier:          notifier,
		logger:            logger.With(logging.String(logging.FieldComponent, "pool")),
		pollInterval:      time.Duration(cfg.Pool.QueuePollInterval) * time.Second,
		heartbeatInterval: time.Duration(cfg.Pool.HeartbeatInterval) * time.Second,
		jobTimeout:        time.Duration(cfg.Engine.JobTimeout) * time.Second,
		minWorkers:        cfg.Pool.MinWorkers,
		maxWorkers:        cfg.Pool.MaxWorkers,
		active:            make(map[string]context.CancelFunc),
		slotJobs:          make(map[int]string),
	}
	p.capacity = clampCapacity(cfg.Pool.Workers, p.minWorkers, p.maxWorkers)
	return p
}

// Start launches one goroutine per potential slot. Slots above the
// current capacity stay parked until SetCapacity raises it.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.New("pool already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	p.cancel = cancel
	p.group = group
	p.running = true

	for i := 0; i < p.maxWorkers; i++ {
		slot := i
		group.Go(func() error {
			p.runSlot(groupCtx, slot)
			return nil
		})
	}
	return nil
}

// Stop cancels all slots and waits for in-flight jobs to settle. Jobs
// interrupted mid-run are failed with a shutdown code so they never
// linger as phantom running rows.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	group := p.group
	p.running = false
	p.cancel = nil
	p.group = nil
	p.mu.Unlock()

	cancel()
	_ = group.Wait()
}

// SetCapacity adjusts the number of slots allowed to claim new work,
// clamped to the configured bounds. Busy slots above the new capacity
// finish their current job and then park. Returns the applied value.
func (p *Pool) SetCapacity(n int) int {
	applied := clampCapacity(n, p.minWorkers, p.maxWorkers)
	p.mu.Lock()
	p.capacity = applied
	p.mu.Unlock()
	p.logger.Info("pool capacity changed", logging.Int("capacity", applied))
	return applied
}

// Capacity returns the current claim capacity.
func (p *Pool) Capacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity
}

// Busy returns the number of slots currently running a job.
func (p *Pool) Busy() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.busy
}

// CancelJob requests best-effort cancellation of a running job. Returns
// false when the job is not running in this pool.
func (p *Pool) CancelJob(jobID string) bool {
	p.mu.Lock()
	cancel, ok := p.active[jobID]
	p.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (p *Pool) slotActive(slot int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slot < p.capacity
}

// Slots reports the occupancy of every slot, parked ones included.
func (p *Pool) Slots() []SlotInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SlotInfo, p.maxWorkers)
	for i := range out {
		out[i] = SlotInfo{
			Slot:   i,
			Worker: workerID(i),
			Active: i < p.capacity,
			JobID:  p.slotJobs[i],
		}
	}
	return out
}

func (p *Pool) trackJob(slot int, jobID string, cancel context.CancelFunc) {
	p.mu.Lock()
	p.active[jobID] = cancel
	p.slotJobs[slot] = jobID
	p.busy++
	p.mu.Unlock()
}

func (p *Pool) untrackJob(slot int, jobID string) {
	p.mu.Lock()
	delete(p.active, jobID)
	delete(p.slotJobs, slot)
	p.busy--
	p.mu.Unlock()
}

func clampCapacity(n, min, max int) int {
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

func workerID(slot int) string {
	return fmt.Sprintf("worker-%d", slot)
}
