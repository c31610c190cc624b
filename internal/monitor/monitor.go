package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"overtone/internal/config"
	"overtone/internal/ledger"
	"overtone/internal/logging"
	"overtone/internal/notifications"
)

// PoolInfo is the slice of the worker pool the monitor observes.
type PoolInfo interface {
	Capacity() int
	Busy() int
}

// Snapshot is one point-in-time reading of system health. Queue depth
// and error rate come from the job store, which stays authoritative
// even when transport signals are lost.
type Snapshot struct {
	QueueDepth   int
	Running      int
	ActiveSlots  int
	Capacity     int
	ErrorRate    float64
	WindowSize   int
	SampledAt    time.Time
	QueueAlert   bool
	ErrorAlert   bool
}

// Monitor samples job statistics on a fixed interval and raises
// edge-triggered alerts when thresholds are crossed. An alert fires
// once on the way up and a recovery notice once on the way down;
// staying above a threshold produces no repeats.
type Monitor struct {
	store    *ledger.Store
	pool     PoolInfo
	notifier notifications.Service
	logger   *slog.Logger

	interval       time.Duration
	errorWindow    int
	depthThreshold int
	rateThreshold  float64

	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}
	latest     Snapshot
	queueAlert bool
	errorAlert bool
}

func New(cfg *config.Config, store *ledger.Store, pool PoolInfo, notifier notifications.Service, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Monitor{
		store:          store,
		pool:           pool,
		notifier:       notifier,
		logger:         logger.With(logging.String(logging.FieldComponent, "monitor")),
		interval:       time.Duration(cfg.Monitor.SampleInterval) * time.Second,
		errorWindow:    cfg.Monitor.ErrorWindow,
		depthThreshold: cfg.Monitor.QueueDepthThreshold,
		rateThreshold:  cfg.Monitor.ErrorRateThreshold,
	}
}

// Start launches the sampling loop.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true
	go m.run(runCtx)
}

// Stop halts sampling and waits for the loop to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	done := m.done
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	<-done
}

// Latest returns the most recent snapshot. The zero snapshot is
// returned before the first sample lands.
func (m *Monitor) Latest() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// Take an immediate reading so status queries right after startup
	// see real numbers instead of zeros.
	m.sample(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample(ctx)
		}
	}
}

func (m *Monitor) sample(ctx context.Context) {
	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Error("stats sample failed", logging.Error(err))
		return
	}
	rate, window, err := m.errorRate(ctx)
	if err != nil {
		m.logger.Error("error rate sample failed", logging.Error(err))
		return
	}

	snap := Snapshot{
		QueueDepth: stats.Depth(),
		Running:    stats.Running(),
		ErrorRate:  rate,
		WindowSize: window,
		SampledAt:  time.Now(),
	}
	if m.pool != nil {
		snap.ActiveSlots = m.pool.Busy()
		snap.Capacity = m.pool.Capacity()
	}

	m.evaluateAlerts(ctx, &snap)

	m.mu.Lock()
	m.latest = snap
	m.mu.Unlock()
}

// errorRate computes the failure fraction over the trailing window of
// finished jobs. Fewer finished jobs than the window simply shrinks the
// window; an empty history reads as a zero rate.
func (m *Monitor) errorRate(ctx context.Context) (float64, int, error) {
	states, err := m.store.RecentFinished(ctx, m.errorWindow)
	if err != nil {
		return 0, 0, err
	}
	if len(states) == 0 {
		return 0, 0, nil
	}
	failed := 0
	for _, state := range states {
		if state == ledger.StateFailed {
			failed++
		}
	}
	return float64(failed) / float64(len(states)), len(states), nil
}

func (m *Monitor) evaluateAlerts(ctx context.Context, snap *Snapshot) {
	depthHigh := m.depthThreshold > 0 && snap.QueueDepth > m.depthThreshold
	rateHigh := m.rateThreshold > 0 && snap.ErrorRate > m.rateThreshold

	m.mu.Lock()
	queueEdgeUp := depthHigh && !m.queueAlert
	queueEdgeDown := !depthHigh && m.queueAlert
	errorEdgeUp := rateHigh && !m.errorAlert
	errorEdgeDown := !rateHigh && m.errorAlert
	m.queueAlert = depthHigh
	m.errorAlert = rateHigh
	m.mu.Unlock()

	snap.QueueAlert = depthHigh
	snap.ErrorAlert = rateHigh

	switch {
	case queueEdgeUp:
		m.logger.Warn("queue depth above threshold",
			logging.Int("depth", snap.QueueDepth),
			logging.Int("threshold", m.depthThreshold))
		if err := m.notifier.NotifyQueueBacklog(ctx, snap.QueueDepth, m.depthThreshold); err != nil {
			m.logger.Warn("backlog notification failed", logging.Error(err))
		}
	case queueEdgeDown:
		m.logger.Info("queue depth recovered", logging.Int("depth", snap.QueueDepth))
		if err := m.notifier.NotifyQueueRecovered(ctx, snap.QueueDepth); err != nil {
			m.logger.Warn("recovery notification failed", logging.Error(err))
		}
	}

	switch {
	case errorEdgeUp:
		m.logger.Warn("error rate above threshold",
			logging.Float64("rate", snap.ErrorRate),
			logging.Float64("threshold", m.rateThreshold))
		if err := m.notifier.NotifyErrorRateHigh(ctx, snap.ErrorRate, m.rateThreshold); err != nil {
			m.logger.Warn("error rate notification failed", logging.Error(err))
		}
	case errorEdgeDown:
		m.logger.Info("error rate recovered", logging.Float64("rate", snap.ErrorRate))
		if err := m.notifier.NotifyErrorRateRecovered(ctx, snap.ErrorRate); err != nil {
			m.logger.Warn("recovery notification failed", logging.Error(err))
		}
	}
}
