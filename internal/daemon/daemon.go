package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/gofrs/flock"

	"overtone/internal/artifact"
	"overtone/internal/config"
	"overtone/internal/dispatch"
	"overtone/internal/engine"
	"overtone/internal/ledger"
	"overtone/internal/logging"
	"overtone/internal/monitor"
	"overtone/internal/notifications"
	"overtone/internal/pool"
	"overtone/internal/transport"
)

// Daemon wires the job store, worker pool, dispatcher, and monitor
// together and enforces single-instance execution through a lock file.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *ledger.Store
	artifacts  artifact.Store
	queue      transport.Transport
	pool       *pool.Pool
	dispatcher *dispatch.Dispatcher
	monitor    *monitor.Monitor
	notifier   notifications.Service

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	LedgerPath   string
	LockFilePath string
	Health       ledger.HealthSummary
	Capacity     int
	ActiveSlots  int
}

// New constructs a daemon with all dependencies initialized. The
// context is used for the initial transport connection only.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires configuration")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	store, err := ledger.Open(cfg)
	if err != nil {
		return nil, err
	}

	fsStore, err := artifact.NewFSStore(cfg.Paths.ArtifactDir)
	if err != nil {
		store.Close()
		return nil, err
	}
	artifacts := artifact.WithRetry(fsStore)

	queue, err := newTransport(ctx, cfg, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	notifier := notifications.NewService(&cfg.Notifications)
	eng := engine.New(float64(cfg.Engine.MaxInputSeconds))

	workerPool := pool.New(cfg, store, artifacts, eng, queue, notifier, logger)
	dispatcher := dispatch.New(store, queue, workerPool, logger)
	mon := monitor.New(cfg, store, workerPool, notifier, logger)

	lockPath := filepath.Join(cfg.Paths.LogDir, "overtoned.lock")
	d := &Daemon{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		artifacts:  artifacts,
		queue:      queue,
		pool:       workerPool,
		dispatcher: dispatcher,
		monitor:    mon,
		notifier:   notifier,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}

	d.api, err = newAPIServer(cfg, d, logger)
	if err != nil {
		d.closeResources()
		return nil, err
	}
	return d, nil
}

func newTransport(ctx context.Context, cfg *config.Config, logger *slog.Logger) (transport.Transport, error) {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		logger.Info("using in-process queue transport")
		return transport.NewMemory(), nil
	}
	logger.Info("using redis queue transport", logging.String("addr", addr))
	return transport.NewRedis(ctx, &cfg.Redis)
}

// Start acquires the daemon lock and launches the pool, monitor, and
// API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another overtone daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.pool.Start(runCtx); err != nil {
		cancel()
		d.cancel = nil
		_ = d.lock.Unlock()
		return fmt.Errorf("start pool: %w", err)
	}
	d.monitor.Start(runCtx)

	if d.api != nil {
		if err := d.api.start(runCtx); err != nil {
			d.monitor.Stop()
			d.pool.Stop()
			cancel()
			d.cancel = nil
			_ = d.lock.Unlock()
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("overtone daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop halts background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.api != nil {
		d.api.stop()
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.monitor.Stop()
	d.pool.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("overtone daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return d.closeResources()
}

func (d *Daemon) closeResources() error {
	var errs []error
	if d.queue != nil {
		if err := d.queue.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Status reports daemon runtime information.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LedgerPath:   d.store.Path(),
		LockFilePath: d.lockPath,
		Capacity:     d.pool.Capacity(),
		ActiveSlots:  d.pool.Busy(),
	}
	if health, err := d.store.Health(ctx); err == nil {
		status.Health = health
	} else {
		d.logger.Warn("health query failed", logging.Error(err))
	}
	return status
}

// Dispatcher exposes the submission surface for the API server.
func (d *Daemon) Dispatcher() *dispatch.Dispatcher { return d.dispatcher }

// Store exposes the job ledger for read endpoints.
func (d *Daemon) Store() *ledger.Store { return d.store }

// Artifacts exposes the artifact store.
func (d *Daemon) Artifacts() artifact.Store { return d.artifacts }

// LockDir returns the directory holding the daemon lock file.
func (d *Daemon) LockDir() string { return filepath.Dir(d.lockPath) }

// Monitor exposes the metrics sampler.
func (d *Daemon) Monitor() *monitor.Monitor { return d.monitor }

// Pool exposes the worker pool for capacity control.
func (d *Daemon) Pool() *pool.Pool { return d.pool }

// Notifier exposes the notification service.
func (d *Daemon) Notifier() notifications.Service { return d.notifier }

// APIAddr returns the bound API address, or empty when disabled.
func (d *Daemon) APIAddr() string {
	if d.api == nil {
		return ""
	}
	return d.api.addr()
}

// HeartbeatTimeout is the staleness cutoff used for operator recovery
// listings.
func (d *Daemon) HeartbeatTimeout() time.Duration {
	return time.Duration(d.cfg.Pool.HeartbeatTimeout) * time.Second
}
