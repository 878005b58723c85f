package daemon

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/onelife/shieldd/internal/domain"
	"github.com/onelife/shieldd/internal/policy"
	"github.com/onelife/shieldd/internal/reconcile"
)

// MonitorConfig holds the monitor process configuration.
type MonitorConfig struct {
	SweepInterval     time.Duration // expired-interval sweep
	HeartbeatInterval time.Duration
}

// DefaultMonitorConfig returns default monitor process configuration.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		SweepInterval:     30 * time.Second,
		HeartbeatInterval: 30 * time.Second,
	}
}

// Monitor is the background interval-observer process. It owns the
// ending of temporary allowances: when a per-app allowance interval
// lapses it clears the allowance, re-reconciles, and signals the other
// processes. It never edits intentions or schedules themselves.
type Monitor struct {
	config     MonitorConfig
	store      domain.StateStore
	reconciler *reconcile.Reconciler
	intentions *policy.Intentions
	schedules  *policy.Schedules
	intervals  domain.IntervalScheduler
	notifier   domain.ChangeNotifier
	registry   domain.ProcessRegistry
	logger     *zap.Logger

	now func() time.Time
}

// NewMonitor creates the monitor process loop.
func NewMonitor(
	config MonitorConfig,
	store domain.StateStore,
	reconciler *reconcile.Reconciler,
	intentions *policy.Intentions,
	schedules *policy.Schedules,
	intervals domain.IntervalScheduler,
	notifier domain.ChangeNotifier,
	registry domain.ProcessRegistry,
	logger *zap.Logger,
) *Monitor {
	return &Monitor{
		config:     config,
		store:      store,
		reconciler: reconciler,
		intentions: intentions,
		schedules:  schedules,
		intervals:  intervals,
		notifier:   notifier,
		registry:   registry,
		logger:     logger,
		now:        time.Now,
	}
}

// Run starts the monitor process loop. Blocks until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.registry.Register(domain.RoleMonitor, os.Getpid()); err != nil {
		m.logger.Warn("failed to register monitor process", zap.Error(err))
	}

	m.logger.Info("monitor process started", zap.Int("pid", os.Getpid()))
	m.sweep()

	go func() {
		err := m.notifier.Subscribe(ctx, m.sweep)
		if err != nil && ctx.Err() == nil {
			m.logger.Warn("signal subscription ended", zap.Error(err))
		}
	}()

	sweepTicker := time.NewTicker(m.config.SweepInterval)
	heartbeatTicker := time.NewTicker(m.config.HeartbeatInterval)
	defer func() {
		sweepTicker.Stop()
		heartbeatTicker.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor process stopping")
			return ctx.Err()

		case <-sweepTicker.C:
			m.sweep()

		case <-heartbeatTicker.C:
			if err := m.registry.Heartbeat(domain.RoleMonitor); err != nil {
				m.logger.Warn("failed to update heartbeat", zap.Error(err))
			}
		}
	}
}

// sweep walks the registered interval monitors and fires IntervalDidEnd
// for each per-app allowance whose expiry has passed. Break expiry is
// also checked here, so the engine recovers even if the app process
// is gone.
func (m *Monitor) sweep() {
	now := m.now()

	for name := range m.store.MonitorRegistrations() {
		identity, ok := strings.CutPrefix(name, domain.SessionMonitorPrefix)
		if !ok {
			continue
		}
		expiry, present := m.store.Allowances()[identity]
		if present && now.Before(expiry) {
			continue
		}
		m.IntervalDidEnd(name)
	}

	if m.schedules.CheckBreakExpiry(now) {
		m.logger.Info("break expiry detected by monitor")
		m.afterChange("break ended")
	}
}

// IntervalDidStart records the start of a monitored interval. Blocking
// decisions are recomputed rather than toggled, so start events only
// trigger a reconcile.
func (m *Monitor) IntervalDidStart(name string) {
	m.appendLog(fmt.Sprintf("intervalDidStart: %s", name))

	if _, err := m.reconciler.Reconcile(); err != nil {
		m.logger.Warn("reconciliation failed",
			zap.String("monitor", name), zap.Error(err))
	}
}

// IntervalDidEnd ends a monitored interval. For per-app allowance
// monitors ("session.<identity>") the allowance is revoked and the app
// re-shielded; for anything else the state is simply recomputed, which
// conservatively re-shields everything still blockable.
func (m *Monitor) IntervalDidEnd(name string) {
	m.appendLog(fmt.Sprintf("intervalDidEnd: %s", name))

	if identity, ok := strings.CutPrefix(name, domain.SessionMonitorPrefix); ok {
		if err := m.intentions.ClearAllowance(identity); err != nil {
			m.logger.Warn("failed to clear allowance",
				zap.String("hash", identity), zap.Error(err))
		}
		m.logger.Info("allowance interval ended",
			zap.String("hash", identity))
	}
	if err := m.intervals.StopMonitoring(name); err != nil {
		m.logger.Warn("failed to stop monitoring",
			zap.String("monitor", name), zap.Error(err))
	}

	m.afterChange(name)
}

// EventDidReachThreshold handles usage-threshold callbacks. The engine
// keeps its own open counters, so thresholds are log-only.
func (m *Monitor) EventDidReachThreshold(event, monitor string) {
	m.appendLog(fmt.Sprintf("eventDidReachThreshold: %s in %s", event, monitor))
}

// afterChange pushes mutated state to disk, recomputes the shield, and
// wakes the other processes.
func (m *Monitor) afterChange(reason string) {
	if _, err := m.reconciler.Reconcile(); err != nil {
		m.logger.Warn("reconciliation failed",
			zap.String("trigger", reason), zap.Error(err))
	}
	if err := m.store.Flush(); err != nil {
		m.logger.Warn("flush failed", zap.Error(err))
	}
	if err := m.notifier.Post(); err != nil {
		m.logger.Warn("failed to post change signal", zap.Error(err))
	}
}

func (m *Monitor) appendLog(line string) {
	stamped := fmt.Sprintf("%s %s", m.now().Format(time.RFC3339), line)
	if err := m.store.AppendLog(domain.LogActivityMonitor, stamped); err != nil {
		m.logger.Debug("failed to append monitor log", zap.Error(err))
	}
}
