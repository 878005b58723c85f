// Package daemon implements the per-process-role run loops: the
// foreground app process, the interval monitor process, and the
// shield-button handler.
package daemon

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/onelife/shieldd/internal/domain"
	"github.com/onelife/shieldd/internal/policy"
	"github.com/onelife/shieldd/internal/reconcile"
)

// AppConfig holds the interactive process configuration.
type AppConfig struct {
	ReconcileInterval time.Duration // periodic safety re-reconcile
	HeartbeatInterval time.Duration // process registry heartbeat
	CountdownInterval time.Duration // break/session countdown tick
}

// DefaultAppConfig returns default app process configuration.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		ReconcileInterval: time.Minute,
		HeartbeatInterval: 30 * time.Second,
		CountdownInterval: time.Second,
	}
}

// App is the foreground interactive process loop. It reconciles on
// start (the "app entering foreground" trigger), on change signals, and
// on a periodic tick as insurance against missed signals. While a break
// or session is active it runs a one-second countdown task, cancelled
// on every exit path.
type App struct {
	config     AppConfig
	store      domain.StateStore
	reconciler *reconcile.Reconciler
	resetter   *reconcile.DailyResetter
	schedules  *policy.Schedules
	session    *policy.Session
	notifier   domain.ChangeNotifier
	registry   domain.ProcessRegistry
	logger     *zap.Logger

	mu              sync.Mutex // guards the countdown fields below
	countdownCancel context.CancelFunc
	countdownDone   chan struct{}
}

// NewApp creates the app process loop.
func NewApp(
	config AppConfig,
	store domain.StateStore,
	reconciler *reconcile.Reconciler,
	resetter *reconcile.DailyResetter,
	schedules *policy.Schedules,
	session *policy.Session,
	notifier domain.ChangeNotifier,
	registry domain.ProcessRegistry,
	logger *zap.Logger,
) *App {
	return &App{
		config:     config,
		store:      store,
		reconciler: reconciler,
		resetter:   resetter,
		schedules:  schedules,
		session:    session,
		notifier:   notifier,
		registry:   registry,
		logger:     logger,
	}
}

// Run starts the app process loop. Blocks until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	if err := a.registry.Register(domain.RoleApp, os.Getpid()); err != nil {
		a.logger.Warn("failed to register app process", zap.Error(err))
	}

	a.logger.Info("app process started", zap.Int("pid", os.Getpid()))

	// Foreground triggers: daily rollover, then a full reconcile.
	if _, err := a.resetter.ResetIfNeeded(); err != nil {
		a.logger.Warn("daily reset failed", zap.Error(err))
	}
	a.onTrigger("foreground")

	// Wake on cross-process change signals. Delivery is best-effort;
	// the periodic tick below covers missed signals.
	go func() {
		err := a.notifier.Subscribe(ctx, func() {
			a.onTrigger("signal")
		})
		if err != nil && ctx.Err() == nil {
			a.logger.Warn("signal subscription ended", zap.Error(err))
		}
	}()

	reconcileTicker := time.NewTicker(a.config.ReconcileInterval)
	heartbeatTicker := time.NewTicker(a.config.HeartbeatInterval)
	defer func() {
		reconcileTicker.Stop()
		heartbeatTicker.Stop()
		a.stopCountdown()
	}()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("app process stopping")
			return ctx.Err()

		case <-reconcileTicker.C:
			a.onTrigger("tick")

		case <-heartbeatTicker.C:
			if err := a.registry.Heartbeat(domain.RoleApp); err != nil {
				a.logger.Warn("failed to update heartbeat", zap.Error(err))
			}
		}
	}
}

// onTrigger handles every reconciliation trigger uniformly: lazy break
// expiry detection, full recompute, countdown task sync.
func (a *App) onTrigger(reason string) {
	now := time.Now()
	if a.schedules.CheckBreakExpiry(now) {
		a.logger.Info("break expiry detected", zap.String("trigger", reason))
	}

	if _, err := a.reconciler.Reconcile(); err != nil {
		a.logger.Warn("reconciliation failed",
			zap.String("trigger", reason),
			zap.Error(err))
	}

	a.syncCountdown(now)
}

// syncCountdown starts the countdown task when a break or session is
// live and stops it otherwise.
func (a *App) syncCountdown(now time.Time) {
	live := a.schedules.OnBreakAt(now) || a.session.State().Active

	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case live && a.countdownCancel == nil:
		a.startCountdownLocked()
	case !live && a.countdownCancel != nil:
		a.stopCountdownLocked()
	}
}

// startCountdownLocked launches the one-second break/session countdown.
// It detects break expiry promptly so blocking reverts within a second
// of the deadline even with no external wake-up. Caller holds mu.
func (a *App) startCountdownLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	a.countdownCancel = cancel
	a.countdownDone = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(a.config.CountdownInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := time.Now()
				if a.schedules.CheckBreakExpiry(now) {
					if _, err := a.reconciler.Reconcile(); err != nil {
						a.logger.Warn("reconciliation after break expiry failed", zap.Error(err))
					}
				}
				onBreak := a.schedules.OnBreakAt(now)
				session := a.session.State()
				if !onBreak && !session.Active {
					// Nothing left to track. Tear down off this
					// goroutine so the stop path can wait for it to
					// drain, then re-sync in case a new break or
					// session started in the gap.
					go func() {
						a.stopCountdown()
						a.syncCountdown(time.Now())
					}()
					return
				}
				if onBreak {
					a.logger.Debug("break remaining",
						zap.String("remaining", a.schedules.FormattedBreakRemaining(now)))
				}
				if session.Active {
					a.logger.Debug("session duration",
						zap.String("elapsed", a.session.FormattedDuration(now)))
				}
			}
		}
	}()

	a.logger.Debug("countdown started")
}

// stopCountdown cancels the countdown task and waits for it to drain.
func (a *App) stopCountdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopCountdownLocked()
}

func (a *App) stopCountdownLocked() {
	if a.countdownCancel == nil {
		return
	}
	a.countdownCancel()
	<-a.countdownDone
	a.countdownCancel = nil
	a.countdownDone = nil
	a.logger.Debug("countdown stopped")
}
