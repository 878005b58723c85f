package daemon

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/onelife/shieldd/internal/domain"
	"github.com/onelife/shieldd/internal/policy"
	"github.com/onelife/shieldd/internal/reconcile"
	"github.com/onelife/shieldd/internal/token"
)

// ShieldAction identifies which shield-overlay button the user pressed.
type ShieldAction string

const (
	// ActionPrimary is the "Close" button.
	ActionPrimary ShieldAction = "primary"
	// ActionSecondary is the "Open anyway" button.
	ActionSecondary ShieldAction = "secondary"
)

// ShieldResponse tells the platform what to do with the shielded app.
type ShieldResponse string

const (
	// ResponseClose dismisses the app.
	ResponseClose ShieldResponse = "close"
	// ResponseDefer keeps the app open while the shield lifts.
	ResponseDefer ShieldResponse = "defer"
)

// ShieldHandler runs in the short-lived shield-button process. It must
// decide quickly: grant a timed allowance on the secondary action, or
// close on the primary. Every internal error degrades to a logged
// fallback, never a failure surfaced to the platform.
type ShieldHandler struct {
	store      domain.StateStore
	intentions *policy.Intentions
	intervals  domain.IntervalScheduler
	reconciler *reconcile.Reconciler
	resetter   *reconcile.DailyResetter
	notifier   domain.ChangeNotifier
	registry   domain.ProcessRegistry
	logger     *zap.Logger

	now func() time.Time
}

// NewShieldHandler creates the shield-button handler.
func NewShieldHandler(
	store domain.StateStore,
	intentions *policy.Intentions,
	intervals domain.IntervalScheduler,
	reconciler *reconcile.Reconciler,
	resetter *reconcile.DailyResetter,
	notifier domain.ChangeNotifier,
	registry domain.ProcessRegistry,
	logger *zap.Logger,
) *ShieldHandler {
	return &ShieldHandler{
		store:      store,
		intentions: intentions,
		intervals:  intervals,
		reconciler: reconciler,
		resetter:   resetter,
		notifier:   notifier,
		registry:   registry,
		logger:     logger,
		now:        time.Now,
	}
}

// Handle processes one shield-button press for the given app token and
// returns the platform response. ctx bounds the whole handling; on
// expiry the safe ResponseClose is returned.
func (h *ShieldHandler) Handle(ctx context.Context, action ShieldAction, tok domain.AppToken) ShieldResponse {
	if err := h.registry.Register(domain.RoleShieldAction, os.Getpid()); err != nil {
		h.logger.Debug("failed to register shield-action process", zap.Error(err))
	}

	identity := token.Identity(tok)
	h.appendLog(fmt.Sprintf("action=%s hash=%s", action, identity))

	if err := ctx.Err(); err != nil {
		h.logger.Warn("shield handling deadline passed", zap.Error(err))
		return ResponseClose
	}

	switch action {
	case ActionSecondary:
		return h.handleOpen(identity)
	default:
		h.logger.Info("shield close pressed", zap.String("hash", identity))
		return ResponseClose
	}
}

// handleOpen grants a timed allowance: count the open, lift the shield
// for the intention's session duration, and register the interval whose
// end revokes the allowance.
func (h *ShieldHandler) handleOpen(identity string) ShieldResponse {
	now := h.now()

	if err := h.resetter.RecordAttempt(); err != nil {
		h.logger.Warn("failed to record open attempt", zap.Error(err))
	}

	minutes := h.intentions.RecordOpen(identity)
	until := now.Add(time.Duration(minutes) * time.Minute)

	if err := h.intentions.Allow(identity, until); err != nil {
		h.logger.Warn("failed to save allowance",
			zap.String("hash", identity), zap.Error(err))
		return ResponseClose
	}

	name := domain.SessionMonitorPrefix + identity
	window := domain.MonitorWindow{
		Start: domain.DayMinute{Hour: now.Hour(), Minute: now.Minute()},
		End:   domain.DayMinute{Hour: until.Hour(), Minute: until.Minute()},
	}
	if err := h.intervals.StartMonitoring(name, window); err != nil {
		// The allowance still expires via the monitor sweep.
		h.logger.Warn("failed to start allowance monitoring",
			zap.String("monitor", name), zap.Error(err))
	}

	if _, err := h.reconciler.Reconcile(); err != nil {
		h.logger.Warn("reconciliation failed", zap.Error(err))
	}

	h.appendLog(fmt.Sprintf("allowance granted hash=%s minutes=%d until=%s",
		identity, minutes, until.Format(time.RFC3339)))

	if err := h.store.Flush(); err != nil {
		h.logger.Warn("flush failed", zap.Error(err))
	}
	if err := h.notifier.Post(); err != nil {
		h.logger.Warn("failed to post change signal", zap.Error(err))
	}

	h.logger.Info("shield open granted",
		zap.String("hash", identity),
		zap.Int("minutes", minutes))
	return ResponseDefer
}

func (h *ShieldHandler) appendLog(line string) {
	stamped := fmt.Sprintf("%s %s", h.now().Format(time.RFC3339), line)
	if err := h.store.AppendLog(domain.LogShieldAction, stamped); err != nil {
		h.logger.Debug("failed to append shield log", zap.Error(err))
	}
}
