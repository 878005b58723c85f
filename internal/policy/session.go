package policy

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/onelife/shieldd/internal/domain"
)

// ErrEmptySelection is returned when a session is started with nothing
// selected; state is left untouched.
var ErrEmptySelection = errors.New("no apps or categories selected to block")

// Session manages the explicit user-started blocking session. While
// active, the selection chosen at start is unconditionally blocked,
// independent of quotas and schedules. Started and ended by the main
// process only.
type Session struct {
	store     domain.StateStore
	sink      domain.ShieldSink
	intervals domain.IntervalScheduler
	logger    *zap.Logger
	now       func() time.Time
}

// NewSession creates the session policy service.
func NewSession(store domain.StateStore, sink domain.ShieldSink, intervals domain.IntervalScheduler, logger *zap.Logger) *Session {
	return &Session{
		store:     store,
		sink:      sink,
		intervals: intervals,
		logger:    logger,
		now:       time.Now,
	}
}

// State returns the persisted session state.
func (s *Session) State() domain.SessionState {
	return s.store.Session()
}

// Start begins a blocking session over the selection and registers the
// reserved all-day monitoring window so the monitor process observes it.
// An empty selection is rejected without touching state.
func (s *Session) Start(sel domain.Selection) error {
	if sel.IsEmpty() {
		return ErrEmptySelection
	}

	state := domain.SessionState{
		Active:    true,
		StartTime: s.now(),
		Selection: sel,
	}
	if err := s.store.SaveSession(state); err != nil {
		return err
	}

	window := domain.MonitorWindow{
		Start:   domain.DayMinute{Hour: 0, Minute: 0},
		End:     domain.DayMinute{Hour: 23, Minute: 59},
		Repeats: true,
	}
	if err := s.intervals.StartMonitoring(domain.MonitorNameBlocking, window); err != nil {
		s.logger.Warn("failed to start session monitoring", zap.Error(err))
	}

	s.logger.Info("blocking session started",
		zap.Int("apps", len(sel.AppTokens)),
		zap.Int("categories", len(sel.CategoryIDs)))
	return nil
}

// End stops the session: clears state, deregisters monitoring, and
// explicitly clears the app-level slot rather than waiting for the
// next merge. The category slot belongs to the schedule policy and is
// left alone; the caller should still re-reconcile so the other
// policies' contributions are restored.
func (s *Session) End() error {
	if err := s.store.ClearSession(); err != nil {
		return err
	}

	if err := s.intervals.StopMonitoring(domain.MonitorNameBlocking); err != nil {
		s.logger.Warn("failed to stop session monitoring", zap.Error(err))
	}

	if err := s.sink.SetBlockedApps(nil); err != nil {
		s.logger.Warn("failed to clear app shield slot", zap.Error(err))
	}

	s.logger.Info("blocking session ended")
	return nil
}

// FormattedDuration renders elapsed session time as "HH:MM:SS", or
// "00:00:00" when no session is active.
func (s *Session) FormattedDuration(now time.Time) string {
	d := s.State().Duration(now)
	secs := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}
