package policy

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/onelife/shieldd/internal/domain"
)

// Break notification identifiers.
const (
	breakWarningNotificationID = "breakWarning30s"
	breakEndedNotificationID   = "breakEnded"
	breakEndedImmediateID      = "breakEndedImmediate"
	breakWarningLead           = 30 * time.Second
)

// Schedules manages time-window schedules and the device-wide break
// state layered on top of them.
//
// A schedule's active/inactive state is a pure function of wall-clock
// time and weekday; nothing beyond the definition is persisted. Break
// state is a single expiry timestamp, detected lazily: no process
// receives a push event when a break naturally elapses.
type Schedules struct {
	store    domain.StateStore
	notifier domain.NotificationScheduler
	logger   *zap.Logger
	now      func() time.Time
}

// NewSchedules creates the schedule policy service.
func NewSchedules(store domain.StateStore, notifier domain.NotificationScheduler, logger *zap.Logger) *Schedules {
	return &Schedules{
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// List returns all stored schedules.
func (s *Schedules) List() []domain.Schedule {
	return s.store.Schedules()
}

// Save upserts a schedule. A schedule without an ID is assigned one.
func (s *Schedules) Save(sched domain.Schedule) (domain.Schedule, error) {
	if len(sched.ActiveDays) == 0 {
		return domain.Schedule{}, fmt.Errorf("schedule needs at least one active day")
	}
	if sched.ID == "" {
		sched.ID = uuid.NewString()
		sched.CreatedAt = s.now()
	}

	schedules := s.store.Schedules()
	replaced := false
	for i := range schedules {
		if schedules[i].ID == sched.ID {
			schedules[i] = sched
			replaced = true
			break
		}
	}
	if !replaced {
		schedules = append(schedules, sched)
	}
	return sched, s.store.SaveSchedules(schedules)
}

// Delete removes a schedule by ID.
func (s *Schedules) Delete(id string) error {
	schedules := s.store.Schedules()
	kept := schedules[:0]
	for _, sched := range schedules {
		if sched.ID != id {
			kept = append(kept, sched)
		}
	}
	if len(kept) == len(schedules) {
		return fmt.Errorf("schedule %s not found", id)
	}
	return s.store.SaveSchedules(kept)
}

// Toggle flips a schedule's enabled flag.
func (s *Schedules) Toggle(id string) error {
	schedules := s.store.Schedules()
	for i := range schedules {
		if schedules[i].ID == id {
			schedules[i].IsEnabled = !schedules[i].IsEnabled
			return s.store.SaveSchedules(schedules)
		}
	}
	return fmt.Errorf("schedule %s not found", id)
}

// ActiveAt returns the schedules whose window contains t.
func (s *Schedules) ActiveAt(t time.Time) []domain.Schedule {
	var active []domain.Schedule
	for _, sched := range s.store.Schedules() {
		if sched.IsActiveAt(t) {
			active = append(active, sched)
		}
	}
	return active
}

// ExcludedUnion is the union of excluded app hashes across all schedules
// active at t.
func (s *Schedules) ExcludedUnion(t time.Time) []string {
	seen := make(map[string]bool)
	var union []string
	for _, sched := range s.ActiveAt(t) {
		for _, hash := range sched.ExcludedAppHashes {
			if !seen[hash] {
				seen[hash] = true
				union = append(union, hash)
			}
		}
	}
	return union
}

// ShouldBlockApp reports whether schedule policy blocks the app at t.
// A break suspends schedule blocking entirely.
func (s *Schedules) ShouldBlockApp(hash string, t time.Time) bool {
	if s.OnBreakAt(t) {
		return false
	}
	for _, sched := range s.ActiveAt(t) {
		if !sched.IsAppExcluded(hash) {
			return true
		}
	}
	return false
}

// OnBreakAt reports whether an unexpired break exists at t.
func (s *Schedules) OnBreakAt(t time.Time) bool {
	end, ok := s.store.BreakEndTime()
	return ok && t.Before(end)
}

// BreakRemaining returns the time left on the break, zero when none.
func (s *Schedules) BreakRemaining(t time.Time) time.Duration {
	end, ok := s.store.BreakEndTime()
	if !ok || !t.Before(end) {
		return 0
	}
	return end.Sub(t)
}

// FormattedBreakRemaining renders the remaining break time as "M:SS".
func (s *Schedules) FormattedBreakRemaining(t time.Time) string {
	remaining := int(s.BreakRemaining(t).Seconds())
	return fmt.Sprintf("%d:%02d", remaining/60, remaining%60)
}

// StartBreak suspends schedule blocking for the given duration and
// schedules the user-facing warnings. The caller must re-reconcile so
// the suspension reaches the shield sink immediately.
func (s *Schedules) StartBreak(minutes int) (time.Time, error) {
	end := s.now().Add(time.Duration(minutes) * time.Minute)
	if err := s.store.SaveBreakEndTime(end); err != nil {
		return time.Time{}, err
	}

	s.scheduleBreakNotifications(end)
	s.logger.Info("break started",
		zap.Int("minutes", minutes),
		zap.Time("ends", end))
	return end, nil
}

// EndBreak ends the break early: cancels pending notices and clears the
// break record. The caller must re-reconcile.
func (s *Schedules) EndBreak() error {
	if err := s.notifier.Cancel(breakWarningNotificationID, breakEndedNotificationID); err != nil {
		s.logger.Warn("failed to cancel break notifications", zap.Error(err))
	}
	if err := s.store.ClearBreakEndTime(); err != nil {
		return err
	}
	s.logger.Info("break ended early")
	return nil
}

// CheckBreakExpiry lazily detects an elapsed break at t. When expired it
// clears the record, fires the "ended" notice immediately, and reports
// true so the caller re-reconciles.
func (s *Schedules) CheckBreakExpiry(t time.Time) bool {
	end, ok := s.store.BreakEndTime()
	if !ok || t.Before(end) {
		return false
	}

	if err := s.store.ClearBreakEndTime(); err != nil {
		s.logger.Warn("failed to clear expired break", zap.Error(err))
	}
	if err := s.notifier.Cancel(breakWarningNotificationID, breakEndedNotificationID); err != nil {
		s.logger.Warn("failed to cancel break notifications", zap.Error(err))
	}
	if err := s.notifier.DeliverNow(breakEndedImmediateID, domain.NotificationContent{
		Title: "Break Ended",
		Body:  "Your break is over. Apps are now blocked again.",
	}); err != nil {
		s.logger.Warn("failed to deliver break-ended notice", zap.Error(err))
	}

	s.logger.Info("break expired", zap.Time("ended", end))
	return true
}

// scheduleBreakNotifications registers the "30 seconds remaining" notice
// (only when the break outlasts the lead) and the "ended" notice.
// Scheduling failures affect UX, not policy; they are logged and ignored.
func (s *Schedules) scheduleBreakNotifications(end time.Time) {
	if err := s.notifier.Cancel(breakWarningNotificationID, breakEndedNotificationID); err != nil {
		s.logger.Warn("failed to cancel stale break notifications", zap.Error(err))
	}

	if end.Sub(s.now()) > breakWarningLead {
		err := s.notifier.Schedule(breakWarningNotificationID, end.Add(-breakWarningLead), domain.NotificationContent{
			Title: "Break Ending Soon",
			Body:  "Your break ends in 30 seconds. Apps will be blocked again.",
		})
		if err != nil {
			s.logger.Warn("failed to schedule break warning", zap.Error(err))
		}
	}

	err := s.notifier.Schedule(breakEndedNotificationID, end, domain.NotificationContent{
		Title: "Break Ended",
		Body:  "Your break is over. Apps are now blocked again.",
	})
	if err != nil {
		s.logger.Warn("failed to schedule break-ended notice", zap.Error(err))
	}
}
