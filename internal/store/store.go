// Package store implements the shared policy state store: a persisted
// key-value mapping used by every process on the device.
//
// There are no multi-key transactions and no cross-process locking.
// Reads of missing or undecodable records return the type's zero value,
// never an error - malformed state self-heals as "nothing configured".
package store

import (
	"encoding/json"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/onelife/shieldd/internal/domain"
)

// Store keys, one shared namespace across all processes.
const (
	keyIntentions         = "intentions"
	keySchedules          = "schedules"
	keyAllowedUntil       = "allowedUntil"
	keyIntentionSelection = "intentionSelection"
	keySessionActive      = "isBlockingSessionActive"
	keySessionStartTime   = "sessionStartTime"
	keySessionSelection   = "sessionSelection"
	keyBreakEndTime       = "scheduleBreakEndTime"
	keyLastResetDate      = "lastResetDate"
	keyScreenTimeGoal     = "screenTimeGoalMinutes"
	keyMonitorRegs        = "monitorRegistrations"
)

// maxLogEntries bounds every rolling debug log; oldest entries evicted.
const maxLogEntries = 50

// defaultScreenTimeGoalMinutes is used when no preference is stored.
const defaultScreenTimeGoalMinutes = 120

// backend is the raw byte-level persistence under the typed store.
type backend interface {
	// get returns the stored bytes and whether the key exists.
	get(key string) ([]byte, bool)
	set(key string, value []byte) error
	delete(key string) error
	flush() error
}

// Store implements domain.StateStore over a backend.
type Store struct {
	b      backend
	logger *zap.Logger
}

func newStore(b backend, logger *zap.Logger) *Store {
	return &Store{b: b, logger: logger}
}

// read decodes the record at key into out. Missing or malformed records
// leave out untouched and report false.
func (s *Store) read(key string, out any) bool {
	data, ok := s.b.get(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		s.logger.Debug("discarding undecodable record",
			zap.String("key", key),
			zap.Error(err))
		return false
	}
	return true
}

func (s *Store) write(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.b.set(key, data)
}

// Intentions returns the ordered intention list, empty when unset.
func (s *Store) Intentions() []domain.Intention {
	var intentions []domain.Intention
	s.read(keyIntentions, &intentions)
	return intentions
}

// SaveIntentions persists the full intention list.
func (s *Store) SaveIntentions(intentions []domain.Intention) error {
	return s.write(keyIntentions, intentions)
}

// Schedules returns the ordered schedule list, empty when unset.
func (s *Store) Schedules() []domain.Schedule {
	var schedules []domain.Schedule
	s.read(keySchedules, &schedules)
	return schedules
}

// SaveSchedules persists the full schedule list.
func (s *Store) SaveSchedules(schedules []domain.Schedule) error {
	return s.write(keySchedules, schedules)
}

// Allowances returns the identity -> expiry map, empty when unset.
func (s *Store) Allowances() map[string]time.Time {
	allowed := make(map[string]time.Time)
	s.read(keyAllowedUntil, &allowed)
	return allowed
}

// SaveAllowances persists the allowance map.
func (s *Store) SaveAllowances(allowed map[string]time.Time) error {
	return s.write(keyAllowedUntil, allowed)
}

// IntentionSelection returns the stored token set for display lookup.
func (s *Store) IntentionSelection() domain.Selection {
	var sel domain.Selection
	s.read(keyIntentionSelection, &sel)
	return sel
}

// SaveIntentionSelection persists the token set.
func (s *Store) SaveIntentionSelection(sel domain.Selection) error {
	return s.write(keyIntentionSelection, sel)
}

// Session reconstructs the session state from its keys. An inactive or
// missing session yields the zero state.
func (s *Store) Session() domain.SessionState {
	var active bool
	if !s.read(keySessionActive, &active) || !active {
		return domain.SessionState{}
	}

	state := domain.SessionState{Active: true}
	s.read(keySessionStartTime, &state.StartTime)
	s.read(keySessionSelection, &state.Selection)
	return state
}

// SaveSession persists the session state across its keys.
func (s *Store) SaveSession(state domain.SessionState) error {
	if err := s.write(keySessionActive, state.Active); err != nil {
		return err
	}
	if err := s.write(keySessionStartTime, state.StartTime); err != nil {
		return err
	}
	return s.write(keySessionSelection, state.Selection)
}

// ClearSession removes all session keys.
func (s *Store) ClearSession() error {
	if err := s.b.delete(keySessionActive); err != nil {
		return err
	}
	if err := s.b.delete(keySessionStartTime); err != nil {
		return err
	}
	return s.b.delete(keySessionSelection)
}

// BreakEndTime returns the break expiry and whether a break record exists.
func (s *Store) BreakEndTime() (time.Time, bool) {
	var end time.Time
	ok := s.read(keyBreakEndTime, &end)
	return end, ok
}

// SaveBreakEndTime persists the break expiry.
func (s *Store) SaveBreakEndTime(end time.Time) error {
	return s.write(keyBreakEndTime, end)
}

// ClearBreakEndTime removes the break record.
func (s *Store) ClearBreakEndTime() error {
	return s.b.delete(keyBreakEndTime)
}

// Counter returns the stored counter value, 0 when unset.
func (s *Store) Counter(key string) int {
	var v int
	s.read(key, &v)
	return v
}

// SetCounter persists a counter value.
func (s *Store) SetCounter(key string, value int) error {
	return s.write(key, value)
}

// LastResetDate returns the stored daily-reset marker.
func (s *Store) LastResetDate() (time.Time, bool) {
	var t time.Time
	ok := s.read(keyLastResetDate, &t)
	return t, ok
}

// SetLastResetDate persists the daily-reset marker.
func (s *Store) SetLastResetDate(t time.Time) error {
	return s.write(keyLastResetDate, t)
}

// ScreenTimeGoalMinutes returns the goal preference, defaulting to 2 hours.
func (s *Store) ScreenTimeGoalMinutes() int {
	var minutes int
	if !s.read(keyScreenTimeGoal, &minutes) {
		return defaultScreenTimeGoalMinutes
	}
	return minutes
}

// SetScreenTimeGoalMinutes persists the goal preference.
func (s *Store) SetScreenTimeGoalMinutes(minutes int) error {
	return s.write(keyScreenTimeGoal, minutes)
}

// AppendLog appends a line to a bounded rolling log.
func (s *Store) AppendLog(key, line string) error {
	logs := s.Logs(key)
	logs = append(logs, line)
	if len(logs) > maxLogEntries {
		logs = logs[len(logs)-maxLogEntries:]
	}
	return s.write(key, logs)
}

// Logs returns the rolling log lines, empty when unset.
func (s *Store) Logs(key string) []string {
	var logs []string
	s.read(key, &logs)
	return logs
}

// ClearLogs removes a rolling log.
func (s *Store) ClearLogs(key string) error {
	return s.b.delete(key)
}

// MonitorRegistrations returns the registered interval-monitor windows.
func (s *Store) MonitorRegistrations() map[string]domain.MonitorWindow {
	regs := make(map[string]domain.MonitorWindow)
	s.read(keyMonitorRegs, &regs)
	return regs
}

// SaveMonitorRegistrations persists the monitor registrations.
func (s *Store) SaveMonitorRegistrations(regs map[string]domain.MonitorWindow) error {
	return s.write(keyMonitorRegs, regs)
}

// Flush forces pending writes to durable storage.
func (s *Store) Flush() error {
	return s.b.flush()
}

// Close releases backend resources. The file backend holds none; the
// encrypted backend closes its database handle.
func (s *Store) Close() error {
	if c, ok := s.b.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Ensure Store implements domain.StateStore.
var _ domain.StateStore = (*Store)(nil)
