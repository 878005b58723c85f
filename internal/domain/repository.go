package domain

import (
	"context"
	"time"
)

// Counter keys understood by StateStore.Counter / SetCounter.
const (
	CounterTotalAttempts = "totalAppOpenAttempts"
	CounterDailyAttempts = "dailyAppOpenAttempts"
)

// Rolling debug log keys. Each log is capped at 50 entries, oldest evicted.
const (
	LogShieldAction    = "shieldActionLogs"
	LogActivityMonitor = "deviceActivityMonitorLogs"
)

// MonitorNameBlocking is the reserved interval-monitor name registered
// for the focus session, so the monitor process can observe its window.
const MonitorNameBlocking = "blocking"

// SessionMonitorPrefix prefixes per-app allowance monitors. The suffix
// is the app's token identity: "session.<identity>".
const SessionMonitorPrefix = "session."

// StateStore is the shared, persisted key-value mapping used by every
// process on the device. It is the only channel of communication between
// processes: no transactions, no cross-process locks.
//
// Readers never fail: a missing or undecodable record yields the type's
// zero value, so malformed state self-heals as "nothing configured".
// Writers must be flushed (Flush) before signaling another process.
type StateStore interface {
	Intentions() []Intention
	SaveIntentions(intentions []Intention) error

	Schedules() []Schedule
	SaveSchedules(schedules []Schedule) error

	// Allowances maps token identity -> expiry. Entries are advisory:
	// readers must compare against the current time, never trust presence.
	Allowances() map[string]time.Time
	SaveAllowances(allowed map[string]time.Time) error

	// IntentionSelection is the full token set behind the intentions,
	// kept for icon/display lookup and for the conservative re-shield
	// fallback.
	IntentionSelection() Selection
	SaveIntentionSelection(sel Selection) error

	Session() SessionState
	SaveSession(s SessionState) error
	ClearSession() error

	// BreakEndTime returns the break expiry and whether a break record
	// exists. An expired record still returns true; expiry is the
	// caller's judgement.
	BreakEndTime() (time.Time, bool)
	SaveBreakEndTime(end time.Time) error
	ClearBreakEndTime() error

	Counter(key string) int
	SetCounter(key string, value int) error

	LastResetDate() (time.Time, bool)
	SetLastResetDate(t time.Time) error

	ScreenTimeGoalMinutes() int
	SetScreenTimeGoalMinutes(minutes int) error

	AppendLog(key, line string) error
	Logs(key string) []string
	ClearLogs(key string) error

	// MonitorRegistrations lists the interval-monitor names currently
	// registered, so the monitor process can observe them.
	MonitorRegistrations() map[string]MonitorWindow
	SaveMonitorRegistrations(regs map[string]MonitorWindow) error

	// Flush forces pending writes to durable storage. Must be called
	// before posting a change signal.
	Flush() error
}

// ShieldSink is the external shielding capability. The engine treats it
// as a write-only projection target with two independent slots; it never
// reads the sink back as a truth source.
type ShieldSink interface {
	// SetBlockedApps overwrites the app-level block-set slot.
	SetBlockedApps(apps []AppToken) error

	// SetCategoryMode overwrites the category-level block-mode slot.
	SetCategoryMode(policy CategoryPolicy) error
}

// IntervalScheduler is the platform's calendar-interval monitoring
// capability. Callbacks are delivered to a separate process instance.
type IntervalScheduler interface {
	StartMonitoring(name string, window MonitorWindow) error
	StopMonitoring(name string) error
}

// NotificationScheduler delivers user-facing notices. Failures affect
// UX, not policy correctness; callers log and ignore them.
type NotificationScheduler interface {
	Schedule(id string, fireAt time.Time, content NotificationContent) error
	Cancel(ids ...string) error

	// DeliverNow fires a notification immediately.
	DeliverNow(id string, content NotificationContent) error
}

// ChangeNotifier is a one-way, payload-free, unreliable-delivery
// broadcast: "state changed, re-read and re-reconcile". Signals may be
// coalesced, duplicated, or dropped; subscribers must not depend on
// receiving exactly one signal per change.
type ChangeNotifier interface {
	// Post broadcasts a wake-up hint. The caller must Flush the store first.
	Post() error

	// Subscribe invokes fn on every observed signal until ctx is done.
	// It blocks until the subscription ends.
	Subscribe(ctx context.Context, fn func()) error
}

// ProcessManager handles OS process liveness checks.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// CurrentPID returns the current process PID.
	CurrentPID() int
}

// ProcessRegistry records which engine processes are alive, for the
// status command and stale-PID detection.
type ProcessRegistry interface {
	Register(role ProcessRole, pid int) error
	Heartbeat(role ProcessRole) error
	Entry() (*RegistryEntry, error)
	IsAlive(role ProcessRole) bool
	Clear() error
}

// KeyProvider abstracts the source of the encryption key for the
// encrypted state store backend.
type KeyProvider interface {
	GetKey() ([]byte, error)
	StoreKey(key []byte) error
	KeyExists() bool
}
