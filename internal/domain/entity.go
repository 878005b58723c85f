// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import "time"

// ProcessRole identifies which of the OS-spawned process instances is running.
type ProcessRole string

const (
	// RoleApp is the foreground interactive process.
	RoleApp ProcessRole = "app"
	// RoleMonitor is woken only for interval start/end/threshold callbacks.
	RoleMonitor ProcessRole = "monitor"
	// RoleShieldAction is woken to handle a single shield button press.
	RoleShieldAction ProcessRole = "shield-action"
)

// AppToken is an opaque app-identity value supplied by the platform.
// The payload is never interpreted, only canonically serialized into
// a cross-process-stable identifier (see the token package).
type AppToken struct {
	Payload []byte `json:"payload"`
}

// Selection is a user-chosen set of apps and categories, as picked in
// the platform's activity picker.
type Selection struct {
	AppTokens   []AppToken `json:"appTokens"`
	CategoryIDs []string   `json:"categoryIds,omitempty"`
}

// IsEmpty reports whether nothing was selected.
func (s Selection) IsEmpty() bool {
	return len(s.AppTokens) == 0 && len(s.CategoryIDs) == 0
}

// Intention is a per-app daily open quota plus the unblock window granted
// each time the quota gate is passed.
type Intention struct {
	ID                     string    `json:"id"`
	TokenHash              string    `json:"tokenHash"`
	DisplayName            string    `json:"appDisplayName"`
	MaxOpensPerDay         int       `json:"maxOpensPerDay"`
	SessionDurationMinutes int       `json:"sessionDurationMinutes"`
	IsActive               bool      `json:"isActive"`
	CreatedAt              time.Time `json:"createdAt"`

	// Tracking. CurrentOpens is only meaningful together with
	// LastResetDate: readers must treat it as 0 when LastResetDate
	// is not today.
	CurrentOpens  int       `json:"currentOpens"`
	StreakDays    int       `json:"streakDays"`
	LastResetDate time.Time `json:"lastResetDate"`
}

// IsOverLimit reports whether the daily open quota has been reached.
func (i Intention) IsOverLimit() bool {
	return i.CurrentOpens >= i.MaxOpensPerDay
}

// Progress is how far the user is towards the daily limit (0.0 to 1.0+).
func (i Intention) Progress() float64 {
	if i.MaxOpensPerDay <= 0 {
		return 0
	}
	return float64(i.CurrentOpens) / float64(i.MaxOpensPerDay)
}

// RemainingOpens is the number of opens left today, never negative.
func (i Intention) RemainingOpens() int {
	if r := i.MaxOpensPerDay - i.CurrentOpens; r > 0 {
		return r
	}
	return 0
}

// Weekday numbering follows the platform calendar: 1=Sunday .. 7=Saturday.
const (
	WeekdaySunday   = 1
	WeekdaySaturday = 7
)

// Schedule is a recurring time-of-day window during which all apps are
// blocked except explicit exclusions.
type Schedule struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	StartHour         int       `json:"startHour"`
	StartMinute       int       `json:"startMinute"`
	EndHour           int       `json:"endHour"`
	EndMinute         int       `json:"endMinute"`
	ActiveDays        []int     `json:"activeDays"`
	ExcludedAppHashes []string  `json:"excludedAppHashes"`
	IsEnabled         bool      `json:"isEnabled"`
	CreatedAt         time.Time `json:"createdAt"`
}

// SpansOvernight reports whether the window crosses midnight
// (e.g. 22:00 to 07:00).
func (s Schedule) SpansOvernight() bool {
	return s.StartHour > s.EndHour ||
		(s.StartHour == s.EndHour && s.StartMinute > s.EndMinute)
}

// IsActiveAt reports whether t falls inside the window on an active day.
// Membership is inclusive-start, exclusive-end, with wraparound handling
// for overnight windows.
func (s Schedule) IsActiveAt(t time.Time) bool {
	if !s.IsEnabled {
		return false
	}

	weekday := int(t.Weekday()) + 1 // Go Sunday=0, calendar Sunday=1
	if !containsDay(s.ActiveDays, weekday) {
		return false
	}

	current := t.Hour()*60 + t.Minute()
	start := s.StartHour*60 + s.StartMinute
	end := s.EndHour*60 + s.EndMinute

	if s.SpansOvernight() {
		return current >= start || current < end
	}
	return current >= start && current < end
}

// IsAppExcluded reports whether the hash is exempt from this schedule.
func (s Schedule) IsAppExcluded(hash string) bool {
	for _, h := range s.ExcludedAppHashes {
		if h == hash {
			return true
		}
	}
	return false
}

func containsDay(days []int, day int) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}

// SessionState is the explicit user-started block toggle. While active,
// the selection is unconditionally blocked regardless of other policies.
type SessionState struct {
	Active    bool      `json:"active"`
	StartTime time.Time `json:"startTime"`
	Selection Selection `json:"selection"`
}

// Duration returns elapsed time since the session started, or zero when
// no session is active.
func (s SessionState) Duration(now time.Time) time.Duration {
	if !s.Active {
		return 0
	}
	return now.Sub(s.StartTime)
}

// CategoryMode is the category-level block-mode slot value.
type CategoryMode string

const (
	// CategoryUnrestricted leaves categories unblocked.
	CategoryUnrestricted CategoryMode = "unrestricted"
	// CategoryBlockAllExcept blocks every category except the exclusions.
	CategoryBlockAllExcept CategoryMode = "blockAllExcept"
)

// CategoryPolicy is the value pushed to the category-level slot.
type CategoryPolicy struct {
	Mode CategoryMode `json:"mode"`
	// Exclusions are the apps exempt from category blocking. Only
	// meaningful when Mode is CategoryBlockAllExcept.
	Exclusions []AppToken `json:"exclusions,omitempty"`
	// WebDomains shields web domain categories together with
	// application categories.
	WebDomains bool `json:"webDomains"`
}

// Unrestricted is the empty category contribution.
func Unrestricted() CategoryPolicy {
	return CategoryPolicy{Mode: CategoryUnrestricted}
}

// ShieldState is the full desired blocked-state: both sink slots. It is
// derived, never persisted as a truth source, and recomputable from the
// policy state at any instant.
type ShieldState struct {
	Apps       []AppToken     `json:"apps"`
	Categories CategoryPolicy `json:"categories"`
}

// NotificationContent is the user-facing content of a scheduled notice.
type NotificationContent struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// DayMinute is a time-of-day point for monitoring windows.
type DayMinute struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// MonitorWindow describes a repeating calendar interval registered with
// the platform's interval-monitoring scheduler.
type MonitorWindow struct {
	Start   DayMinute `json:"start"`
	End     DayMinute `json:"end"`
	Repeats bool      `json:"repeats"`
}

// RegistryEntry stores the PIDs of the engine's processes for liveness
// checks from the status command.
type RegistryEntry struct {
	Version       int            `json:"version"`
	PIDs          map[string]int `json:"pids"`
	LastHeartbeat int64          `json:"last_heartbeat"`
	AppVersion    string         `json:"app_version,omitempty"`
}
