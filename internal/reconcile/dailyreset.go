package reconcile

import (
	"time"

	"go.uber.org/zap"

	"github.com/onelife/shieldd/internal/domain"
	"github.com/onelife/shieldd/internal/policy"
)

// DailyResetter rolls counters and streaks over at calendar-day
// boundaries. "New day" is a calendar comparison against the stored
// lastResetDate, not a fixed 24h interval, so device clock changes and
// timezone shifts follow calendar semantics.
type DailyResetter struct {
	store      domain.StateStore
	intentions *policy.Intentions
	logger     *zap.Logger
	now        func() time.Time
}

// NewDailyResetter creates the daily reset service.
func NewDailyResetter(store domain.StateStore, intentions *policy.Intentions, logger *zap.Logger) *DailyResetter {
	return &DailyResetter{
		store:      store,
		intentions: intentions,
		logger:     logger,
		now:        time.Now,
	}
}

// ResetIfNeeded performs the daily rollover when the day has changed.
// Intentions roll on their own per-intention markers: RecordAttempt in
// the shield-action process advances the shared counter marker, and the
// streak evaluation must still happen when another process checks in
// later the same day. Reports whether anything rolled.
func (d *DailyResetter) ResetIfNeeded() (bool, error) {
	now := d.now()
	rolled, err := d.intentions.DailyReset(now)
	if err != nil {
		return false, err
	}
	if last, ok := d.store.LastResetDate(); ok && sameCalendarDay(last, now) {
		return rolled, nil
	}
	return true, d.resetCounters(now)
}

// ForceReset clears the daily attempt counter unconditionally
// (dedicated user action). Streaks still roll at most once per
// calendar day.
func (d *DailyResetter) ForceReset() error {
	now := d.now()
	if _, err := d.intentions.DailyReset(now); err != nil {
		return err
	}
	return d.resetCounters(now)
}

func (d *DailyResetter) resetCounters(now time.Time) error {
	if err := d.store.SetCounter(domain.CounterDailyAttempts, 0); err != nil {
		return err
	}
	if err := d.store.SetLastResetDate(now); err != nil {
		return err
	}
	d.logger.Info("daily counters reset")
	return nil
}

// RecordAttempt increments the total and daily open-attempt counters,
// lazily resetting the daily counter on a new day. Read-modify-write
// with no lock; a lost increment is an accepted limitation.
func (d *DailyResetter) RecordAttempt() error {
	now := d.now()

	total := d.store.Counter(domain.CounterTotalAttempts)
	if err := d.store.SetCounter(domain.CounterTotalAttempts, total+1); err != nil {
		return err
	}

	if last, ok := d.store.LastResetDate(); !ok || !sameCalendarDay(last, now) {
		if err := d.store.SetCounter(domain.CounterDailyAttempts, 0); err != nil {
			return err
		}
		if err := d.store.SetLastResetDate(now); err != nil {
			return err
		}
	}

	daily := d.store.Counter(domain.CounterDailyAttempts)
	return d.store.SetCounter(domain.CounterDailyAttempts, daily+1)
}

func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
