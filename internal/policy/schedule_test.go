package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/onelife/shieldd/internal/domain"
	"github.com/onelife/shieldd/internal/infra"
	"github.com/onelife/shieldd/internal/store"
)

func newSchedulesAt(t *testing.T, now time.Time) (*Schedules, *infra.MemoryNotificationScheduler) {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	notices := infra.NewMemoryNotificationScheduler()
	svc := NewSchedules(st, notices, zap.NewNop())
	svc.now = func() time.Time { return now }
	return svc, notices
}

// 2026-08-24 is a Monday.
func mondayAt(hour, min int) time.Time {
	return time.Date(2026, 8, 24, hour, min, 0, 0, time.UTC)
}

var allWeek = []int{1, 2, 3, 4, 5, 6, 7}

func TestSaveRequiresActiveDays(t *testing.T) {
	svc, _ := newSchedulesAt(t, mondayAt(12, 0))
	_, err := svc.Save(domain.Schedule{StartHour: 9, EndHour: 17, IsEnabled: true})
	assert.Error(t, err)
}

func TestSaveAssignsIDAndUpserts(t *testing.T) {
	svc, _ := newSchedulesAt(t, mondayAt(12, 0))

	sched, err := svc.Save(domain.Schedule{
		Name:      "Work",
		StartHour: 9, EndHour: 17,
		ActiveDays: allWeek,
		IsEnabled:  true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, sched.ID)

	sched.Name = "Deep work"
	_, err = svc.Save(sched)
	require.NoError(t, err)

	list := svc.List()
	require.Len(t, list, 1)
	assert.Equal(t, "Deep work", list[0].Name)
}

func TestShouldBlockAppMergesOverlappingSchedules(t *testing.T) {
	svc, _ := newSchedulesAt(t, mondayAt(12, 0))

	// 08:00-17:00 excluding app X, and 17:00-22:00 excluding nothing.
	_, err := svc.Save(domain.Schedule{
		StartHour: 8, EndHour: 17,
		ActiveDays:        allWeek,
		ExcludedAppHashes: []string{"X"},
		IsEnabled:         true,
	})
	require.NoError(t, err)
	_, err = svc.Save(domain.Schedule{
		StartHour: 17, EndHour: 22,
		ActiveDays: allWeek,
		IsEnabled:  true,
	})
	require.NoError(t, err)

	// At 09:00 only the first schedule is active: X is exempt.
	assert.False(t, svc.ShouldBlockApp("X", mondayAt(9, 0)))
	assert.True(t, svc.ShouldBlockApp("Y", mondayAt(9, 0)))
	assert.Equal(t, []string{"X"}, svc.ExcludedUnion(mondayAt(9, 0)))

	// At 18:00 only the second is active: no exemptions at all.
	assert.True(t, svc.ShouldBlockApp("X", mondayAt(18, 0)))
	assert.Empty(t, svc.ExcludedUnion(mondayAt(18, 0)))

	// Outside both windows nothing blocks.
	assert.False(t, svc.ShouldBlockApp("Y", mondayAt(23, 0)))
	assert.Empty(t, svc.ActiveAt(mondayAt(23, 0)))
}

func TestExcludedUnionDeduplicates(t *testing.T) {
	svc, _ := newSchedulesAt(t, mondayAt(12, 0))

	for i := 0; i < 2; i++ {
		_, err := svc.Save(domain.Schedule{
			StartHour: 8, EndHour: 22,
			ActiveDays:        allWeek,
			ExcludedAppHashes: []string{"X", "Y"},
			IsEnabled:         true,
		})
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"X", "Y"}, svc.ExcludedUnion(mondayAt(12, 0)))
}

func TestToggleAndDelete(t *testing.T) {
	svc, _ := newSchedulesAt(t, mondayAt(12, 0))

	sched, err := svc.Save(domain.Schedule{
		StartHour: 8, EndHour: 22,
		ActiveDays: allWeek,
		IsEnabled:  true,
	})
	require.NoError(t, err)
	assert.Len(t, svc.ActiveAt(mondayAt(12, 0)), 1)

	require.NoError(t, svc.Toggle(sched.ID))
	assert.Empty(t, svc.ActiveAt(mondayAt(12, 0)))

	require.NoError(t, svc.Delete(sched.ID))
	assert.Empty(t, svc.List())
	assert.Error(t, svc.Delete(sched.ID))
	assert.Error(t, svc.Toggle(sched.ID))
}

func TestBreakSuspendsScheduleBlocking(t *testing.T) {
	now := mondayAt(12, 0)
	svc, _ := newSchedulesAt(t, now)

	_, err := svc.Save(domain.Schedule{
		StartHour: 8, EndHour: 22,
		ActiveDays: allWeek,
		IsEnabled:  true,
	})
	require.NoError(t, err)
	require.True(t, svc.ShouldBlockApp("Y", now))

	end, err := svc.StartBreak(15)
	require.NoError(t, err)
	assert.True(t, end.Equal(now.Add(15*time.Minute)))

	assert.True(t, svc.OnBreakAt(now))
	assert.False(t, svc.ShouldBlockApp("Y", now))
	assert.Equal(t, 15*time.Minute, svc.BreakRemaining(now))
	assert.Equal(t, "14:30", svc.FormattedBreakRemaining(now.Add(30*time.Second)))

	// Expiry boundary: inclusive end of the break.
	assert.False(t, svc.OnBreakAt(end))
	assert.True(t, svc.ShouldBlockApp("Y", end))
}

func TestStartBreakSchedulesNotices(t *testing.T) {
	now := mondayAt(12, 0)
	svc, notices := newSchedulesAt(t, now)

	_, err := svc.StartBreak(15)
	require.NoError(t, err)

	assert.True(t, notices.Pending(breakWarningNotificationID))
	assert.True(t, notices.Pending(breakEndedNotificationID))
}

func TestShortBreakSkipsWarningNotice(t *testing.T) {
	now := mondayAt(12, 0)
	svc, notices := newSchedulesAt(t, now)

	// End the break 20 seconds out by saving directly; shorter than the
	// 30-second warning lead.
	end := now.Add(20 * time.Second)
	svc.scheduleBreakNotifications(end)

	assert.False(t, notices.Pending(breakWarningNotificationID))
	assert.True(t, notices.Pending(breakEndedNotificationID))
}

func TestEndBreakClearsStateAndNotices(t *testing.T) {
	now := mondayAt(12, 0)
	svc, notices := newSchedulesAt(t, now)

	_, err := svc.StartBreak(15)
	require.NoError(t, err)

	require.NoError(t, svc.EndBreak())
	assert.False(t, svc.OnBreakAt(now))
	assert.False(t, notices.Pending(breakWarningNotificationID))
	assert.False(t, notices.Pending(breakEndedNotificationID))
}

func TestCheckBreakExpiry(t *testing.T) {
	now := mondayAt(12, 0)
	svc, notices := newSchedulesAt(t, now)

	end, err := svc.StartBreak(15)
	require.NoError(t, err)

	// Still running: nothing happens.
	assert.False(t, svc.CheckBreakExpiry(now.Add(time.Minute)))
	assert.True(t, svc.OnBreakAt(now.Add(time.Minute)))

	// Past the end: the record clears and the immediate "ended"
	// notice fires.
	assert.True(t, svc.CheckBreakExpiry(end))
	assert.False(t, svc.OnBreakAt(end))
	assert.Contains(t, notices.Delivered, breakEndedImmediateID)

	// Second check is a no-op.
	assert.False(t, svc.CheckBreakExpiry(end))
}
