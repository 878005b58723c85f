package infra

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/onelife/shieldd/internal/domain"
	"github.com/onelife/shieldd/internal/store"
)

func TestIntervalSchedulerRegistrationsVisibleAcrossHandles(t *testing.T) {
	dir := t.TempDir()
	st, err := store.NewFileStore(dir, zap.NewNop())
	require.NoError(t, err)

	sched := NewStoreIntervalScheduler(st, zap.NewNop())
	window := domain.MonitorWindow{
		Start: domain.DayMinute{Hour: 10, Minute: 0},
		End:   domain.DayMinute{Hour: 10, Minute: 10},
	}
	require.NoError(t, sched.StartMonitoring("session.abc", window))

	// A second handle on the same directory observes the registration,
	// as the monitor process would.
	other, err := store.NewFileStore(dir, zap.NewNop())
	require.NoError(t, err)
	regs := other.MonitorRegistrations()
	assert.Equal(t, window, regs["session.abc"])

	require.NoError(t, sched.StopMonitoring("session.abc"))
	assert.Empty(t, other.MonitorRegistrations())

	// Unknown names are a no-op.
	assert.NoError(t, sched.StopMonitoring("session.abc"))
}
