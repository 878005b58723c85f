package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/onelife/shieldd/internal/domain"
)

func newTestMonitor(t *testing.T, env *testEnv) *Monitor {
	t.Helper()
	return NewMonitor(
		DefaultMonitorConfig(),
		env.store,
		env.reconciler,
		env.intentions,
		env.schedules,
		env.intervals,
		env.notifier,
		env.registry,
		zap.NewNop(),
	)
}

func TestSweepEndsExpiredAllowance(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()

	intent, err := env.intentions.Add(gameToken, "Game", 3, 10)
	require.NoError(t, err)

	// An allowance that has already lapsed, with its interval still
	// registered: the handler process granted it and exited.
	require.NoError(t, env.intentions.Allow(intent.TokenHash, now.Add(-time.Second)))
	name := domain.SessionMonitorPrefix + intent.TokenHash
	require.NoError(t, env.intervals.StartMonitoring(name, domain.MonitorWindow{}))

	m := newTestMonitor(t, env)
	m.sweep()

	assert.NotContains(t, env.store.Allowances(), intent.TokenHash)
	assert.NotContains(t, env.store.MonitorRegistrations(), name)

	// The app is shielded again and the other processes were woken.
	require.Len(t, env.sink.Apps, 1)
	assert.Equal(t, gameToken, env.sink.Apps[0])
	assert.Equal(t, 1, env.notifier.Posts())
	assert.NotEmpty(t, env.store.Logs(domain.LogActivityMonitor))
}

func TestSweepKeepsLiveAllowance(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()

	intent, err := env.intentions.Add(gameToken, "Game", 3, 10)
	require.NoError(t, err)
	require.NoError(t, env.intentions.Allow(intent.TokenHash, now.Add(10*time.Minute)))
	name := domain.SessionMonitorPrefix + intent.TokenHash
	require.NoError(t, env.intervals.StartMonitoring(name, domain.MonitorWindow{}))

	m := newTestMonitor(t, env)
	m.sweep()

	assert.Contains(t, env.store.Allowances(), intent.TokenHash)
	assert.Contains(t, env.store.MonitorRegistrations(), name)
	assert.Equal(t, 0, env.notifier.Posts())
}

func TestSweepIgnoresReservedBlockingMonitor(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.session.Start(domain.Selection{AppTokens: []domain.AppToken{gameToken}}))

	m := newTestMonitor(t, env)
	m.sweep()

	// The all-day session monitor has no allowance behind it and must
	// never be swept away.
	assert.Contains(t, env.store.MonitorRegistrations(), domain.MonitorNameBlocking)
}

func TestSweepDetectsExpiredBreak(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.store.SaveBreakEndTime(time.Now().Add(-time.Minute)))

	m := newTestMonitor(t, env)
	m.sweep()

	_, ok := env.store.BreakEndTime()
	assert.False(t, ok)
	assert.Equal(t, 1, env.notifier.Posts())
}

func TestIntervalDidEndUnknownNameReconcilesOnly(t *testing.T) {
	env := newTestEnv(t)
	m := newTestMonitor(t, env)

	m.IntervalDidEnd("blocking")

	assert.Equal(t, 1, env.sink.AppWrites)
	assert.Equal(t, 1, env.notifier.Posts())
	logs := env.store.Logs(domain.LogActivityMonitor)
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0], "intervalDidEnd: blocking")
}

func TestEventThresholdIsLogOnly(t *testing.T) {
	env := newTestEnv(t)
	m := newTestMonitor(t, env)

	m.EventDidReachThreshold("usage", "blocking")

	assert.Equal(t, 0, env.sink.AppWrites)
	assert.NotEmpty(t, env.store.Logs(domain.LogActivityMonitor))
}

func TestMonitorRunStopsCleanly(t *testing.T) {
	defer goleak.VerifyNone(t)

	env := newTestEnv(t)
	m := newTestMonitor(t, env)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop")
	}
}
