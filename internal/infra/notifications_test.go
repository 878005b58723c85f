package infra

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/onelife/shieldd/internal/domain"
)

func TestFileNotificationSchedulerQueue(t *testing.T) {
	dir := t.TempDir()
	n := NewFileNotificationScheduler(dir, zap.NewNop())

	fireAt := time.Now().Add(time.Minute).UTC()
	content := domain.NotificationContent{Title: "Break Ending Soon", Body: "30 seconds left"}
	require.NoError(t, n.Schedule("warning", fireAt, content))

	// Replacing the same id keeps one entry; a second handle on the
	// file sees it.
	require.NoError(t, n.Schedule("warning", fireAt.Add(time.Minute), content))
	other := NewFileNotificationScheduler(dir, zap.NewNop())
	queue := other.load()
	require.Len(t, queue, 1)
	assert.Equal(t, content, queue["warning"].Content)

	require.NoError(t, n.Cancel("warning", "never-scheduled"))
	assert.Empty(t, other.load())
}

func TestDeliverNowQueuesImmediately(t *testing.T) {
	n := NewFileNotificationScheduler(t.TempDir(), zap.NewNop())

	require.NoError(t, n.DeliverNow("ended", domain.NotificationContent{Title: "Break Ended"}))

	queue := n.load()
	require.Contains(t, queue, "ended")
	assert.WithinDuration(t, time.Now(), queue["ended"].FireAt, time.Second)
}

func TestConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "/var/tmp/shieldd", cfg.DataDir)
	assert.Equal(t, "file", cfg.StoreBackend)
}

func TestConfigFromEnvironment(t *testing.T) {
	t.Setenv("SHIELDD_DATA_DIR", "/tmp/custom")
	t.Setenv("SHIELDD_STORE_BACKEND", "encrypted")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom", cfg.DataDir)
	assert.Equal(t, "encrypted", cfg.StoreBackend)
}
