package daemon

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/onelife/shieldd/internal/domain"
	"github.com/onelife/shieldd/internal/infra"
	"github.com/onelife/shieldd/internal/policy"
	"github.com/onelife/shieldd/internal/reconcile"
	"github.com/onelife/shieldd/internal/store"
	"github.com/onelife/shieldd/internal/token"
)

// memoryNotifier implements domain.ChangeNotifier for tests. Subscribe
// blocks until the context ends, like the real fsnotify subscription.
type memoryNotifier struct {
	mu    sync.Mutex
	posts int
}

func (n *memoryNotifier) Post() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.posts++
	return nil
}

func (n *memoryNotifier) Subscribe(ctx context.Context, fn func()) error {
	<-ctx.Done()
	return ctx.Err()
}

func (n *memoryNotifier) Posts() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.posts
}

var _ domain.ChangeNotifier = (*memoryNotifier)(nil)

// testEnv wires the full engine over a temp directory.
type testEnv struct {
	store      domain.StateStore
	sink       *infra.MemorySink
	intervals  domain.IntervalScheduler
	notifier   *memoryNotifier
	registry   domain.ProcessRegistry
	intentions *policy.Intentions
	schedules  *policy.Schedules
	session    *policy.Session
	reconciler *reconcile.Reconciler
	resetter   *reconcile.DailyResetter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	logger := zap.NewNop()

	st, err := store.NewFileStore(dir, logger)
	require.NoError(t, err)

	sink := infra.NewMemorySink()
	intervals := infra.NewStoreIntervalScheduler(st, logger)
	intentions := policy.NewIntentions(st, logger)
	schedules := policy.NewSchedules(st, infra.NewMemoryNotificationScheduler(), logger)
	session := policy.NewSession(st, sink, intervals, logger)
	reconciler := reconcile.New(st, sink, token.NewResolver(st), intentions, schedules, logger)
	resetter := reconcile.NewDailyResetter(st, intentions, logger)

	return &testEnv{
		store:      st,
		sink:       sink,
		intervals:  intervals,
		notifier:   &memoryNotifier{},
		registry:   infra.NewFileRegistry(dir, infra.NewProcessManager(), "test"),
		intentions: intentions,
		schedules:  schedules,
		session:    session,
		reconciler: reconciler,
		resetter:   resetter,
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var gameToken = domain.AppToken{Payload: []byte("com.example.game")}
