//go:build integration

package integration

import (
	"context"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/onelife/shieldd/internal/daemon"
	"github.com/onelife/shieldd/internal/domain"
	"github.com/onelife/shieldd/internal/infra"
	"github.com/onelife/shieldd/internal/notify"
	"github.com/onelife/shieldd/internal/policy"
	"github.com/onelife/shieldd/internal/reconcile"
	"github.com/onelife/shieldd/internal/store"
	"github.com/onelife/shieldd/internal/token"
)

// engineProcess wires a complete engine instance over a shared data
// directory, modeling one of the OS-spawned processes. Instances share
// nothing but the directory.
type engineProcess struct {
	store      domain.StateStore
	sink       *infra.MemorySink
	intervals  domain.IntervalScheduler
	notifier   domain.ChangeNotifier
	registry   domain.ProcessRegistry
	intentions *policy.Intentions
	schedules  *policy.Schedules
	session    *policy.Session
	reconciler *reconcile.Reconciler
	resetter   *reconcile.DailyResetter
}

func newEngineProcess(dir string) *engineProcess {
	logger := zap.NewNop()
	st, err := store.NewFileStore(dir, logger)
	Expect(err).NotTo(HaveOccurred())

	sink := infra.NewMemorySink()
	intervals := infra.NewStoreIntervalScheduler(st, logger)
	intentions := policy.NewIntentions(st, logger)
	schedules := policy.NewSchedules(st, infra.NewMemoryNotificationScheduler(), logger)
	session := policy.NewSession(st, sink, intervals, logger)

	return &engineProcess{
		store:      st,
		sink:       sink,
		intervals:  intervals,
		notifier:   notify.NewFileSignal(dir, logger),
		registry:   infra.NewFileRegistry(dir, infra.NewProcessManager(), "test"),
		intentions: intentions,
		schedules:  schedules,
		session:    session,
		reconciler: reconcile.New(st, sink, token.NewResolver(st), intentions, schedules, logger),
		resetter:   reconcile.NewDailyResetter(st, intentions, logger),
	}
}

var _ = Describe("Blocking Engine", func() {
	var (
		tmpDir  string
		app     *engineProcess
		monitor *engineProcess
	)

	gameToken := domain.AppToken{Payload: []byte("com.example.game")}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "shieldd-integration-*")
		Expect(err).NotTo(HaveOccurred())

		// Two engine instances over one directory: no shared memory,
		// only the store.
		app = newEngineProcess(tmpDir)
		monitor = newEngineProcess(tmpDir)
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("cross-process state", func() {
		It("makes intentions visible to every process after a flush", func() {
			_, err := app.intentions.Add(gameToken, "Game", 3, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(app.store.Flush()).To(Succeed())

			list := monitor.intentions.List()
			Expect(list).To(HaveLen(1))
			Expect(list[0].DisplayName).To(Equal("Game"))
		})

		It("converges independent reconciliations on the same answer", func() {
			_, err := app.intentions.Add(gameToken, "Game", 3, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(app.store.Flush()).To(Succeed())

			fromApp, err := app.reconciler.Reconcile()
			Expect(err).NotTo(HaveOccurred())
			fromMonitor, err := monitor.reconciler.Reconcile()
			Expect(err).NotTo(HaveOccurred())

			Expect(fromMonitor).To(Equal(fromApp))
			Expect(fromApp.Apps).To(HaveLen(1))
		})
	})

	Describe("allowance lifecycle across processes", func() {
		It("grants in the handler process and revokes in the monitor process", func() {
			intent, err := app.intentions.Add(gameToken, "Game", 3, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(app.store.Flush()).To(Succeed())

			// The shield-button process grants an open.
			handlerProc := newEngineProcess(tmpDir)
			handler := daemon.NewShieldHandler(
				handlerProc.store,
				handlerProc.intentions,
				handlerProc.intervals,
				handlerProc.reconciler,
				handlerProc.resetter,
				handlerProc.notifier,
				handlerProc.registry,
				zap.NewNop(),
			)
			resp := handler.Handle(context.Background(), daemon.ActionSecondary, gameToken)
			Expect(resp).To(Equal(daemon.ResponseDefer))

			// Another process sees the allowance and does not block.
			state, err := monitor.reconciler.Reconcile()
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Apps).To(BeEmpty())

			// Force the allowance to lapse, then let the monitor
			// process sweep it away.
			allowed := monitor.store.Allowances()
			allowed[intent.TokenHash] = time.Now().Add(-time.Second)
			Expect(monitor.store.SaveAllowances(allowed)).To(Succeed())

			mon := daemon.NewMonitor(
				daemon.DefaultMonitorConfig(),
				monitor.store,
				monitor.reconciler,
				monitor.intentions,
				monitor.schedules,
				monitor.intervals,
				monitor.notifier,
				monitor.registry,
				zap.NewNop(),
			)
			mon.IntervalDidEnd(domain.SessionMonitorPrefix + intent.TokenHash)

			Expect(monitor.store.Allowances()).NotTo(HaveKey(intent.TokenHash))
			Expect(monitor.sink.Apps).To(HaveLen(1))

			// The other process converges on the same state.
			state, err = app.reconciler.Reconcile()
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Apps).To(HaveLen(1))
		})
	})

	Describe("change signals", func() {
		It("wakes a subscriber in another process", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			fired := make(chan struct{}, 1)
			go func() {
				_ = monitor.notifier.Subscribe(ctx, func() {
					select {
					case fired <- struct{}{}:
					default:
					}
				})
			}()

			time.Sleep(200 * time.Millisecond)
			Expect(app.notifier.Post()).To(Succeed())

			Eventually(fired, 5*time.Second).Should(Receive())
		})
	})

	Describe("schedule and break interplay", func() {
		It("suspends schedule blocking during a break started elsewhere", func() {
			now := time.Now()
			_, err := app.schedules.Save(domain.Schedule{
				StartHour: 0, EndHour: 23, EndMinute: 59,
				ActiveDays: []int{1, 2, 3, 4, 5, 6, 7},
				IsEnabled:  true,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(app.store.Flush()).To(Succeed())

			state, err := monitor.reconciler.Reconcile()
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Categories.Mode).To(Equal(domain.CategoryBlockAllExcept))

			_, err = app.schedules.StartBreak(15)
			Expect(err).NotTo(HaveOccurred())
			Expect(app.store.Flush()).To(Succeed())

			state, err = monitor.reconciler.Reconcile()
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Categories.Mode).To(Equal(domain.CategoryUnrestricted))

			// Ending it in the monitor process restores blocking.
			Expect(monitor.schedules.EndBreak()).To(Succeed())
			state, err = app.reconciler.Reconcile()
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Categories.Mode).To(Equal(domain.CategoryBlockAllExcept))
			Expect(app.schedules.OnBreakAt(now)).To(BeFalse())
		})
	})
})
