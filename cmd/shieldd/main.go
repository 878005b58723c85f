// Package main is the CLI entry point for shieldd.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/onelife/shieldd/internal/daemon"
	"github.com/onelife/shieldd/internal/domain"
	"github.com/onelife/shieldd/internal/infra"
	"github.com/onelife/shieldd/internal/notify"
	"github.com/onelife/shieldd/internal/policy"
	"github.com/onelife/shieldd/internal/reconcile"
	"github.com/onelife/shieldd/internal/store"
	"github.com/onelife/shieldd/internal/token"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "shieldd",
	Short: "App blocking engine - quotas, schedules and focus sessions",
	Long: `shieldd keeps distracting apps shielded on this device. Three policies
feed one blocked-state: per-app daily open quotas (intentions), recurring
block schedules, and explicit focus sessions. Any process may recompute
the blocked-state at any time; the result depends only on stored state.`,
	Version: Version,
}

var appCmd = &cobra.Command{
	Use:   "app",
	Short: "Run the foreground app process",
	Long: `Runs the interactive process loop: reconciles on start, on change
signals from other processes, and on a periodic safety tick. Runs the
one-second break/session countdown while either is live. Pass
--via-shield when the launch came through the shield's secondary
action; the distinction drives presentation only, never policy.`,
	RunE: runApp,
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the interval monitor process",
	Long: `Runs the background observer that ends temporary allowances when
their interval lapses, re-shields the app and wakes the other processes.`,
	RunE: runMonitor,
}

var shieldActionCmd = &cobra.Command{
	Use:   "shield-action",
	Short: "Handle one shield button press",
	Long: `Handles a single press on the shield overlay. The primary action
closes the app; the secondary action spends one daily open and lifts the
shield for the intention's session duration. Prints "close" or "defer".`,
	RunE: runShieldAction,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show engine status",
	Long:  `Shows process liveness, the current blocked-state inputs, counters and streaks.`,
	RunE:  runStatus,
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Recompute and push the blocked-state now",
	RunE:  runReconcile,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Force the daily rollover now",
	Long:  `Evaluates streaks, zeroes daily open counts and the daily attempt counter.`,
	RunE:  runReset,
}

var logsCmd = &cobra.Command{
	Use:   "logs [shield|monitor]",
	Short: "Show rolling debug logs",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLogs,
}

var goalCmd = &cobra.Command{
	Use:   "goal [minutes]",
	Short: "Show or set the daily screen time goal",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runGoal,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run:   runVersion,
}

// intention subcommands

var intentionCmd = &cobra.Command{
	Use:   "intention",
	Short: "Manage per-app daily open quotas",
}

var intentionAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an intention for an app",
	RunE:  runIntentionAdd,
}

var intentionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List intentions with today's progress",
	RunE:  runIntentionList,
}

var intentionRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove an intention",
	Args:  cobra.ExactArgs(1),
	RunE:  runIntentionRemove,
}

// schedule subcommands

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage recurring block schedules",
}

var scheduleAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a block schedule",
	RunE:  runScheduleAdd,
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List block schedules",
	RunE:  runScheduleList,
}

var scheduleRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a block schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleRemove,
}

var scheduleToggleCmd = &cobra.Command{
	Use:   "toggle <id>",
	Short: "Enable or disable a block schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleToggle,
}

// break subcommands

var breakCmd = &cobra.Command{
	Use:   "break",
	Short: "Manage schedule breaks",
}

var breakStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a timed break from schedule blocking",
	RunE:  runBreakStart,
}

var breakEndCmd = &cobra.Command{
	Use:   "end",
	Short: "End the current break early",
	RunE:  runBreakEnd,
}

// session subcommands

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage focus sessions",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a focus session blocking the given apps",
	RunE:  runSessionStart,
}

var sessionEndCmd = &cobra.Command{
	Use:   "end",
	Short: "End the focus session",
	RunE:  runSessionEnd,
}

var (
	actionFlag    string
	tokenFlag     string
	appNameFlag   string
	bundleFlag    string
	maxOpensFlag  int
	minutesFlag   int
	schedNameFlag string
	startFlag     string
	endFlag       string
	daysFlag      string
	excludeFlag   []string
	sessionTokens []string
	viaShieldFlag bool
)

func init() {
	appCmd.Flags().BoolVar(&viaShieldFlag, "via-shield", false,
		"Launch came from the shield's secondary action (presentation only)")

	shieldActionCmd.Flags().StringVar(&actionFlag, "action", "primary", "Button pressed (primary/secondary)")
	shieldActionCmd.Flags().StringVar(&tokenFlag, "token", "", "App token identity")
	_ = shieldActionCmd.MarkFlagRequired("token")

	intentionAddCmd.Flags().StringVar(&appNameFlag, "name", "", "App display name")
	intentionAddCmd.Flags().StringVar(&bundleFlag, "app", "", "App identifier (token payload)")
	intentionAddCmd.Flags().IntVar(&maxOpensFlag, "max-opens", 3, "Daily open quota")
	intentionAddCmd.Flags().IntVar(&minutesFlag, "minutes", policy.DefaultSessionMinutes, "Unblock minutes per open")
	_ = intentionAddCmd.MarkFlagRequired("app")

	scheduleAddCmd.Flags().StringVar(&schedNameFlag, "name", "", "Schedule name")
	scheduleAddCmd.Flags().StringVar(&startFlag, "start", "", "Window start (HH:MM)")
	scheduleAddCmd.Flags().StringVar(&endFlag, "end", "", "Window end (HH:MM)")
	scheduleAddCmd.Flags().StringVar(&daysFlag, "days", "1,2,3,4,5,6,7", "Active days (1=Sunday .. 7=Saturday)")
	scheduleAddCmd.Flags().StringSliceVar(&excludeFlag, "exclude", nil, "Excluded app token identities")
	_ = scheduleAddCmd.MarkFlagRequired("start")
	_ = scheduleAddCmd.MarkFlagRequired("end")

	breakStartCmd.Flags().IntVar(&minutesFlag, "minutes", 15, "Break length in minutes")

	sessionStartCmd.Flags().StringSliceVar(&sessionTokens, "token", nil, "App token identities to block")

	intentionCmd.AddCommand(intentionAddCmd, intentionListCmd, intentionRemoveCmd)
	scheduleCmd.AddCommand(scheduleAddCmd, scheduleListCmd, scheduleRemoveCmd, scheduleToggleCmd)
	breakCmd.AddCommand(breakStartCmd, breakEndCmd)
	sessionCmd.AddCommand(sessionStartCmd, sessionEndCmd)

	rootCmd.AddCommand(appCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(shieldActionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(goalCmd)
	rootCmd.AddCommand(intentionCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(breakCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(versionCmd)
}

// services is the wired dependency graph shared by every command.
type services struct {
	cfg        infra.Config
	logger     *zap.Logger
	store      domain.StateStore
	sink       domain.ShieldSink
	intervals  domain.IntervalScheduler
	notices    domain.NotificationScheduler
	notifier   domain.ChangeNotifier
	registry   domain.ProcessRegistry
	intentions *policy.Intentions
	schedules  *policy.Schedules
	session    *policy.Session
	reconciler *reconcile.Reconciler
	resetter   *reconcile.DailyResetter
}

func buildServices() (*services, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := createLogger(cfg)

	var st domain.StateStore
	switch cfg.StoreBackend {
	case "encrypted":
		key, err := infra.EnsureKey(infra.NewFileKeyProvider(cfg.DataDir))
		if err != nil {
			return nil, fmt.Errorf("failed to obtain store key: %w", err)
		}
		st, err = store.NewEncryptedStore(cfg.DataDir, key, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open encrypted store: %w", err)
		}
	default:
		st, err = store.NewFileStore(cfg.DataDir, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
	}

	sink := infra.NewFileSink(cfg.DataDir, logger)
	intervals := infra.NewStoreIntervalScheduler(st, logger)
	notices := infra.NewFileNotificationScheduler(cfg.DataDir, logger)
	notifier := notify.NewFileSignal(cfg.DataDir, logger)
	registry := infra.NewFileRegistry(cfg.DataDir, infra.NewProcessManager(), Version)

	intentions := policy.NewIntentions(st, logger)
	schedules := policy.NewSchedules(st, notices, logger)
	session := policy.NewSession(st, sink, intervals, logger)
	resolver := token.NewResolver(st)
	reconciler := reconcile.New(st, sink, resolver, intentions, schedules, logger)
	resetter := reconcile.NewDailyResetter(st, intentions, logger)

	return &services{
		cfg:        cfg,
		logger:     logger,
		store:      st,
		sink:       sink,
		intervals:  intervals,
		notices:    notices,
		notifier:   notifier,
		registry:   registry,
		intentions: intentions,
		schedules:  schedules,
		session:    session,
		reconciler: reconciler,
		resetter:   resetter,
	}, nil
}

// afterMutation pushes changed state to the sink and wakes the daemons.
func (s *services) afterMutation() {
	if _, err := s.reconciler.Reconcile(); err != nil {
		fmt.Printf("Warning: reconcile failed: %v\n", err)
	}
	if err := s.store.Flush(); err != nil {
		fmt.Printf("Warning: flush failed: %v\n", err)
	}
	if err := s.notifier.Post(); err != nil {
		fmt.Printf("Warning: signal failed: %v\n", err)
	}
}

func createLogger(cfg infra.Config) *zap.Logger {
	config := zap.NewProductionConfig()
	if cfg.LogFile != "" {
		config.OutputPaths = []string{cfg.LogFile}
		config.ErrorOutputPaths = []string{cfg.LogFile}
	}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()
	return ctx, cancel
}

func runApp(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer func() { _ = svc.logger.Sync() }()

	// The entry path only drives presentation; policy comes from the
	// store either way.
	if viaShieldFlag {
		svc.logger.Info("opened via shield secondary action")
	} else {
		svc.logger.Info("opened normally")
	}

	ctx, cancel := signalContext()
	defer cancel()

	app := daemon.NewApp(
		daemon.DefaultAppConfig(),
		svc.store,
		svc.reconciler,
		svc.resetter,
		svc.schedules,
		svc.session,
		svc.notifier,
		svc.registry,
		svc.logger,
	)
	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runMonitor(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer func() { _ = svc.logger.Sync() }()

	ctx, cancel := signalContext()
	defer cancel()

	mon := daemon.NewMonitor(
		daemon.DefaultMonitorConfig(),
		svc.store,
		svc.reconciler,
		svc.intentions,
		svc.schedules,
		svc.intervals,
		svc.notifier,
		svc.registry,
		svc.logger,
	)
	if err := mon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runShieldAction(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer func() { _ = svc.logger.Sync() }()

	// Shield handling has a hard platform deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()

	tok, ok := token.Decode(tokenFlag)
	if !ok {
		tok = domain.AppToken{Payload: []byte(tokenFlag)}
	}

	var action daemon.ShieldAction
	switch actionFlag {
	case "secondary":
		action = daemon.ActionSecondary
	default:
		action = daemon.ActionPrimary
	}

	handler := daemon.NewShieldHandler(
		svc.store,
		svc.intentions,
		svc.intervals,
		svc.reconciler,
		svc.resetter,
		svc.notifier,
		svc.registry,
		svc.logger,
	)
	fmt.Println(string(handler.Handle(ctx, action, tok)))
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer func() { _ = svc.logger.Sync() }()

	now := time.Now()
	fmt.Println("\n=== shieldd Status ===")

	entry, err := svc.registry.Entry()
	if err != nil || entry == nil {
		fmt.Println("Processes: none registered")
	} else {
		roles := make([]string, 0, len(entry.PIDs))
		for role := range entry.PIDs {
			roles = append(roles, role)
		}
		sort.Strings(roles)
		for _, role := range roles {
			state := "dead"
			if svc.registry.IsAlive(domain.ProcessRole(role)) {
				state = "alive"
			}
			fmt.Printf("Process %-14s pid=%-7d %s\n", role, entry.PIDs[role], state)
		}
		if entry.LastHeartbeat > 0 {
			lastBeat := time.Unix(entry.LastHeartbeat, 0)
			fmt.Printf("Last heartbeat: %s ago\n", time.Since(lastBeat).Round(time.Second))
		}
	}

	desired := svc.reconciler.Desired(now)
	fmt.Printf("\nBlocked apps: %d\n", len(desired.Apps))
	fmt.Printf("Category mode: %s", desired.Categories.Mode)
	if desired.Categories.Mode == domain.CategoryBlockAllExcept {
		fmt.Printf(" (%d exclusions)", len(desired.Categories.Exclusions))
	}
	fmt.Println()

	if s := svc.session.State(); s.Active {
		fmt.Printf("Focus session: active for %s\n", svc.session.FormattedDuration(now))
	}
	if svc.schedules.OnBreakAt(now) {
		fmt.Printf("Break: %s remaining\n", svc.schedules.FormattedBreakRemaining(now))
	}

	fmt.Printf("\nOpen attempts today: %d (total %d)\n",
		svc.store.Counter(domain.CounterDailyAttempts),
		svc.store.Counter(domain.CounterTotalAttempts))
	fmt.Printf("Screen time goal: %d minutes\n", svc.store.ScreenTimeGoalMinutes())

	fmt.Println("======================")
	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer func() { _ = svc.logger.Sync() }()

	state, err := svc.reconciler.Reconcile()
	if err != nil {
		return fmt.Errorf("reconcile failed: %w", err)
	}
	fmt.Printf("Blocked apps: %d, category mode: %s\n", len(state.Apps), state.Categories.Mode)
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer func() { _ = svc.logger.Sync() }()

	if err := svc.resetter.ForceReset(); err != nil {
		return fmt.Errorf("daily reset failed: %w", err)
	}
	svc.afterMutation()
	fmt.Println("Daily counters reset.")
	return nil
}

func runLogs(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer func() { _ = svc.logger.Sync() }()

	key := domain.LogShieldAction
	if len(args) == 1 && args[0] == "monitor" {
		key = domain.LogActivityMonitor
	}

	lines := svc.store.Logs(key)
	if len(lines) == 0 {
		fmt.Println("No log entries.")
		return nil
	}
	for _, line := range lines {
		fmt.Println(line)
	}
	return nil
}

func runGoal(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer func() { _ = svc.logger.Sync() }()

	if len(args) == 0 {
		fmt.Printf("Screen time goal: %d minutes\n", svc.store.ScreenTimeGoalMinutes())
		return nil
	}

	minutes, err := strconv.Atoi(args[0])
	if err != nil || minutes <= 0 {
		return fmt.Errorf("invalid goal %q: want positive minutes", args[0])
	}
	if err := svc.store.SetScreenTimeGoalMinutes(minutes); err != nil {
		return fmt.Errorf("failed to save goal: %w", err)
	}
	if err := svc.store.Flush(); err != nil {
		fmt.Printf("Warning: flush failed: %v\n", err)
	}
	fmt.Printf("Screen time goal set to %d minutes.\n", minutes)
	return nil
}

func runIntentionAdd(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer func() { _ = svc.logger.Sync() }()

	name := appNameFlag
	if name == "" {
		name = bundleFlag
	}
	tok := domain.AppToken{Payload: []byte(bundleFlag)}
	intent, err := svc.intentions.Add(tok, name, maxOpensFlag, minutesFlag)
	if err != nil {
		return err
	}
	svc.afterMutation()

	fmt.Printf("Added intention %s: %s, %d opens/day, %d minutes each\n",
		intent.ID, intent.DisplayName, intent.MaxOpensPerDay, intent.SessionDurationMinutes)
	return nil
}

func runIntentionList(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer func() { _ = svc.logger.Sync() }()

	intents := svc.intentions.List()
	if len(intents) == 0 {
		fmt.Println("No intentions configured.")
		return nil
	}

	fmt.Println("\n=== Intentions ===")
	for _, i := range intents {
		state := "under limit"
		if i.IsOverLimit() {
			state = "over limit"
		}
		fmt.Printf("\n[%s] %s\n", i.ID, i.DisplayName)
		fmt.Printf("  Opens today: %d/%d (%s, %d remaining)\n",
			i.CurrentOpens, i.MaxOpensPerDay, state, i.RemainingOpens())
		fmt.Printf("  Unblock window: %d minutes\n", i.SessionDurationMinutes)
		fmt.Printf("  Streak: %d days\n", i.StreakDays)
	}
	fmt.Println("\n==================")
	return nil
}

func runIntentionRemove(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer func() { _ = svc.logger.Sync() }()

	if err := svc.intentions.Remove(args[0]); err != nil {
		return err
	}
	svc.afterMutation()
	fmt.Println("Intention removed.")
	return nil
}

func runScheduleAdd(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer func() { _ = svc.logger.Sync() }()

	startHour, startMinute, err := parseClock(startFlag)
	if err != nil {
		return err
	}
	endHour, endMinute, err := parseClock(endFlag)
	if err != nil {
		return err
	}
	days, err := parseDays(daysFlag)
	if err != nil {
		return err
	}

	sched, err := svc.schedules.Save(domain.Schedule{
		Name:              schedNameFlag,
		StartHour:         startHour,
		StartMinute:       startMinute,
		EndHour:           endHour,
		EndMinute:         endMinute,
		ActiveDays:        days,
		ExcludedAppHashes: excludeFlag,
		IsEnabled:         true,
	})
	if err != nil {
		return err
	}
	svc.afterMutation()

	overnight := ""
	if sched.SpansOvernight() {
		overnight = " (overnight)"
	}
	fmt.Printf("Added schedule %s: %02d:%02d-%02d:%02d%s\n",
		sched.ID, sched.StartHour, sched.StartMinute, sched.EndHour, sched.EndMinute, overnight)
	return nil
}

func runScheduleList(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer func() { _ = svc.logger.Sync() }()

	scheds := svc.schedules.List()
	if len(scheds) == 0 {
		fmt.Println("No schedules configured.")
		return nil
	}

	now := time.Now()
	fmt.Println("\n=== Schedules ===")
	for _, s := range scheds {
		state := "disabled"
		switch {
		case s.IsActiveAt(now):
			state = "active now"
		case s.IsEnabled:
			state = "enabled"
		}
		fmt.Printf("\n[%s] %s\n", s.ID, s.Name)
		fmt.Printf("  Window: %02d:%02d-%02d:%02d  days=%v  %s\n",
			s.StartHour, s.StartMinute, s.EndHour, s.EndMinute, s.ActiveDays, state)
		if len(s.ExcludedAppHashes) > 0 {
			fmt.Printf("  Exclusions: %d apps\n", len(s.ExcludedAppHashes))
		}
	}
	fmt.Println("\n=================")
	return nil
}

func runScheduleRemove(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer func() { _ = svc.logger.Sync() }()

	if err := svc.schedules.Delete(args[0]); err != nil {
		return err
	}
	svc.afterMutation()
	fmt.Println("Schedule removed.")
	return nil
}

func runScheduleToggle(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer func() { _ = svc.logger.Sync() }()

	if err := svc.schedules.Toggle(args[0]); err != nil {
		return err
	}
	svc.afterMutation()
	fmt.Println("Schedule toggled.")
	return nil
}

func runBreakStart(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer func() { _ = svc.logger.Sync() }()

	end, err := svc.schedules.StartBreak(minutesFlag)
	if err != nil {
		return err
	}
	svc.afterMutation()
	fmt.Printf("Break started until %s.\n", end.Format("15:04:05"))
	return nil
}

func runBreakEnd(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer func() { _ = svc.logger.Sync() }()

	if err := svc.schedules.EndBreak(); err != nil {
		return err
	}
	svc.afterMutation()
	fmt.Println("Break ended.")
	return nil
}

func runSessionStart(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer func() { _ = svc.logger.Sync() }()

	var sel domain.Selection
	for _, id := range sessionTokens {
		tok, ok := token.Decode(id)
		if !ok {
			tok = domain.AppToken{Payload: []byte(id)}
		}
		sel.AppTokens = append(sel.AppTokens, tok)
	}
	if err := svc.session.Start(sel); err != nil {
		return err
	}
	svc.afterMutation()
	fmt.Printf("Focus session started blocking %d apps.\n", len(sel.AppTokens))
	return nil
}

func runSessionEnd(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer func() { _ = svc.logger.Sync() }()

	if err := svc.session.End(); err != nil {
		return err
	}
	svc.afterMutation()
	fmt.Println("Focus session ended.")
	return nil
}

func runVersion(cmd *cobra.Command, args []string) {
	fmt.Printf("shieldd %s (commit %s, built %s)\n", Version, Commit, BuildTime)
}

// parseClock parses "HH:MM".
func parseClock(s string) (hour, minute int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}

// parseDays parses a comma-separated day list, 1=Sunday .. 7=Saturday.
func parseDays(s string) ([]int, error) {
	var days []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := strconv.Atoi(part)
		if err != nil || d < domain.WeekdaySunday || d > domain.WeekdaySaturday {
			return nil, fmt.Errorf("invalid day %q: want 1-7", part)
		}
		days = append(days, d)
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("no active days given")
	}
	return days, nil
}
