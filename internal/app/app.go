package app

import (
	"context"
	"fmt"
	"time"

	"todoreminder/internal/config"
	"todoreminder/internal/eventbus"
	"todoreminder/internal/notifier"
	"todoreminder/internal/observability/metrics"
	rtsup "todoreminder/internal/runtime/supervisor"
	"todoreminder/internal/storage"
	"todoreminder/internal/task/scheduler"
	"todoreminder/internal/todo"
	"todoreminder/internal/transport/httpapi"
	logx "todoreminder/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	todos *todo.Service
	sched *scheduler.Service
	notif *notifier.Service
	http  *httpapi.Server
	mtr   *metrics.Metrics

	startedAt time.Time
}

// New loads the config at cfgPath and builds every component. Nothing runs
// until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, root := logx.New(mapLoggingConfig(cfg))
	log := root.With(logx.String("comp", "app"))

	sc := mapStorageConfig(cfg)
	store, err := storage.Open(sc, root.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	log.Info("storage ready", logx.String("driver", store.Driver()))

	bus := eventbus.New()
	todos := todo.NewService(store, store,
		todo.WithLogger(root.With(logx.String("comp", "todo"))),
		todo.WithBus(bus),
	)
	sched := scheduler.New(mapSchedulerConfig(cfg), root.With(logx.String("comp", "scheduler")), bus)

	notifLog := root.With(logx.String("comp", "notifier"))
	notif := notifier.New(mapNotifierConfig(cfg), notifier.LogSink{Log: notifLog}, notifLog, bus)

	a := &App{
		cfgm:  cfgm,
		log:   log,
		logs:  logSvc,
		bus:   bus,
		store: store,
		todos: todos,
		sched: sched,
		notif: notif,
		mtr:   metrics.New(),
	}
	httpLog := root.With(logx.String("comp", "http"))
	api := httpapi.NewAPI(todos, store, a.Health, httpLog)
	a.http = httpapi.NewServer(mapHTTPConfig(cfg), api, httpLog, httpapi.WithInstrumentation(a.mtr))
	return a, nil
}

func (a *App) Todos() *todo.Service { return a.todos }

func (a *App) Scheduler() *scheduler.Service { return a.sched }

// HTTPAddr is the bound API address, empty while the listener is down.
func (a *App) HTTPAddr() string { return a.http.Addr() }

// Done is closed when the app context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.startedAt = time.Now()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if mapStorageConfig(cfg) != mapStorageConfig(a.cfgm.Get()) {
			a.log.Warn("storage config changed; restart required for it to take effect")
		}
		return nil
	})

	cfg := a.cfgm.Get()
	if a.notif.Enabled() {
		a.notif.Start(a.sup.Context())
	}
	if err := a.applyReminders(cfg); err != nil {
		return err
	}
	if cfg.HTTP.Enabled {
		a.http.Start(a.sup.Context())
	}

	if a.bus != nil {
		events, unsub := a.bus.Subscribe(128)
		a.sup.Go("eventbus.observe", func(c context.Context) error {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return nil
				case e, ok := <-events:
					if !ok {
						return nil
					}
					a.mtr.Observe(e)
					a.log.Trace("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				}
			}
		})
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started",
		logx.Bool("http", cfg.HTTP.Enabled),
		logx.Bool("reminders", cfg.Reminders.Enabled),
		logx.String("schedule", cfg.ReminderSchedule()),
	)
	return nil
}

// applyReminders (re)schedules the reminder scan. Scheduling under the same
// name replaces the previous task.
func (a *App) applyReminders(cfg *config.Config) error {
	if !cfg.Reminders.Enabled {
		if a.sched.Stop(reminderTask) {
			a.log.Info("reminder processing disabled")
		}
		return nil
	}
	err := a.sched.ScheduleOpt(reminderTask, cfg.ReminderSchedule(), reminderOptions(cfg), a.todos.ProcessReminders)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", reminderTask, err)
	}
	return nil
}

// Health feeds GET /health.
func (a *App) Health(context.Context) map[string]any {
	out := map[string]any{
		"storage":   a.store.Driver(),
		"scheduler": a.sched.Snapshot(),
		"notified":  len(a.notif.Snapshot()),
		"dropped":   a.bus.Dropped(),
	}
	if !a.startedAt.IsZero() {
		out["uptime"] = time.Since(a.startedAt).Round(time.Second).String()
	}
	if a.sup != nil {
		out["supervisor"] = a.sup.Snapshot()
	}
	return out
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	// Each step is bounded so one component cannot stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			max = min(max, time.Until(dl))
		}
		if max <= 0 {
			a.log.Warn("stop step skipped: deadline reached", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Any("err", err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("http", 3*time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.StopAll(c); return nil })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
