package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"todoreminder/internal/eventbus"
	logx "todoreminder/pkg/logx"
)

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		cfg: cfg,
		log: log,
		bus: bus,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		tasks:  map[string]*Handle{},
	}
	s.loc = s.loadLocationLocked()
	return s
}

// Apply swaps the config. A timezone change re-registers cron-based tasks so
// their next trigger is computed in the new location.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	s.cfg = cfg
	if oldTZ == strings.TrimSpace(cfg.Timezone) || s.closed {
		s.mu.Unlock()
		return
	}
	s.loc = s.loadLocationLocked()
	var moved []*Handle
	for _, h := range s.tasks {
		if h.kind == SpecCron {
			moved = append(moved, h)
		}
	}
	s.mu.Unlock()

	for _, h := range moved {
		opt := TaskOptions{Timeout: h.timeout}
		if err := s.ScheduleOpt(h.name, h.spec, opt, h.work); err != nil {
			s.log.Error("reschedule after timezone change failed", logx.String("name", h.name), logx.Any("err", err))
		}
	}
	s.log.Info("timezone changed", logx.String("tz", s.Location().String()), logx.Int("rescheduled", len(moved)))
}

func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc
}

// ScheduleRecurring runs work every period until Stop(name). An existing task
// with the same name is stopped first.
func (s *Service) ScheduleRecurring(name string, every time.Duration, work Work) error {
	return s.ScheduleRecurringOpt(name, every, TaskOptions{}, work)
}

func (s *Service) ScheduleRecurringOpt(name string, every time.Duration, opt TaskOptions, work Work) error {
	if every <= 0 {
		return ErrInvalidPeriod
	}
	_, err := s.start(name, fmt.Sprintf("@every %s", every), SpecInterval, everySchedule{period: every}, opt, work)
	return err
}

// Schedule parses spec and registers either a cron or interval task.
//
// Supported schedule formats:
//   - Cron: "*/5 * * * *", "55 * * * *", "@hourly", "@every 55m"
//   - Interval duration: "55m", "2h30m"
//   - Interval HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
func (s *Service) Schedule(name, spec string, work Work) error {
	return s.ScheduleOpt(name, spec, TaskOptions{}, work)
}

func (s *Service) ScheduleOpt(name, spec string, opt TaskOptions, work Work) error {
	ps, err := ParseSchedule(spec)
	if err != nil {
		return err
	}
	switch ps.Kind {
	case SpecInterval:
		return s.ScheduleRecurringOpt(name, ps.Every, opt, work)
	case SpecCron:
		sched, err := s.parser.Parse(ps.Cron)
		if err != nil {
			return fmt.Errorf("parse cron %q: %w", ps.Cron, err)
		}
		_, err = s.start(name, ps.Cron, SpecCron, sched, opt, work)
		return err
	default:
		return fmt.Errorf("unsupported schedule kind")
	}
}

func (s *Service) start(name, spec string, kind SpecKind, sched cron.Schedule, opt TaskOptions, work Work) (*Handle, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if work == nil {
		return nil, ErrWorkRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSchedulerEnded
	}

	timeout := opt.Timeout
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		name:       name,
		spec:       spec,
		kind:       kind,
		sched:      sched,
		loc:        s.loc,
		timeout:    timeout,
		runOnStart: opt.RunOnStart,
		work:       work,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	// Upsert by name: the previous handle stops triggering before the new one starts.
	replaced := s.removeLocked(name)
	s.tasks[name] = h
	go s.loop(ctx, h)

	s.log.Debug("schedule registered", logx.String("name", name), logx.String("spec", spec), logx.Duration("timeout", timeout), logx.Bool("replaced", replaced))
	return h, nil
}

// Handle returns the live handle for name.
func (s *Service) Handle(name string) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.tasks[strings.TrimSpace(name)]
	return h, ok
}

// Stop cancels the named task. Unknown names are a no-op and return false.
//
// Stop does not wait: a run already in progress sees its context canceled and
// finishes on its own. Use Handle.Wait or StopAll to wait for it.
func (s *Service) Stop(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := s.removeLocked(strings.TrimSpace(name))
	if removed {
		s.log.Debug("schedule stopped", logx.String("name", name))
	}
	return removed
}

func (s *Service) removeLocked(name string) bool {
	h, ok := s.tasks[name]
	if !ok {
		return false
	}
	delete(s.tasks, name)
	h.cancel()
	return true
}

// StopAll stops every task, refuses new ones and waits for running loops to
// exit until ctx ends.
func (s *Service) StopAll(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	s.closed = true
	handles := make([]*Handle, 0, len(s.tasks))
	for name, h := range s.tasks {
		handles = append(handles, h)
		delete(s.tasks, name)
		h.cancel()
	}
	s.mu.Unlock()

	pending := 0
	for _, h := range handles {
		if err := h.Wait(ctx); err != nil {
			pending++
		}
	}
	if pending > 0 {
		s.log.Warn("scheduler stop timed out", logx.Int("pending", pending), logx.Duration("took", time.Since(start)))
		return
	}
	s.log.Info("scheduler stopped", logx.Int("tasks", len(handles)), logx.Duration("took", time.Since(start)))
}

// loop triggers h until its context is canceled. The next trigger is derived
// from the previous one; runs that overrun a period skip the missed triggers.
func (s *Service) loop(ctx context.Context, h *Handle) {
	defer close(h.done)

	if h.runOnStart {
		s.execOne(ctx, h)
	}
	last := time.Now()
	for {
		if ctx.Err() != nil {
			return
		}
		now := time.Now()
		next := h.sched.Next(last.In(h.loc))
		if !next.After(now) {
			next = h.sched.Next(now.In(h.loc))
		}
		if next.IsZero() {
			s.log.Warn("schedule has no next run; stopping", logx.String("name", h.name), logx.String("spec", h.spec))
			return
		}
		h.setNext(next)

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if ctx.Err() != nil {
			return
		}
		last = next
		s.execOne(ctx, h)
	}
}

func (s *Service) execOne(ctx context.Context, h *Handle) {
	start := time.Now()
	h.markStart(start)
	s.log.Trace("task.started", logx.String("task", h.name))

	runCtx := ctx
	var cancel context.CancelFunc
	if h.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, h.timeout)
	}
	var err error
	// A panicking task becomes a failed run; the loop and the process survive.
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				s.log.Error("task.panic", logx.String("task", h.name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		err = h.work(runCtx)
	}()
	if cancel != nil {
		cancel()
	}
	dur := time.Since(start)
	h.markDone(err)

	item := HistoryItem{Name: h.name, Started: start, Duration: dur}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("task.failed", logx.String("task", h.name), logx.Any("err", err), logx.Duration("dur", dur))
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: "task.failed", Time: time.Now(), Data: TaskEvent{Name: h.name, Started: start, Duration: dur, Error: item.Error}})
		}
	} else {
		s.log.Debug("task.done", logx.String("task", h.name), logx.Duration("dur", dur))
	}
	s.appendHistory(item)
}

func (s *Service) appendHistory(item HistoryItem) {
	s.mu.Lock()
	size := s.cfg.HistorySize
	s.mu.Unlock()
	if size <= 0 {
		size = 200
	}

	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > size {
		s.history = s.history[len(s.history)-size:]
	}
	s.hmu.Unlock()
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	handles := make([]*Handle, 0, len(s.tasks))
	for _, h := range s.tasks {
		handles = append(handles, h)
	}
	loc := s.loc
	s.mu.Unlock()

	items := make([]ScheduleInfo, 0, len(handles))
	for _, h := range handles {
		items = append(items, h.info())
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })

	s.hmu.Lock()
	hist := make([]HistoryItem, len(s.history))
	copy(hist, s.history)
	s.hmu.Unlock()

	return Snapshot{Timezone: loc.String(), Schedules: items, History: hist}
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, falling back to Local", logx.String("tz", tz), logx.Any("err", err))
		return time.Local
	}
	return loc
}
