package todo

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"todoreminder/internal/eventbus"
	logx "todoreminder/pkg/logx"
)

// Event types published on the bus. Data is the affected Todo.
const (
	EventCreated     = "todo.created"
	EventCompleted   = "todo.completed"
	EventReminderDue = "todo.reminder_due"
)

// completeAttempts bounds the CAS retry loop in CompleteTodo.
const completeAttempts = 5

// Service enforces the todo lifecycle:
//
//	PENDING      --(reminder scan)--> REMINDER_DUE
//	PENDING      --(complete)-------> DONE
//	REMINDER_DUE --(complete)-------> DONE
//	DONE         --(complete)-------> DONE (no-op)
//
// It holds no todo state; every read and write goes through Store.
type Service struct {
	store Store
	users UserLookup
	clock Clock
	log   logx.Logger
	bus   eventbus.Bus
}

type Option func(*Service)

func WithClock(c Clock) Option { return func(s *Service) { s.clock = c } }

func WithLogger(log logx.Logger) Option { return func(s *Service) { s.log = log } }

// WithBus makes the service publish lifecycle events.
func WithBus(bus eventbus.Bus) Option { return func(s *Service) { s.bus = bus } }

func NewService(store Store, users UserLookup, opts ...Option) *Service {
	s := &Service{store: store, users: users}
	for _, o := range opts {
		o(s)
	}
	if s.clock == nil {
		s.clock = SystemClock
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

// CreateTodo validates in, checks the owner exists and stores a PENDING todo.
func (s *Service) CreateTodo(ctx context.Context, in CreateInput) (Todo, error) {
	nt, err := ParseCreateInput(in)
	if err != nil {
		return Todo{}, err
	}

	_, ok, err := s.users.FindUser(ctx, nt.UserID)
	if err != nil {
		return Todo{}, fmt.Errorf("lookup user %s: %w", nt.UserID, err)
	}
	if !ok {
		return Todo{}, fmt.Errorf("%w: user with ID %s", ErrNotFound, nt.UserID)
	}

	t, err := s.store.Create(ctx, nt)
	if err != nil {
		return Todo{}, fmt.Errorf("create todo: %w", err)
	}
	s.log.Debug("todo created", logx.String("id", t.ID), logx.String("user", t.UserID), logx.Bool("reminder", t.RemindAt != nil))
	s.publish(EventCreated, t)
	return t, nil
}

// CompleteTodo moves the todo to DONE. Completing a DONE todo returns it unchanged.
func (s *Service) CompleteTodo(ctx context.Context, id string) (Todo, error) {
	id = strings.TrimSpace(id)
	for attempt := 1; attempt <= completeAttempts; attempt++ {
		cur, ok, err := s.store.FindByID(ctx, id)
		if err != nil {
			return Todo{}, fmt.Errorf("find todo %s: %w", id, err)
		}
		if !ok {
			return Todo{}, fmt.Errorf("%w: todo with ID %s", ErrNotFound, id)
		}
		if cur.Status.Terminal() {
			return cur, nil
		}

		updated, ok, err := s.store.Update(ctx, id, Patch{
			Status:    StatusPtr(StatusDone),
			UpdatedAt: s.clock.Now(),
			IfVersion: cur.Version,
		})
		if errors.Is(err, ErrConflict) {
			// Someone else wrote in between (usually the reminder scan); re-read.
			s.log.Debug("complete raced with another writer; retrying", logx.String("id", id), logx.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return Todo{}, fmt.Errorf("complete todo %s: %w", id, err)
		}
		if !ok {
			return Todo{}, fmt.Errorf("%w: todo with ID %s", ErrNotFound, id)
		}
		s.publish(EventCompleted, updated)
		return updated, nil
	}
	return Todo{}, fmt.Errorf("complete todo %s: %w", id, ErrConflict)
}

// TodosByUser lists a user's todos. It never returns a nil slice.
func (s *Service) TodosByUser(ctx context.Context, userID string) ([]Todo, error) {
	list, err := s.store.FindByUserID(ctx, strings.TrimSpace(userID))
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	if list == nil {
		list = []Todo{}
	}
	return list, nil
}

// ProcessReminders promotes every due PENDING todo to REMINDER_DUE.
//
// Each write is a compare-and-swap on PENDING, so a todo completed after the
// scan read it stays DONE. Per-record failures are logged and skipped. The
// returned error is non-nil only when the due set could not be read at all,
// or ctx was canceled mid-scan.
func (s *Service) ProcessReminders(ctx context.Context) error {
	start := time.Now()
	now := s.clock.Now()
	due, err := s.store.FindDueReminders(ctx, now)
	if err != nil {
		return fmt.Errorf("find due reminders: %w", err)
	}

	promoted, skipped, failed := 0, 0, 0
	for _, t := range due {
		if err := ctx.Err(); err != nil {
			return err
		}
		if t.Status != StatusPending {
			skipped++
			continue
		}

		updated, ok, err := s.promote(ctx, t)
		switch {
		case errors.Is(err, ErrConflict):
			skipped++
			s.log.Debug("reminder skipped: todo changed since scan", logx.String("id", t.ID))
		case err != nil:
			failed++
			s.log.Warn("reminder promotion failed", logx.String("id", t.ID), logx.Any("err", err))
		case !ok:
			skipped++
			s.log.Debug("reminder skipped: todo vanished", logx.String("id", t.ID))
		default:
			promoted++
			s.publish(EventReminderDue, updated)
		}
	}

	fields := []logx.Field{
		logx.Int("due", len(due)),
		logx.Int("promoted", promoted),
		logx.Int("skipped", skipped),
		logx.Int("failed", failed),
		logx.Duration("took", time.Since(start)),
	}
	if promoted > 0 || failed > 0 {
		s.log.Info("reminder scan finished", fields...)
	} else {
		s.log.Debug("reminder scan finished", fields...)
	}
	return nil
}

// promote isolates one record: a panicking store call becomes an error for that record only.
func (s *Service) promote(ctx context.Context, t Todo) (out Todo, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("reminder promotion panicked", logx.String("id", t.ID), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.store.Update(ctx, t.ID, Patch{
		Status:    StatusPtr(StatusReminderDue),
		UpdatedAt: s.clock.Now(),
		IfStatus:  StatusPtr(StatusPending),
	})
}

func (s *Service) publish(typ string, t Todo) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: t.UpdatedAt, Data: t})
}
