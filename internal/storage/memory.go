package storage

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"todoreminder/internal/todo"
	"todoreminder/internal/user"
)

// record is one arena slot. Its mutex serializes read-modify-write of t.
type record struct {
	mu sync.Mutex
	t  todo.Todo
}

func (r *record) snapshot() todo.Todo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneTodo(r.t)
}

// Memory is the in-process driver.
//
// Todos live in an append-only arena indexed by id. The arena lock guards the
// slice and index only; field mutation happens under the record's own lock,
// so updates to different todos never contend.
type Memory struct {
	clock todo.Clock

	mu    sync.RWMutex
	todos []*record
	byID  map[string]int

	umu   sync.RWMutex
	users map[string]user.User
}

func NewMemory(clock todo.Clock) *Memory {
	if clock == nil {
		clock = todo.SystemClock
	}
	return &Memory{
		clock: clock,
		byID:  map[string]int{},
		users: map[string]user.User{},
	}
}

func (m *Memory) Driver() string { return "memory" }

func (m *Memory) Close() error { return nil }

func (m *Memory) Create(ctx context.Context, in todo.NewTodo) (todo.Todo, error) {
	_ = ctx
	now := m.clock.Now().UTC()
	t := cloneTodo(todo.Todo{
		UserID:      in.UserID,
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		RemindAt:    in.RemindAt,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	})
	if t.Status == "" {
		t.Status = todo.StatusPending
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	for {
		if _, taken := m.byID[id]; !taken {
			break
		}
		id = uuid.NewString()
	}
	t.ID = id
	m.todos = append(m.todos, &record{t: t})
	m.byID[id] = len(m.todos) - 1
	return cloneTodo(t), nil
}

func (m *Memory) lookup(id string) *record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.byID[id]
	if !ok {
		return nil
	}
	return m.todos[idx]
}

func (m *Memory) Update(ctx context.Context, id string, p todo.Patch) (todo.Todo, bool, error) {
	_ = ctx
	rec := m.lookup(id)
	if rec == nil {
		return todo.Todo{}, false, nil
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if err := checkPreconditions(rec.t, p); err != nil {
		return todo.Todo{}, true, err
	}
	rec.t = applyPatch(rec.t, p, m.clock.Now())
	return cloneTodo(rec.t), true, nil
}

func (m *Memory) FindByID(ctx context.Context, id string) (todo.Todo, bool, error) {
	_ = ctx
	rec := m.lookup(id)
	if rec == nil {
		return todo.Todo{}, false, nil
	}
	return rec.snapshot(), true, nil
}

func (m *Memory) FindByUserID(ctx context.Context, userID string) ([]todo.Todo, error) {
	return m.filter(ctx, func(t todo.Todo) bool { return t.UserID == userID })
}

func (m *Memory) FindDueReminders(ctx context.Context, now time.Time) ([]todo.Todo, error) {
	return m.filter(ctx, func(t todo.Todo) bool { return t.ReminderDue(now) })
}

func (m *Memory) filter(ctx context.Context, keep func(todo.Todo) bool) ([]todo.Todo, error) {
	m.mu.RLock()
	recs := make([]*record, len(m.todos))
	copy(recs, m.todos)
	m.mu.RUnlock()

	out := []todo.Todo{}
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t := rec.snapshot()
		if keep(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *Memory) CreateUser(ctx context.Context, in user.NewUser) (user.User, error) {
	_ = ctx
	u := user.User{
		Email:     strings.TrimSpace(in.Email),
		Name:      strings.TrimSpace(in.Name),
		CreatedAt: m.clock.Now().UTC(),
	}

	m.umu.Lock()
	defer m.umu.Unlock()
	u.ID = uuid.NewString()
	for {
		if _, taken := m.users[u.ID]; !taken {
			break
		}
		u.ID = uuid.NewString()
	}
	m.users[u.ID] = u
	return u, nil
}

func (m *Memory) FindUser(ctx context.Context, id string) (user.User, bool, error) {
	_ = ctx
	m.umu.RLock()
	defer m.umu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}
