package todo

import (
	"context"
	"time"

	"todoreminder/internal/user"
)

type Status string

const (
	StatusPending     Status = "PENDING"
	StatusReminderDue Status = "REMINDER_DUE"
	StatusDone        Status = "DONE"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusReminderDue, StatusDone:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool { return s == StatusDone }

// Todo is a single item owned by a user.
//
// UpdatedAt strictly increases on every successful update of the same record;
// Version counts those updates and backs compare-and-swap writes.
type Todo struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      Status     `json:"status"`
	RemindAt    *time.Time `json:"remindAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	Version     int64      `json:"version"`
}

// ReminderDue reports whether the reminder scan should select t at now.
func (t Todo) ReminderDue(now time.Time) bool {
	return t.Status == StatusPending && t.RemindAt != nil && !t.RemindAt.After(now)
}

// NewTodo is the validated shape handed to Store.Create.
type NewTodo struct {
	UserID      string
	Title       string
	Description string
	Status      Status
	RemindAt    *time.Time
}

// Patch describes a partial update. Nil fields are left untouched.
//
// IfStatus and IfVersion are preconditions checked atomically with the write;
// a mismatch fails the update with ErrConflict.
type Patch struct {
	Status      *Status
	Description *string
	RemindAt    *time.Time

	// UpdatedAt is a hint; the store advances it when it would not move forward.
	UpdatedAt time.Time

	IfStatus  *Status
	IfVersion int64
}

// Store is the authoritative todo collection.
//
// Not-found is reported through the bool result, never as an error.
type Store interface {
	Create(ctx context.Context, in NewTodo) (Todo, error)
	Update(ctx context.Context, id string, p Patch) (Todo, bool, error)
	FindByID(ctx context.Context, id string) (Todo, bool, error)
	FindByUserID(ctx context.Context, userID string) ([]Todo, error)
	FindDueReminders(ctx context.Context, now time.Time) ([]Todo, error)
}

// UserLookup resolves owners at creation time.
type UserLookup interface {
	FindUser(ctx context.Context, id string) (user.User, bool, error)
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

func StatusPtr(s Status) *Status { return &s }
