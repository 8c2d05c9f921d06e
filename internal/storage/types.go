package storage

import (
	"time"

	"todoreminder/internal/todo"
	"todoreminder/internal/user"
)

// Store is the persistence API used by the lifecycle service and the HTTP layer.
type Store interface {
	todo.Store
	user.Store
	Driver() string
	Close() error
}

// Config configures storage.
//
// Driver values:
//   - "memory" (or empty): in-process, lost on restart
//   - "sqlite": SQLite database file at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	// Clock stamps CreatedAt/UpdatedAt. Nil means the wall clock.
	Clock todo.Clock
}

// nextUpdatedAt returns a timestamp strictly after prev.
// A candidate that ties or regresses is bumped by one nanosecond past prev.
func nextUpdatedAt(prev, candidate time.Time) time.Time {
	candidate = candidate.UTC()
	if !candidate.After(prev) {
		return prev.Add(time.Nanosecond).UTC()
	}
	return candidate
}

// checkPreconditions reports todo.ErrConflict when p's guards do not match cur.
func checkPreconditions(cur todo.Todo, p todo.Patch) error {
	if p.IfStatus != nil && cur.Status != *p.IfStatus {
		return todo.ErrConflict
	}
	if p.IfVersion > 0 && cur.Version != p.IfVersion {
		return todo.ErrConflict
	}
	return nil
}

// applyPatch merges p into cur and stamps the next UpdatedAt/Version.
func applyPatch(cur todo.Todo, p todo.Patch, now time.Time) todo.Todo {
	if p.Status != nil {
		cur.Status = *p.Status
	}
	if p.Description != nil {
		cur.Description = *p.Description
	}
	if p.RemindAt != nil {
		at := p.RemindAt.UTC()
		cur.RemindAt = &at
	}
	hint := p.UpdatedAt
	if hint.IsZero() {
		hint = now
	}
	cur.UpdatedAt = nextUpdatedAt(cur.UpdatedAt, hint)
	cur.Version++
	return cur
}

func cloneTodo(t todo.Todo) todo.Todo {
	if t.RemindAt != nil {
		at := *t.RemindAt
		t.RemindAt = &at
	}
	return t
}
