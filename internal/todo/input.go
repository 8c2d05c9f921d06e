package todo

import (
	"fmt"
	"strings"
	"time"
)

// CreateInput is the raw create payload as received from a caller.
type CreateInput struct {
	UserID      string
	Title       string
	Description string
	// RemindAt is an RFC 3339 timestamp; empty means no reminder.
	RemindAt string
}

// ParseCreateInput validates in and converts it to a NewTodo in PENDING state.
func ParseCreateInput(in CreateInput) (NewTodo, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return NewTodo{}, fmt.Errorf("%w: userId is required", ErrValidation)
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return NewTodo{}, fmt.Errorf("%w: title cannot be empty or whitespace", ErrValidation)
	}

	out := NewTodo{
		UserID:      userID,
		Title:       title,
		Description: in.Description,
		Status:      StatusPending,
	}
	if raw := strings.TrimSpace(in.RemindAt); raw != "" {
		at, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return NewTodo{}, fmt.Errorf("%w: remindAt %q is not an RFC 3339 timestamp", ErrValidation, raw)
		}
		at = at.UTC()
		out.RemindAt = &at
	}
	return out, nil
}
