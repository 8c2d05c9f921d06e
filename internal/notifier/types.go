package notifier

import (
	"context"
	"time"

	logx "todoreminder/pkg/logx"
)

// Config controls the async notification pipeline.
type Config struct {
	Enabled         bool
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
}

// Reminder is one "reminder due" notification.
type Reminder struct {
	TodoID   string    `json:"todo_id"`
	UserID   string    `json:"user_id"`
	Title    string    `json:"title"`
	RemindAt time.Time `json:"remind_at"`
	DueAt    time.Time `json:"due_at"`
}

// Sink performs the actual delivery.
type Sink interface {
	Deliver(ctx context.Context, r Reminder) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, r Reminder) error

func (f SinkFunc) Deliver(ctx context.Context, r Reminder) error { return f(ctx, r) }

// LogSink writes each reminder as an info log line.
type LogSink struct {
	Log logx.Logger
}

func (s LogSink) Deliver(_ context.Context, r Reminder) error {
	s.Log.Info("reminder due",
		logx.String("todo", r.TodoID),
		logx.String("user", r.UserID),
		logx.String("title", r.Title),
		logx.Time("remind_at", r.RemindAt),
	)
	return nil
}

type HistoryItem struct {
	At     time.Time `json:"at"`
	TodoID string    `json:"todo_id"`
}

// NotificationEvent is published on the bus for notifier lifecycle events.
type NotificationEvent struct {
	TodoID string    `json:"todo_id"`
	Key    string    `json:"key"`
	At     time.Time `json:"at"`
	Error  string    `json:"error,omitempty"`
}

// Event types published by the notifier.
const (
	EventQueued  = "notifier.queued"
	EventDeduped = "notifier.deduped"
	EventDropped = "notifier.dropped"
	EventSent    = "notifier.sent"
	EventFailed  = "notifier.failed"
)
