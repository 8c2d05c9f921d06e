package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"todoreminder/internal/eventbus"
	logx "todoreminder/pkg/logx"
)

var (
	ErrNameRequired   = errors.New("task name required")
	ErrInvalidPeriod  = errors.New("period must be > 0")
	ErrWorkRequired   = errors.New("task work required")
	ErrSchedulerEnded = errors.New("scheduler stopped")
)

// Config controls the runner.
type Config struct {
	Timezone string // IANA TZ for cron specs, e.g. "Europe/Berlin"; empty means local

	// DefaultTimeout bounds one run when TaskOptions.Timeout is 0. 0 means unbounded.
	DefaultTimeout time.Duration
	HistorySize    int
}

// Work is one invocation of a recurring task.
type Work func(ctx context.Context) error

type TaskOptions struct {
	Timeout time.Duration
	// RunOnStart fires the first run immediately instead of one period in.
	RunOnStart bool
}

type HistoryItem struct {
	Name     string
	Started  time.Time
	Duration time.Duration
	Error    string
}

// TaskEvent is published on the bus as "task.failed".
type TaskEvent struct {
	Name     string
	Started  time.Time
	Duration time.Duration
	Error    string
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	bus eventbus.Bus

	parser cron.Parser
	tasks  map[string]*Handle
	closed bool

	hmu     sync.Mutex
	history []HistoryItem
}

type ScheduleInfo struct {
	Name     string
	Spec     string
	Timeout  time.Duration
	Next     time.Time
	Prev     time.Time
	Runs     uint64
	Failures uint64
	Running  bool
}

type Snapshot struct {
	Timezone  string
	Schedules []ScheduleInfo
	History   []HistoryItem
}
