package app

import (
	"context"
	"time"

	"github.com/hylla/tavla/internal/domain"
)

// StatusCounter reports how many tasks of one status are shown versus present remotely.
type StatusCounter struct {
	Shown int
	Total int
}

// TaskList is one remote task list response.
type TaskList struct {
	Tasks    []domain.Task
	Counters map[string]StatusCounter
}

// StatusRecord is one raw status row reported by the remote.
type StatusRecord struct {
	ID       string
	Name     string
	Position int
	IsClosed bool
}

// Receipt describes the outcome of one remote status write.
type Receipt struct {
	TaskID    string
	StatusID  string
	RequestID string
	NoOp      bool
}

// TaskSource fetches the authoritative task list.
type TaskSource interface {
	ListTasks(context.Context) (TaskList, error)
}

// StatusSource fetches the remote status metadata.
type StatusSource interface {
	ListStatuses(context.Context) ([]StatusRecord, error)
}

// StatusWriter persists one task status change remotely.
type StatusWriter interface {
	UpdateTaskStatus(ctx context.Context, taskID, statusID string) (Receipt, error)
}

// Remote combines every remote port used by a board session.
type Remote interface {
	TaskSource
	StatusSource
	StatusWriter
}

// Logger receives structured key-value log records.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}

// Clock returns the current time.
type Clock func() time.Time

// nopLogger discards everything.
type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// loggerOrNop returns a usable logger.
func loggerOrNop(logger Logger) Logger {
	if logger == nil {
		return nopLogger{}
	}
	return logger
}

// clockOrNow returns a usable clock.
func clockOrNow(clock Clock) Clock {
	if clock == nil {
		return time.Now
	}
	return clock
}
