// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"
	"time"

	"github.com/hylla/tavla/internal/adapters/remote"
)

// DefaultChangeLimit bounds status history responses when no limit is supplied.
const DefaultChangeLimit = 20

// ErrInvalidRequest reports malformed transport input.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNotFound reports missing transport-visible resources.
var ErrNotFound = errors.New("not found")

// ErrConflict reports a request the task service refuses in its current state.
var ErrConflict = errors.New("conflict")

// ListTasksRequest captures one task list query.
type ListTasksRequest struct {
	// Limit caps the tasks returned per status; zero or less means unlimited.
	Limit int
}

// SetTaskStatusRequest captures one status change.
type SetTaskStatusRequest struct {
	TaskID    string
	StatusID  string
	RequestID string
}

// ListStatusChangesRequest captures one status history query.
type ListStatusChangesRequest struct {
	TaskID string
	Limit  int
}

// StatusChange is one recorded transition in transport shape.
type StatusChange struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"task_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	RequestID  string    `json:"request_id,omitempty"`
	ChangedAt  time.Time `json:"changed_at"`
}

// TaskService exposes the sandbox task service to transports.
type TaskService interface {
	ListStatuses(context.Context) ([]remote.StatusRecord, error)
	ListTasks(context.Context, ListTasksRequest) (remote.TaskListResponse, error)
	SetTaskStatus(context.Context, SetTaskStatusRequest) (remote.TaskRecord, error)
	ListStatusChanges(context.Context, ListStatusChangesRequest) ([]StatusChange, error)
}
