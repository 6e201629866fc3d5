package common

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hylla/tavla/internal/adapters/remote"
	"github.com/hylla/tavla/internal/adapters/storage/sqlite"
	"github.com/hylla/tavla/internal/domain"
)

// StoreAdapter maps transport contracts onto the sqlite sandbox repository.
type StoreAdapter struct {
	repo  *sqlite.Repository
	clock func() time.Time
}

// NewStoreAdapter builds one adapter over a repository.
func NewStoreAdapter(repo *sqlite.Repository, clock func() time.Time) *StoreAdapter {
	if clock == nil {
		clock = time.Now
	}
	return &StoreAdapter{repo: repo, clock: clock}
}

// ListStatuses lists statuses in position order.
func (a *StoreAdapter) ListStatuses(ctx context.Context) ([]remote.StatusRecord, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	rows, err := a.repo.ListStatuses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	out := make([]remote.StatusRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, remote.StatusRecord{
			ID:       remote.FlexID(row.ID),
			Name:     row.Name,
			Position: row.Position,
			IsClosed: row.IsClosed,
		})
	}
	return out, nil
}

// ListTasks lists tasks with per-status counters.
func (a *StoreAdapter) ListTasks(ctx context.Context, in ListTasksRequest) (remote.TaskListResponse, error) {
	if err := a.ready(); err != nil {
		return remote.TaskListResponse{}, err
	}
	if in.Limit < 0 {
		return remote.TaskListResponse{}, fmt.Errorf("limit must not be negative: %w", ErrInvalidRequest)
	}
	tasks, counters, err := a.repo.ListTasks(ctx, in.Limit)
	if err != nil {
		return remote.TaskListResponse{}, fmt.Errorf("list tasks: %w", err)
	}
	out := remote.TaskListResponse{
		Tasks:        make([]remote.TaskRecord, 0, len(tasks)),
		StatusCounts: make([]remote.StatusCount, 0, len(counters)),
	}
	for _, task := range tasks {
		out.Tasks = append(out.Tasks, remote.TaskRecordFromDomain(task))
	}
	ids := make([]string, 0, len(counters))
	for id := range counters {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, domain.CompareIDs)
	for _, id := range ids {
		counter := counters[id]
		out.StatusCounts = append(out.StatusCounts, remote.StatusCount{
			StatusID: remote.FlexID(id),
			Shown:    counter.Shown,
			Total:    counter.Total,
		})
	}
	return out, nil
}

// SetTaskStatus changes one task's status.
func (a *StoreAdapter) SetTaskStatus(ctx context.Context, in SetTaskStatusRequest) (remote.TaskRecord, error) {
	if err := a.ready(); err != nil {
		return remote.TaskRecord{}, err
	}
	taskID := strings.TrimSpace(in.TaskID)
	statusID := strings.TrimSpace(in.StatusID)
	if taskID == "" {
		return remote.TaskRecord{}, fmt.Errorf("task_id is required: %w", ErrInvalidRequest)
	}
	if statusID == "" {
		return remote.TaskRecord{}, fmt.Errorf("status_id is required: %w", ErrInvalidRequest)
	}
	task, err := a.repo.SetTaskStatus(ctx, taskID, statusID, strings.TrimSpace(in.RequestID), a.clock())
	if err != nil {
		return remote.TaskRecord{}, mapStoreError("set task status", err)
	}
	return remote.TaskRecordFromDomain(task), nil
}

// ListStatusChanges lists one task's recorded transitions, newest first.
func (a *StoreAdapter) ListStatusChanges(ctx context.Context, in ListStatusChangesRequest) ([]StatusChange, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	taskID := strings.TrimSpace(in.TaskID)
	if taskID == "" {
		return nil, fmt.Errorf("task_id is required: %w", ErrInvalidRequest)
	}
	if _, err := a.repo.GetTask(ctx, taskID); err != nil {
		return nil, mapStoreError("list status changes", err)
	}
	limit := in.Limit
	if limit <= 0 {
		limit = DefaultChangeLimit
	}
	rows, err := a.repo.ListStatusChanges(ctx, taskID, limit)
	if err != nil {
		return nil, mapStoreError("list status changes", err)
	}
	out := make([]StatusChange, 0, len(rows))
	for _, row := range rows {
		out = append(out, StatusChange{
			ID:         row.ID,
			TaskID:     row.TaskID,
			FromStatus: row.From,
			ToStatus:   row.To,
			RequestID:  row.RequestID,
			ChangedAt:  row.ChangedAt,
		})
	}
	return out, nil
}

// ready reports whether the adapter has a backing repository.
func (a *StoreAdapter) ready() error {
	if a == nil || a.repo == nil {
		return errors.New("store adapter is not configured")
	}
	return nil
}

// mapStoreError maps repository errors onto transport sentinels.
func mapStoreError(op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrUnknownTask):
		return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
	case errors.Is(err, domain.ErrUnknownColumn):
		return fmt.Errorf("%s: %w: %w", op, ErrInvalidRequest, err)
	case errors.Is(err, sqlite.ErrTaskLocked):
		return fmt.Errorf("%s: %w: %w", op, ErrConflict, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
