package app

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hylla/tavla/internal/domain"
)

// DefaultCacheTTL is the lifetime of one cached task list.
const DefaultCacheTTL = 5 * time.Minute

// refreshKey coalesces forced refreshes; getKey coalesces expiry-driven loads.
const (
	refreshKey = "tasks"
	getKey     = "tasks:get"
)

// Snapshot is one immutable view of the remote task list.
type Snapshot struct {
	Tasks     []domain.Task
	Counters  map[string]StatusCounter
	FetchedAt time.Time
	index     map[string]int
}

// newSnapshot builds an indexed snapshot.
func newSnapshot(tasks []domain.Task, counters map[string]StatusCounter, fetchedAt time.Time) *Snapshot {
	s := &Snapshot{
		Tasks:     tasks,
		Counters:  counters,
		FetchedAt: fetchedAt,
		index:     make(map[string]int, len(tasks)),
	}
	for idx, task := range tasks {
		s.index[task.ID] = idx
	}
	return s
}

// Task returns one task by id.
func (s *Snapshot) Task(taskID string) (domain.Task, bool) {
	idx, ok := s.index[taskID]
	if !ok {
		return domain.Task{}, false
	}
	return s.Tasks[idx], true
}

// Counter returns the shown/total counter of one status, if the remote reported one.
func (s *Snapshot) Counter(statusID string) (StatusCounter, bool) {
	counter, ok := s.Counters[statusID]
	return counter, ok
}

// PatchResult reports what a compare-and-swap patch did.
type PatchResult string

// PatchApplied and related constants describe cache patch outcomes.
const (
	PatchApplied        PatchResult = "applied"
	PatchAlreadyApplied PatchResult = "already_applied"
	PatchStale          PatchResult = "stale"
	PatchMissing        PatchResult = "missing"
)

// BoardCache holds the time-bounded task list shared by a board session.
type BoardCache struct {
	source TaskSource
	ttl    time.Duration
	clock  Clock
	logger Logger

	mu    sync.Mutex
	entry *Snapshot
	group singleflight.Group
}

// CacheConfig holds configuration for a board cache.
type CacheConfig struct {
	TTL    time.Duration
	Clock  Clock
	Logger Logger
}

// NewBoardCache constructs a cache over one task source.
func NewBoardCache(source TaskSource, cfg CacheConfig) *BoardCache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCacheTTL
	}
	return &BoardCache{
		source: source,
		ttl:    cfg.TTL,
		clock:  clockOrNow(cfg.Clock),
		logger: loggerOrNop(cfg.Logger),
	}
}

// TTL returns the configured entry lifetime.
func (c *BoardCache) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached snapshot while it is fresh and refreshes it otherwise.
func (c *BoardCache) Get(ctx context.Context) (*Snapshot, error) {
	if snap := c.fresh(); snap != nil {
		return snap, nil
	}
	return c.flight(ctx, getKey, true)
}

// fresh returns the current entry when it has not expired.
func (c *BoardCache) fresh() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entry == nil {
		return nil
	}
	if c.clock().Sub(c.entry.FetchedAt) >= c.ttl {
		return nil
	}
	return c.entry
}

// Refresh fetches the task list and replaces the entry; concurrent callers share one remote call.
func (c *BoardCache) Refresh(ctx context.Context) (*Snapshot, error) {
	return c.flight(ctx, refreshKey, false)
}

// flight joins or starts the load for key. The load outlives any single caller's
// cancellation; each caller stops waiting when its own ctx ends.
func (c *BoardCache) flight(ctx context.Context, key string, reuseFresh bool) (*Snapshot, error) {
	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		if reuseFresh {
			if snap := c.fresh(); snap != nil {
				return snap, nil
			}
		}
		return c.load(loadCtx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

// load performs one remote fetch and stores the result.
func (c *BoardCache) load(ctx context.Context) (*Snapshot, error) {
	if c.source == nil {
		return nil, fmt.Errorf("%w: task source is not configured", ErrValidation)
	}
	list, err := c.source.ListTasks(ctx)
	if err != nil {
		c.logger.Warn("task list refresh failed", "err", err)
		return nil, fmt.Errorf("refresh tasks: %w", err)
	}
	snap := newSnapshot(slices.Clone(list.Tasks), maps.Clone(list.Counters), c.clock())
	c.mu.Lock()
	c.entry = snap
	c.mu.Unlock()
	c.logger.Debug("task list refreshed", "tasks", len(snap.Tasks))
	return snap, nil
}

// Invalidate drops the cached entry.
func (c *BoardCache) Invalidate() {
	c.mu.Lock()
	c.entry = nil
	c.mu.Unlock()
}

// Peek returns the current entry regardless of age.
func (c *BoardCache) Peek() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entry
}

// StatusOf returns the last confirmed status of one task.
func (c *BoardCache) StatusOf(taskID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entry == nil {
		return "", false
	}
	task, ok := c.entry.Task(taskID)
	if !ok {
		return "", false
	}
	return task.StatusID, true
}

// Task returns the last confirmed copy of one task.
func (c *BoardCache) Task(taskID string) (domain.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entry == nil {
		return domain.Task{}, false
	}
	return c.entry.Task(taskID)
}

// Patch moves one task from expectedFrom to the target column if the entry still shows expectedFrom.
func (c *BoardCache) Patch(taskID, expectedFrom string, to domain.Column) PatchResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entry == nil {
		return PatchMissing
	}
	idx, ok := c.entry.index[taskID]
	if !ok {
		return PatchMissing
	}
	current := c.entry.Tasks[idx]
	switch current.StatusID {
	case to.StatusID:
		return PatchAlreadyApplied
	case expectedFrom:
	default:
		return PatchStale
	}

	tasks := slices.Clone(c.entry.Tasks)
	tasks[idx] = current.WithStatus(to)
	counters := maps.Clone(c.entry.Counters)
	if from, ok := counters[expectedFrom]; ok {
		from.Shown = max(0, from.Shown-1)
		from.Total = max(0, from.Total-1)
		counters[expectedFrom] = from
	}
	if target, ok := counters[to.StatusID]; ok {
		target.Shown++
		target.Total++
		counters[to.StatusID] = target
	}
	c.entry = newSnapshot(tasks, counters, c.entry.FetchedAt)
	return PatchApplied
}
