package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hylla/tavla/internal/domain"
)

// BoardDeps holds the external collaborators of one board session.
type BoardDeps struct {
	Tasks    TaskSource
	Statuses StatusSource
	Writer   StatusWriter
	Feedback FeedbackBus
}

// BoardConfig holds configuration for one board session.
type BoardConfig struct {
	CacheTTL time.Duration
	Logger   Logger
	Clock    Clock
	Observer func(Transition)
}

// Board composes every synchronization component for one open board.
type Board struct {
	catalog  *FallbackCatalog
	cache    *BoardCache
	registry *CardRegistry
	lock     *MutationLock
	sync     *SyncClient
	gestures *GestureController
	feedback FeedbackBus
	logger   Logger

	mu     sync.Mutex
	source CatalogResult
}

// NewBoard constructs one board session.
func NewBoard(deps BoardDeps, cfg BoardConfig) *Board {
	logger := loggerOrNop(cfg.Logger)
	feedback := deps.Feedback
	if feedback == nil {
		feedback = nopFeedback{}
	}
	var primary StatusCatalog
	if deps.Statuses != nil {
		primary = NewRemoteCatalog(deps.Statuses)
	}
	cache := NewBoardCache(deps.Tasks, CacheConfig{TTL: cfg.CacheTTL, Clock: cfg.Clock, Logger: logger})
	registry := NewCardRegistry(logger)
	lock := NewMutationLock()
	syncClient := NewSyncClient(deps.Writer, cache, logger)
	return &Board{
		catalog:  NewFallbackCatalog(primary, logger),
		cache:    cache,
		registry: registry,
		lock:     lock,
		sync:     syncClient,
		gestures: NewGestureController(registry, cache, lock, syncClient, feedback, GestureConfig{
			Logger:   logger,
			Clock:    cfg.Clock,
			Observer: cfg.Observer,
		}),
		feedback: feedback,
		logger:   logger,
	}
}

// Open loads columns and cards, reusing a fresh cached task list.
func (b *Board) Open(ctx context.Context) error {
	return b.load(ctx, false)
}

// Refresh reloads the catalog and the task list from the remote.
func (b *Board) Refresh(ctx context.Context) error {
	return b.load(ctx, true)
}

// load rebuilds the registry from the catalog and the cache.
func (b *Board) load(ctx context.Context, force bool) error {
	selected := b.catalog.Select(ctx)
	b.mu.Lock()
	b.source = selected
	b.mu.Unlock()

	var (
		snap *Snapshot
		err  error
	)
	if force {
		snap, err = b.cache.Refresh(ctx)
	} else {
		snap, err = b.cache.Get(ctx)
	}
	if err != nil {
		if !b.registry.Ready() {
			if rebuildErr := b.registry.Rebuild(selected.Columns, nil); rebuildErr != nil {
				return fmt.Errorf("rebuild board: %w", rebuildErr)
			}
		}
		return fmt.Errorf("load board: %w", err)
	}
	if err := b.registry.Rebuild(selected.Columns, snap.Tasks); err != nil {
		return fmt.Errorf("rebuild board: %w", err)
	}
	b.logger.Info("board loaded", "source", selected.Source, "columns", len(selected.Columns), "tasks", len(snap.Tasks))
	return nil
}

// CatalogSource returns where the current columns came from.
func (b *Board) CatalogSource() CatalogResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.source
}

// Gestures returns the board's gesture controller.
func (b *Board) Gestures() *GestureController {
	return b.gestures
}

// Registry returns the board's card registry.
func (b *Board) Registry() *CardRegistry {
	return b.registry
}

// Cache returns the board's task cache.
func (b *Board) Cache() *BoardCache {
	return b.cache
}

// Lock returns the board's mutation lock.
func (b *Board) Lock() *MutationLock {
	return b.lock
}

// Counters returns shown and total card counts per column.
func (b *Board) Counters() map[string]StatusCounter {
	columns := b.registry.Columns()
	out := make(map[string]StatusCounter, len(columns))
	snap := b.cache.Peek()
	for _, column := range columns {
		shown := b.registry.CountOf(column.StatusID)
		total := shown
		if snap != nil {
			if counter, ok := snap.Counter(column.StatusID); ok {
				total = max(counter.Total, shown)
			}
		}
		out[column.StatusID] = StatusCounter{Shown: shown, Total: total}
	}
	return out
}

// Relocate moves one card without a pointer gesture.
func (b *Board) Relocate(ctx context.Context, taskID, targetColumnID string) Outcome {
	if err := b.gestures.Begin(taskID, Point{}); err != nil {
		b.feedback.Notify(UserMessage(err), LevelError)
		return Outcome{TaskID: taskID, TargetColumnID: targetColumnID, State: StateReverted, Err: err}
	}
	return b.gestures.Drop(ctx, targetColumnID)
}

// Column resolves a column by status id or, failing that, by name.
func (b *Board) Column(ref string) (domain.Column, bool) {
	if column, ok := b.registry.Column(ref); ok {
		return column, true
	}
	for _, column := range b.registry.Columns() {
		if strings.EqualFold(column.Name, strings.TrimSpace(ref)) {
			return column, true
		}
	}
	return domain.Column{}, false
}
