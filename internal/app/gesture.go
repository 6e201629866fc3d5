package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hylla/tavla/internal/domain"
)

// GestureState is one state of the card relocation state machine.
type GestureState string

// StateIdle and related constants define gesture states.
const (
	StateIdle                GestureState = "idle"
	StateDragging            GestureState = "dragging"
	StateDropSameColumn      GestureState = "drop_same_column"
	StateDropDifferentColumn GestureState = "drop_different_column"
	StateResolving           GestureState = "resolving"
	StateCommitted           GestureState = "committed"
	StateReverted            GestureState = "reverted"
)

// Point is a pointer position in view cells.
type Point struct {
	X int
	Y int
}

// DragSession is the ephemeral state of one drag.
type DragSession struct {
	TaskID         string
	OriginColumnID string
	Pointer        Point
	StartedAt      time.Time
}

// Transition is one observed state change.
type Transition struct {
	TaskID string
	From   GestureState
	To     GestureState
}

// Drop is the result of releasing a drag.
type Drop struct {
	TaskID         string
	OriginColumnID string
	TargetColumnID string
	Prior          domain.Task
	State          GestureState
	Err            error
}

// Outcome is the final result of one relocation.
type Outcome struct {
	TaskID         string
	OriginColumnID string
	TargetColumnID string
	State          GestureState
	Receipt        Receipt
	Shared         bool
	Err            error
}

// GestureConfig holds optional gesture controller collaborators.
type GestureConfig struct {
	Logger   Logger
	Clock    Clock
	Observer func(Transition)
}

// GestureController turns pointer gestures into optimistic, remotely confirmed card moves.
type GestureController struct {
	registry *CardRegistry
	cache    *BoardCache
	lock     *MutationLock
	sync     *SyncClient
	feedback FeedbackBus
	logger   Logger
	clock    Clock
	observer func(Transition)

	mu      sync.Mutex
	session *DragSession
}

// NewGestureController constructs a controller over one board session's components.
func NewGestureController(registry *CardRegistry, cache *BoardCache, lock *MutationLock, syncClient *SyncClient, feedback FeedbackBus, cfg GestureConfig) *GestureController {
	if feedback == nil {
		feedback = nopFeedback{}
	}
	if lock == nil {
		lock = NewMutationLock()
	}
	return &GestureController{
		registry: registry,
		cache:    cache,
		lock:     lock,
		sync:     syncClient,
		feedback: feedback,
		logger:   loggerOrNop(cfg.Logger),
		clock:    clockOrNow(cfg.Clock),
		observer: cfg.Observer,
	}
}

// observe reports one transition.
func (g *GestureController) observe(taskID string, from, to GestureState) {
	g.logger.Debug("gesture transition", "task_id", taskID, "from", string(from), "to", string(to))
	if g.observer != nil {
		g.observer(Transition{TaskID: taskID, From: from, To: to})
	}
}

// State returns Dragging while a session exists and Idle otherwise.
func (g *GestureController) State() GestureState {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session != nil {
		return StateDragging
	}
	return StateIdle
}

// Session returns the active drag session.
func (g *GestureController) Session() (DragSession, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session == nil {
		return DragSession{}, false
	}
	return *g.session, true
}

// Begin starts dragging one card.
func (g *GestureController) Begin(taskID string, pos Point) error {
	origin, ok := g.registry.ColumnOf(taskID)
	if !ok {
		return fmt.Errorf("%w: unknown task %q", ErrValidation, taskID)
	}
	g.mu.Lock()
	previous := g.session
	g.session = &DragSession{
		TaskID:         taskID,
		OriginColumnID: origin,
		Pointer:        pos,
		StartedAt:      g.clock(),
	}
	g.mu.Unlock()

	if previous != nil {
		g.registry.ClearMarkers(previous.TaskID, MarkerDragging)
		g.observe(previous.TaskID, StateDragging, StateIdle)
	}
	g.registry.SetMarker(taskID, MarkerDragging)
	g.observe(taskID, StateIdle, StateDragging)
	return nil
}

// Motion updates the pointer position of the active drag.
func (g *GestureController) Motion(pos Point) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session == nil {
		return false
	}
	g.session.Pointer = pos
	return true
}

// Cancel abandons the active drag.
func (g *GestureController) Cancel() bool {
	session := g.take()
	if session == nil {
		return false
	}
	g.registry.ClearMarkers(session.TaskID, MarkerDragging)
	g.observe(session.TaskID, StateDragging, StateIdle)
	return true
}

// take removes and returns the active session.
func (g *GestureController) take() *DragSession {
	g.mu.Lock()
	defer g.mu.Unlock()
	session := g.session
	g.session = nil
	return session
}

// Release ends the drag over a target column. A different-column drop is applied optimistically
// and returned in the Resolving state; every other drop is final.
func (g *GestureController) Release(targetColumnID string) Drop {
	session := g.take()
	if session == nil {
		return Drop{State: StateIdle}
	}
	taskID := session.TaskID
	defer g.registry.ClearMarkers(taskID, MarkerDragging)

	current, ok := g.registry.ColumnOf(taskID)
	if !ok {
		err := fmt.Errorf("%w: task %q is no longer on the board", ErrValidation, taskID)
		g.logger.Warn("drop rejected", "task_id", taskID, "err", err)
		g.feedback.Notify(UserMessage(err), LevelError)
		g.observe(taskID, StateDragging, StateReverted)
		g.observe(taskID, StateReverted, StateIdle)
		return Drop{TaskID: taskID, OriginColumnID: session.OriginColumnID, TargetColumnID: targetColumnID, State: StateReverted, Err: err}
	}

	target, ok := g.registry.Column(targetColumnID)
	if !ok {
		first, _ := g.registry.FirstColumn()
		g.logger.Warn("drop target unresolved", "task_id", taskID, "target", targetColumnID, "column", first.StatusID)
		target = first
	}

	drop := Drop{TaskID: taskID, OriginColumnID: current, TargetColumnID: target.StatusID}
	if target.StatusID == current {
		drop.State = StateDropSameColumn
		g.observe(taskID, StateDragging, StateDropSameColumn)
		g.feedback.Notify("already in this status", LevelInfo)
		g.observe(taskID, StateDropSameColumn, StateIdle)
		return drop
	}

	g.observe(taskID, StateDragging, StateDropDifferentColumn)
	prior, err := g.registry.MoveTo(taskID, target.StatusID)
	if err != nil {
		drop.State = StateReverted
		drop.Err = err
		g.feedback.Notify(UserMessage(err), LevelError)
		g.observe(taskID, StateDropDifferentColumn, StateReverted)
		g.observe(taskID, StateReverted, StateIdle)
		return drop
	}
	g.registry.SetMarker(taskID, MarkerPending)
	drop.Prior = prior
	drop.State = StateResolving
	g.observe(taskID, StateDropDifferentColumn, StateResolving)
	return drop
}

// Resolve persists a Resolving drop and commits or reverts it.
func (g *GestureController) Resolve(ctx context.Context, drop Drop) (out Outcome) {
	out = Outcome{
		TaskID:         drop.TaskID,
		OriginColumnID: drop.OriginColumnID,
		TargetColumnID: drop.TargetColumnID,
		State:          drop.State,
		Err:            drop.Err,
	}
	if drop.State != StateResolving {
		return out
	}
	taskID := drop.TaskID
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("status change aborted: %v", r)
			g.logger.Error("status change panicked", "task_id", taskID, "err", err)
			g.revert(drop)
			g.feedback.Notify(UserMessage(err), LevelError)
			out.State = StateReverted
			out.Err = err
		}
		g.registry.ClearMarkers(taskID, MarkerPending)
		g.observe(taskID, StateResolving, out.State)
		g.observe(taskID, out.State, StateIdle)
	}()

	// The outcome is applied while the lock is held so waiters observe the settled cache.
	receipt, shared, err := g.lock.WithLock(ctx, taskID, func(ctx context.Context) (Receipt, error) {
		receipt, err := g.sync.UpdateStatus(ctx, taskID, drop.TargetColumnID)
		out.Receipt = receipt
		if err != nil {
			g.revert(drop)
			g.logger.Warn("status change reverted", "task_id", taskID, "from", drop.OriginColumnID, "to", drop.TargetColumnID, "err", err)
			g.feedback.Notify(UserMessage(err), LevelError)
			out.State = StateReverted
			out.Err = err
			return receipt, err
		}
		out = g.commit(drop, out)
		return receipt, nil
	})
	if shared {
		out.Receipt = receipt
		out.Shared = true
		return g.reconcileShared(drop, out, err)
	}
	return out
}

// commit applies a confirmed change to the cache, discarding it when the cache has moved on.
func (g *GestureController) commit(drop Drop, out Outcome) Outcome {
	target, ok := g.registry.Column(drop.TargetColumnID)
	if !ok {
		target = domain.Column{StatusID: drop.TargetColumnID, Name: drop.TargetColumnID}
	}
	result := PatchMissing
	if g.cache != nil {
		result = g.cache.Patch(drop.TaskID, drop.Prior.StatusID, target)
	}
	switch result {
	case PatchStale:
		current, _ := g.cache.StatusOf(drop.TaskID)
		g.logger.Warn("status change response discarded", "task_id", drop.TaskID, "from", drop.Prior.StatusID, "to", drop.TargetColumnID, "current", current, "err", ErrStaleResponse)
		g.alignToCache(drop.TaskID)
		out.State = StateReverted
		out.Err = ErrStaleResponse
		return out
	case PatchMissing:
		g.logger.Debug("status change not cached", "task_id", drop.TaskID)
		if g.cache != nil {
			g.cache.Invalidate()
		}
	default:
		g.alignToCache(drop.TaskID)
	}
	out.State = StateCommitted
	if out.Receipt.NoOp {
		g.feedback.Notify("already in this status", LevelInfo)
		return out
	}
	g.feedback.Notify(fmt.Sprintf("moved to %s", target.Name), LevelSuccess)
	return out
}

// reconcileShared aligns a waiter's optimistic move to the outcome produced by the lock holder.
func (g *GestureController) reconcileShared(drop Drop, out Outcome, err error) Outcome {
	if !g.alignToCache(drop.TaskID) && err != nil {
		g.revert(drop)
	}
	if err != nil {
		out.State = StateReverted
		out.Err = err
		return out
	}
	out.State = StateCommitted
	if column, ok := g.registry.ColumnOf(drop.TaskID); ok {
		out.TargetColumnID = column
	}
	return out
}

// revert puts a card back where it was before the drop.
func (g *GestureController) revert(drop Drop) {
	if _, ok := g.registry.ColumnOf(drop.TaskID); !ok {
		return
	}
	if err := g.registry.Restore(drop.Prior, drop.OriginColumnID); err != nil {
		g.logger.Error("card revert failed", "task_id", drop.TaskID, "err", err)
	}
}

// alignToCache moves a card to its last confirmed status and reports whether it could.
func (g *GestureController) alignToCache(taskID string) bool {
	if g.cache == nil {
		return false
	}
	task, ok := g.cache.Task(taskID)
	if !ok {
		return false
	}
	if _, ok := g.registry.ColumnOf(taskID); !ok {
		return false
	}
	if _, err := g.registry.Align(task); err != nil {
		g.logger.Error("card align failed", "task_id", taskID, "err", err)
		return false
	}
	return true
}

// Drop releases the active drag over a target column and resolves the result.
func (g *GestureController) Drop(ctx context.Context, targetColumnID string) Outcome {
	return g.Resolve(ctx, g.Release(targetColumnID))
}
