package app

import (
	"fmt"
	"sync"

	"github.com/hylla/tavla/internal/domain"
)

// Marker flags transient visual state on a card.
type Marker uint8

// MarkerDragging and MarkerPending are the card markers.
const (
	MarkerDragging Marker = 1 << iota
	MarkerPending
)

// CardView is the render model of one card.
type CardView struct {
	Task     domain.Task
	ColumnID string
	Dragging bool
	Pending  bool
}

// CardRegistry indexes every rendered card by task id and keeps one card per task.
type CardRegistry struct {
	logger Logger

	mu      sync.Mutex
	board   *domain.BoardState
	markers map[string]Marker
	version uint64
}

// NewCardRegistry constructs an empty registry.
func NewCardRegistry(logger Logger) *CardRegistry {
	return &CardRegistry{
		logger:  loggerOrNop(logger),
		markers: map[string]Marker{},
	}
}

// Rebuild replaces every placement from a fresh column set and task list.
func (r *CardRegistry) Rebuild(columns []domain.Column, tasks []domain.Task) error {
	board, err := domain.NewBoardState(columns)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	latest := make(map[string]domain.Task, len(tasks))
	order := make([]string, 0, len(tasks))
	for _, task := range tasks {
		existing, ok := latest[task.ID]
		if !ok {
			latest[task.ID] = task
			order = append(order, task.ID)
			continue
		}
		r.logger.Warn("duplicate card removed", "task_id", task.ID, "kept_updated_at", newer(existing, task).UpdatedAt)
		latest[task.ID] = newer(existing, task)
	}
	for _, id := range order {
		task := latest[id]
		column, placement := board.ResolveColumn(task)
		if placement.Fallback() {
			r.logger.Warn("task placed in fallback column", "task_id", task.ID, "status_id", task.StatusID, "status_name", task.StatusName, "placement", string(placement), "column", column.StatusID)
		}
		if err := board.Place(task, column.StatusID); err != nil {
			return fmt.Errorf("place task %s: %w", task.ID, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.board = board
	for id := range r.markers {
		if _, ok := board.Task(id); !ok {
			delete(r.markers, id)
		}
	}
	r.version++
	return nil
}

// newer picks the more recently updated task, preferring the later occurrence on ties.
func newer(earlier, later domain.Task) domain.Task {
	if later.UpdatedAt.Before(earlier.UpdatedAt) {
		return earlier
	}
	return later
}

// Ready reports whether a column set has been loaded.
func (r *CardRegistry) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.board != nil
}

// Place adds a card to a column. A task that already has a card keeps it where it is.
func (r *CardRegistry) Place(task domain.Task, columnID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.board == nil {
		return fmt.Errorf("%w: %w", ErrValidation, domain.ErrNoColumns)
	}
	if current, ok := r.board.ColumnOf(task.ID); ok {
		if current != columnID {
			r.logger.Warn("duplicate card placement ignored", "task_id", task.ID, "column", current, "requested", columnID)
		}
		return nil
	}
	if err := r.board.Put(task, columnID); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	r.version++
	return nil
}

// MoveTo relocates a card and returns the task as it was before the move.
func (r *CardRegistry) MoveTo(taskID, targetColumnID string) (domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.board == nil {
		return domain.Task{}, fmt.Errorf("%w: %w", ErrValidation, domain.ErrNoColumns)
	}
	prev, err := r.board.Move(taskID, targetColumnID)
	if err != nil {
		return domain.Task{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	r.version++
	return prev, nil
}

// Restore puts a task back into a column exactly as it was.
func (r *CardRegistry) Restore(task domain.Task, columnID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.board == nil {
		return fmt.Errorf("%w: %w", ErrValidation, domain.ErrNoColumns)
	}
	if err := r.board.Put(task, columnID); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	r.version++
	return nil
}

// Align places a task in the column its own status resolves to and returns that column.
func (r *CardRegistry) Align(task domain.Task) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.board == nil {
		return "", fmt.Errorf("%w: %w", ErrValidation, domain.ErrNoColumns)
	}
	column, _ := r.board.ResolveColumn(task)
	if current, ok := r.board.ColumnOf(task.ID); ok && current == column.StatusID {
		if placed, _ := r.board.Task(task.ID); placed == task {
			return current, nil
		}
	}
	if err := r.board.Put(task, column.StatusID); err != nil {
		return "", fmt.Errorf("%w: %w", ErrValidation, err)
	}
	r.version++
	return column.StatusID, nil
}

// CountOf returns the number of cards in one column.
func (r *CardRegistry) CountOf(columnID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.board == nil {
		return 0
	}
	return r.board.Count(columnID)
}

// ColumnOf returns the column holding a card.
func (r *CardRegistry) ColumnOf(taskID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.board == nil {
		return "", false
	}
	return r.board.ColumnOf(taskID)
}

// Columns returns the rendered columns in order.
func (r *CardRegistry) Columns() []domain.Column {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.board == nil {
		return nil
	}
	return r.board.Columns()
}

// Column returns one rendered column.
func (r *CardRegistry) Column(columnID string) (domain.Column, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.board == nil {
		return domain.Column{}, false
	}
	return r.board.Column(columnID)
}

// FirstColumn returns the first rendered column.
func (r *CardRegistry) FirstColumn() (domain.Column, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.board == nil {
		return domain.Column{}, false
	}
	return r.board.FirstColumn(), true
}

// Cards returns the ordered card views of one column.
func (r *CardRegistry) Cards(columnID string) []CardView {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.board == nil {
		return nil
	}
	tasks := r.board.Tasks(columnID)
	out := make([]CardView, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, r.viewLocked(task, columnID))
	}
	return out
}

// Card returns the view of one card.
func (r *CardRegistry) Card(taskID string) (CardView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.board == nil {
		return CardView{}, false
	}
	task, ok := r.board.Task(taskID)
	if !ok {
		return CardView{}, false
	}
	columnID, _ := r.board.ColumnOf(taskID)
	return r.viewLocked(task, columnID), true
}

// viewLocked builds one card view; callers hold r.mu.
func (r *CardRegistry) viewLocked(task domain.Task, columnID string) CardView {
	marker := r.markers[task.ID]
	return CardView{
		Task:     task,
		ColumnID: columnID,
		Dragging: marker&MarkerDragging != 0,
		Pending:  marker&MarkerPending != 0,
	}
}

// SetMarker adds a marker to one card.
func (r *CardRegistry) SetMarker(taskID string, marker Marker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markers[taskID] |= marker
	r.version++
}

// ClearMarkers removes the given markers from one card.
func (r *CardRegistry) ClearMarkers(taskID string, marker Marker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.markers[taskID]
	if !ok {
		return
	}
	if next := current &^ marker; next == 0 {
		delete(r.markers, taskID)
	} else {
		r.markers[taskID] = next
	}
	r.version++
}

// Marked reports whether any card carries the given marker.
func (r *CardRegistry) Marked(marker Marker) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, current := range r.markers {
		if current&marker != 0 {
			return true
		}
	}
	return false
}

// Version increments on every change to placements or markers.
func (r *CardRegistry) Version() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version
}

// Len returns the number of cards.
func (r *CardRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.board == nil {
		return 0
	}
	return r.board.Len()
}

// Verify checks the one-card-per-task invariant and heals any violation it finds.
func (r *CardRegistry) Verify() []domain.Violation {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.board == nil {
		return nil
	}
	violations := r.board.Check()
	for _, violation := range violations {
		task, ok := r.board.Task(violation.TaskID)
		if !ok {
			r.board.Remove(violation.TaskID)
			continue
		}
		column, _ := r.board.ResolveColumn(task)
		if err := r.board.Put(task, column.StatusID); err != nil {
			r.logger.Error("card invariant heal failed", "task_id", task.ID, "err", err)
			continue
		}
		r.logger.Warn("card invariant healed", "task_id", task.ID, "columns", violation.ColumnIDs)
	}
	if len(violations) > 0 {
		r.version++
	}
	return violations
}
