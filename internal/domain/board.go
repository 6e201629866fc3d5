package domain

import (
	"fmt"
	"slices"
	"strings"
)

// Placement describes how a task's column was chosen.
type Placement string

// PlacementExact and related constants describe placement outcomes.
const (
	PlacementExact     Placement = "exact"
	PlacementByName    Placement = "name"
	PlacementFirstSeen Placement = "first_column"
)

// Fallback reports whether the placement did not come from a matching status id.
func (p Placement) Fallback() bool {
	return p != PlacementExact
}

// Violation describes one broken one-task-one-column invariant.
type Violation struct {
	TaskID    string
	ColumnIDs []string
}

// BoardState maps each status to its ordered tasks and keeps the reverse index in step.
type BoardState struct {
	columns []Column
	byID    map[string]Column
	order   map[string][]string
	tasks   map[string]Task
	where   map[string]string
}

// NewBoardState builds an empty board for one sorted column set.
func NewBoardState(columns []Column) (*BoardState, error) {
	if len(columns) == 0 {
		return nil, ErrNoColumns
	}
	sorted := SortColumns(columns)
	b := &BoardState{
		columns: sorted,
		byID:    make(map[string]Column, len(sorted)),
		order:   make(map[string][]string, len(sorted)),
		tasks:   map[string]Task{},
		where:   map[string]string{},
	}
	for _, column := range sorted {
		if _, ok := b.byID[column.StatusID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateColumn, column.StatusID)
		}
		b.byID[column.StatusID] = column
		b.order[column.StatusID] = nil
	}
	return b, nil
}

// Columns returns the board columns in display order.
func (b *BoardState) Columns() []Column {
	return slices.Clone(b.columns)
}

// Column returns one column by status id.
func (b *BoardState) Column(statusID string) (Column, bool) {
	column, ok := b.byID[statusID]
	return column, ok
}

// FirstColumn returns the first column in ordinal order.
func (b *BoardState) FirstColumn() Column {
	return b.columns[0]
}

// ResolveColumn picks the column a task belongs to, falling back by name and then to the first column.
func (b *BoardState) ResolveColumn(task Task) (Column, Placement) {
	if column, ok := b.byID[task.StatusID]; ok {
		return column, PlacementExact
	}
	name := strings.TrimSpace(task.StatusName)
	if name != "" {
		for _, column := range b.columns {
			if column.Name == name {
				return column, PlacementByName
			}
		}
		for _, column := range b.columns {
			if strings.EqualFold(column.Name, name) {
				return column, PlacementByName
			}
		}
	}
	return b.columns[0], PlacementFirstSeen
}

// Place appends a task to the end of one column.
func (b *BoardState) Place(task Task, columnID string) error {
	if _, ok := b.byID[columnID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownColumn, columnID)
	}
	if _, ok := b.where[task.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID)
	}
	b.order[columnID] = append(b.order[columnID], task.ID)
	b.tasks[task.ID] = task
	b.where[task.ID] = columnID
	return nil
}

// Move relocates a task to the end of the target column and returns the task as it was before.
func (b *BoardState) Move(taskID, toColumnID string) (Task, error) {
	prev, ok := b.tasks[taskID]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	target, ok := b.byID[toColumnID]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrUnknownColumn, toColumnID)
	}
	b.detach(taskID)
	b.order[toColumnID] = append(b.order[toColumnID], taskID)
	b.tasks[taskID] = prev.WithStatus(target)
	b.where[taskID] = toColumnID
	return prev, nil
}

// Put places a task in a column, replacing any existing placement for the same id.
func (b *BoardState) Put(task Task, columnID string) error {
	if _, ok := b.byID[columnID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownColumn, columnID)
	}
	b.Remove(task.ID)
	return b.Place(task, columnID)
}

// Remove drops a task from the board and reports whether it was present.
func (b *BoardState) Remove(taskID string) bool {
	if _, ok := b.where[taskID]; !ok {
		return false
	}
	b.detach(taskID)
	delete(b.tasks, taskID)
	delete(b.where, taskID)
	return true
}

// detach removes a task id from every column sequence that holds it.
func (b *BoardState) detach(taskID string) {
	for columnID, ids := range b.order {
		if idx := slices.Index(ids, taskID); idx >= 0 {
			b.order[columnID] = slices.DeleteFunc(ids, func(id string) bool { return id == taskID })
		}
	}
}

// ColumnOf returns the column currently holding a task.
func (b *BoardState) ColumnOf(taskID string) (string, bool) {
	columnID, ok := b.where[taskID]
	return columnID, ok
}

// Task returns one placed task.
func (b *BoardState) Task(taskID string) (Task, bool) {
	task, ok := b.tasks[taskID]
	return task, ok
}

// Tasks returns the ordered tasks of one column.
func (b *BoardState) Tasks(columnID string) []Task {
	ids := b.order[columnID]
	out := make([]Task, 0, len(ids))
	for _, id := range ids {
		out = append(out, b.tasks[id])
	}
	return out
}

// Count returns the number of tasks in one column.
func (b *BoardState) Count(columnID string) int {
	return len(b.order[columnID])
}

// Len returns the number of placed tasks.
func (b *BoardState) Len() int {
	return len(b.tasks)
}

// Check reports every task whose placement breaks the one-task-one-column invariant.
func (b *BoardState) Check() []Violation {
	seen := map[string][]string{}
	for _, column := range b.columns {
		for _, id := range b.order[column.StatusID] {
			seen[id] = append(seen[id], column.StatusID)
		}
	}
	var out []Violation
	for id, columnIDs := range seen {
		if len(columnIDs) != 1 || b.where[id] != columnIDs[0] {
			out = append(out, Violation{TaskID: id, ColumnIDs: columnIDs})
		}
	}
	for id := range b.where {
		if _, ok := seen[id]; !ok {
			out = append(out, Violation{TaskID: id})
		}
	}
	slices.SortFunc(out, func(a, b Violation) int { return CompareIDs(a.TaskID, b.TaskID) })
	return out
}

// Clone returns a deep copy of the board.
func (b *BoardState) Clone() *BoardState {
	out := &BoardState{
		columns: slices.Clone(b.columns),
		byID:    make(map[string]Column, len(b.byID)),
		order:   make(map[string][]string, len(b.order)),
		tasks:   make(map[string]Task, len(b.tasks)),
		where:   make(map[string]string, len(b.where)),
	}
	for k, v := range b.byID {
		out.byID[k] = v
	}
	for k, v := range b.order {
		out.order[k] = slices.Clone(v)
	}
	for k, v := range b.tasks {
		out.tasks[k] = v
	}
	for k, v := range b.where {
		out.where[k] = v
	}
	return out
}
