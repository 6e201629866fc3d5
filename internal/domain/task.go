package domain

import (
	"strings"
	"time"
)

// Task is one remote work item as last reported by the task service.
type Task struct {
	ID            string
	Subject       string
	StatusID      string
	StatusName    string
	ProjectName   string
	PriorityLabel string
	UpdatedAt     time.Time
}

// TaskInput holds the raw values used to construct a task.
type TaskInput struct {
	ID            string
	Subject       string
	StatusID      string
	StatusName    string
	ProjectName   string
	PriorityLabel string
	UpdatedAt     time.Time
}

// NewTask normalizes and validates one task record.
func NewTask(in TaskInput) (Task, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Subject = strings.TrimSpace(in.Subject)
	in.StatusID = strings.TrimSpace(in.StatusID)
	if in.ID == "" {
		return Task{}, ErrInvalidID
	}
	if in.Subject == "" {
		return Task{}, ErrInvalidSubject
	}
	return Task{
		ID:            in.ID,
		Subject:       in.Subject,
		StatusID:      in.StatusID,
		StatusName:    strings.TrimSpace(in.StatusName),
		ProjectName:   strings.TrimSpace(in.ProjectName),
		PriorityLabel: strings.TrimSpace(in.PriorityLabel),
		UpdatedAt:     in.UpdatedAt.UTC(),
	}, nil
}

// WithStatus returns a copy of the task relocated to the given column.
func (t Task) WithStatus(column Column) Task {
	t.StatusID = column.StatusID
	t.StatusName = column.Name
	return t
}
