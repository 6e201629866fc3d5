package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hylla/tavla/internal/domain"
)

// FlexID is an identifier that may arrive as a JSON string or number.
type FlexID string

// UnmarshalJSON accepts strings, integers, and null.
func (id *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = FlexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = FlexID(n.String())
	return nil
}

// MarshalJSON writes integer ids as numbers and everything else as strings.
func (id FlexID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// TaskRecord is one task on the wire.
type TaskRecord struct {
	ID          FlexID `json:"id"`
	Subject     string `json:"subject"`
	StatusID    FlexID `json:"status_id"`
	StatusName  string `json:"status_name,omitempty"`
	ProjectName string `json:"project_name,omitempty"`
	Priority    string `json:"priority,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// toDomain validates one record.
func (r TaskRecord) toDomain() (domain.Task, error) {
	var updated time.Time
	if strings.TrimSpace(r.UpdatedAt) != "" {
		parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(r.UpdatedAt))
		if err != nil {
			return domain.Task{}, fmt.Errorf("updated_at: %w", err)
		}
		updated = parsed
	}
	return domain.NewTask(domain.TaskInput{
		ID:            string(r.ID),
		Subject:       r.Subject,
		StatusID:      string(r.StatusID),
		StatusName:    r.StatusName,
		ProjectName:   r.ProjectName,
		PriorityLabel: r.Priority,
		UpdatedAt:     updated,
	})
}

// TaskRecordFromDomain converts a task for the wire.
func TaskRecordFromDomain(task domain.Task) TaskRecord {
	record := TaskRecord{
		ID:          FlexID(task.ID),
		Subject:     task.Subject,
		StatusID:    FlexID(task.StatusID),
		StatusName:  task.StatusName,
		ProjectName: task.ProjectName,
		Priority:    task.PriorityLabel,
	}
	if !task.UpdatedAt.IsZero() {
		record.UpdatedAt = task.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return record
}

// StatusCount is one per-status counter on the wire.
type StatusCount struct {
	StatusID FlexID `json:"status_id"`
	Shown    int    `json:"shown"`
	Total    int    `json:"total"`
}

// TaskListResponse is the object form of the task list.
type TaskListResponse struct {
	Tasks        []TaskRecord  `json:"tasks"`
	StatusCounts []StatusCount `json:"status_counts,omitempty"`
}

// StatusRecord is one status on the wire.
type StatusRecord struct {
	ID       FlexID `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
	IsClosed bool   `json:"is_closed"`
}

// StatusUpdateRequest is the body of a status change.
type StatusUpdateRequest struct {
	StatusID FlexID `json:"status_id"`
}

// StatusUpdateResponse is the reply to a status change.
type StatusUpdateResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
