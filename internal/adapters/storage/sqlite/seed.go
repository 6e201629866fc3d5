package sqlite

import (
	"strconv"
	"time"

	"github.com/hylla/tavla/internal/domain"
)

// demoTasks lists the sandbox sample data.
var demoTasks = []struct {
	subject  string
	status   string
	project  string
	priority string
	locked   bool
}{
	{"Draft release notes", "1", "Platform", "Normal", false},
	{"Rotate staging credentials", "1", "Ops", "High", false},
	{"Fix pagination on audit log", "2", "Platform", "High", false},
	{"Migrate reports to new schema", "2", "Data", "Normal", false},
	{"Verify backup restore drill", "3", "Ops", "Normal", false},
	{"Collect feedback on onboarding", "4", "Product", "Low", false},
	{"Retire legacy exporter", "5", "Data", "Low", false},
	{"Signed-off compliance review", "5", "Compliance", "Urgent", true},
	{"Duplicate of #3", "6", "Platform", "Low", false},
}

// DefaultSeed returns the sandbox sample tasks stamped relative to now.
func DefaultSeed(now time.Time) []TaskSeed {
	out := make([]TaskSeed, 0, len(demoTasks))
	for idx, demo := range demoTasks {
		out = append(out, TaskSeed{
			Task: domain.Task{
				ID:            strconv.Itoa(idx + 1),
				Subject:       demo.subject,
				StatusID:      demo.status,
				ProjectName:   demo.project,
				PriorityLabel: demo.priority,
				UpdatedAt:     now.Add(-time.Duration(idx) * time.Hour).UTC(),
			},
			Locked: demo.locked,
		})
	}
	return out
}
