package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hylla/tavla/internal/app"
	"github.com/hylla/tavla/internal/domain"
)

// openSeeded opens a file-backed repository with the default data.
func openSeeded(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "tavla.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	if err := repo.Seed(context.Background(), app.DefaultStatuses(), DefaultSeed(now)); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	return repo
}

func TestRepository_SeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := openSeeded(t)
	if err := repo.Seed(ctx, app.DefaultStatuses(), DefaultSeed(time.Now())); err != nil {
		t.Fatalf("Seed() second call error = %v", err)
	}
	statuses, err := repo.ListStatuses(ctx)
	if err != nil {
		t.Fatalf("ListStatuses() error = %v", err)
	}
	if len(statuses) != 6 || statuses[0].Name != "New" || !statuses[4].IsClosed {
		t.Fatalf("unexpected statuses %#v", statuses)
	}
	tasks, _, err := repo.ListTasks(ctx, 0)
	if err != nil {
		t.Fatalf("ListTasks() error = %v", err)
	}
	if len(tasks) != len(demoTasks) {
		t.Fatalf("expected %d tasks, got %d", len(demoTasks), len(tasks))
	}
}

func TestRepository_ListTasksCapsPerStatus(t *testing.T) {
	repo := openSeeded(t)
	tasks, counters, err := repo.ListTasks(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListTasks() error = %v", err)
	}
	if got := counters["1"]; got != (app.StatusCounter{Shown: 1, Total: 2}) {
		t.Fatalf("counter[1] = %#v", got)
	}
	if got := counters["3"]; got != (app.StatusCounter{Shown: 1, Total: 1}) {
		t.Fatalf("counter[3] = %#v", got)
	}
	perStatus := map[string]int{}
	for _, task := range tasks {
		perStatus[task.StatusID]++
		if task.StatusName == "" {
			t.Fatalf("task %s missing status name", task.ID)
		}
	}
	for status, n := range perStatus {
		if n > 1 {
			t.Fatalf("status %s shows %d tasks, want at most 1", status, n)
		}
	}
}

func TestRepository_SetTaskStatusRecordsChange(t *testing.T) {
	ctx := context.Background()
	repo := openSeeded(t)
	at := time.Date(2026, 2, 22, 8, 0, 0, 0, time.UTC)

	task, err := repo.SetTaskStatus(ctx, "1", "2", "req-1", at)
	if err != nil {
		t.Fatalf("SetTaskStatus() error = %v", err)
	}
	if task.StatusID != "2" || task.StatusName != "In Progress" || !task.UpdatedAt.Equal(at) {
		t.Fatalf("unexpected task %#v", task)
	}
	if _, err := repo.SetTaskStatus(ctx, "1", "2", "req-2", at); err != nil {
		t.Fatalf("SetTaskStatus() same status error = %v", err)
	}
	changes, err := repo.ListStatusChanges(ctx, "1", 10)
	if err != nil {
		t.Fatalf("ListStatusChanges() error = %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d", len(changes))
	}
	if changes[0].From != "1" || changes[0].To != "2" || changes[0].RequestID != "req-1" || changes[0].ID == "" {
		t.Fatalf("unexpected change %#v", changes[0])
	}
}

func TestRepository_SetTaskStatusErrors(t *testing.T) {
	ctx := context.Background()
	repo := openSeeded(t)
	now := time.Now()
	if _, err := repo.SetTaskStatus(ctx, "404", "2", "", now); !errors.Is(err, domain.ErrUnknownTask) {
		t.Fatalf("SetTaskStatus() missing task error = %v", err)
	}
	if _, err := repo.SetTaskStatus(ctx, "1", "99", "", now); !errors.Is(err, domain.ErrUnknownColumn) {
		t.Fatalf("SetTaskStatus() unknown status error = %v", err)
	}
	if _, err := repo.SetTaskStatus(ctx, "8", "1", "", now); !errors.Is(err, ErrTaskLocked) {
		t.Fatalf("SetTaskStatus() locked error = %v", err)
	}
	task, err := repo.GetTask(ctx, "8")
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if task.StatusID != "5" {
		t.Fatalf("locked task moved to %q", task.StatusID)
	}
}

func TestRepository_OpenInMemory(t *testing.T) {
	repo, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	statuses, err := repo.ListStatuses(context.Background())
	if err != nil {
		t.Fatalf("ListStatuses() error = %v", err)
	}
	if len(statuses) != 0 {
		t.Fatalf("expected empty store, got %#v", statuses)
	}
	if _, err := repo.GetTask(context.Background(), "1"); !errors.Is(err, domain.ErrUnknownTask) {
		t.Fatalf("GetTask() error = %v", err)
	}
}
