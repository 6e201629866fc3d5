package app

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hylla/tavla/internal/domain"
)

// fakeRemote is a scripted remote task service.
type fakeRemote struct {
	mu          sync.Mutex
	statuses    []StatusRecord
	statusErr   error
	list        TaskList
	listErr     error
	listGate    chan struct{}
	listCalls   atomic.Int32
	updateErr   error
	updateGate  chan struct{}
	updateEnter chan string
	updateCalls atomic.Int32
	lastUpdate  [2]string
	onUpdate    func(taskID, statusID string)
}

func (f *fakeRemote) ListStatuses(context.Context) ([]StatusRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return append([]StatusRecord(nil), f.statuses...), nil
}

func (f *fakeRemote) ListTasks(ctx context.Context) (TaskList, error) {
	f.listCalls.Add(1)
	if f.listGate != nil {
		select {
		case <-f.listGate:
		case <-ctx.Done():
			return TaskList{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return TaskList{}, f.listErr
	}
	return TaskList{Tasks: append([]domain.Task(nil), f.list.Tasks...), Counters: f.list.Counters}, nil
}

func (f *fakeRemote) UpdateTaskStatus(ctx context.Context, taskID, statusID string) (Receipt, error) {
	f.updateCalls.Add(1)
	if f.updateEnter != nil {
		f.updateEnter <- taskID
	}
	if f.updateGate != nil {
		select {
		case <-f.updateGate:
		case <-ctx.Done():
			return Receipt{}, ctx.Err()
		}
	}
	f.mu.Lock()
	f.lastUpdate = [2]string{taskID, statusID}
	err := f.updateErr
	hook := f.onUpdate
	f.mu.Unlock()
	if hook != nil {
		hook(taskID, statusID)
	}
	if err != nil {
		return Receipt{TaskID: taskID, RequestID: "req-1"}, err
	}
	return Receipt{TaskID: taskID, StatusID: statusID, RequestID: "req-1"}, nil
}

// setTasks replaces the remote task list.
func (f *fakeRemote) setTasks(tasks ...domain.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.list.Tasks = tasks
}

// signal is one recorded feedback call.
type signal struct {
	message string
	level   Level
}

// recordingFeedback records every feedback signal.
type recordingFeedback struct {
	mu      sync.Mutex
	signals []signal
}

func (r *recordingFeedback) Notify(message string, level Level) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, signal{message: message, level: level})
}

// byLevel returns the recorded signals of one level.
func (r *recordingFeedback) byLevel(level Level) []signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []signal
	for _, s := range r.signals {
		if s.level == level {
			out = append(out, s)
		}
	}
	return out
}

// count returns the number of recorded signals.
func (r *recordingFeedback) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.signals)
}

// recordingLogger captures log messages by level.
type recordingLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *recordingLogger) record(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, level+": "+msg)
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.record("debug", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.record("info", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.record("warn", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.record("error", msg) }

// has reports whether an entry was logged.
func (l *recordingLogger) has(entry string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e == entry {
			return true
		}
	}
	return false
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 2, 21, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// task builds one test task.
func task(id, statusID, statusName string) domain.Task {
	return domain.Task{ID: id, Subject: "task " + id, StatusID: statusID, StatusName: statusName}
}

// newTestRemote returns a remote with the default statuses and the given tasks.
func newTestRemote(tasks ...domain.Task) *fakeRemote {
	return &fakeRemote{
		statuses: DefaultStatuses(),
		list:     TaskList{Tasks: tasks},
	}
}

// openBoard builds and opens one board over a fake remote.
func openBoard(t *testing.T, remote *fakeRemote, cfg BoardConfig) (*Board, *recordingFeedback) {
	t.Helper()
	feedback := &recordingFeedback{}
	board := NewBoard(BoardDeps{
		Tasks:    remote,
		Statuses: remote,
		Writer:   remote,
		Feedback: feedback,
	}, cfg)
	if err := board.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return board, feedback
}

// waitFor polls until cond holds or the test times out.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}
