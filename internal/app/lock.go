package app

import (
	"context"
	"errors"
	"sync"
)

// errLockAbandoned is reported to waiters when the holder exits without a result.
var errLockAbandoned = errors.New("status change abandoned")

// flight tracks one in-flight status change.
type flight struct {
	done    chan struct{}
	receipt Receipt
	err     error
}

// MutationLock allows at most one in-flight status change per task.
type MutationLock struct {
	mu      sync.Mutex
	flights map[string]*flight
	onWait  func(taskID string)
}

// NewMutationLock constructs an empty lock table.
func NewMutationLock() *MutationLock {
	return &MutationLock{flights: map[string]*flight{}}
}

// WithLock runs fn while holding the task's lock. A caller that finds the lock held waits for the
// holder and receives its result with shared set to true.
func (l *MutationLock) WithLock(ctx context.Context, taskID string, fn func(context.Context) (Receipt, error)) (Receipt, bool, error) {
	l.mu.Lock()
	if f, ok := l.flights[taskID]; ok {
		l.mu.Unlock()
		if l.onWait != nil {
			l.onWait(taskID)
		}
		select {
		case <-ctx.Done():
			return Receipt{}, true, ctx.Err()
		case <-f.done:
			return f.receipt, true, f.err
		}
	}
	f := &flight{done: make(chan struct{}), err: errLockAbandoned}
	l.flights[taskID] = f
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.flights, taskID)
		l.mu.Unlock()
		close(f.done)
	}()
	receipt, err := fn(ctx)
	f.receipt, f.err = receipt, err
	return receipt, false, err
}

// InFlight reports whether a status change for the task is running.
func (l *MutationLock) InFlight(taskID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.flights[taskID]
	return ok
}
