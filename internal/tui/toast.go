package tui

import (
	"strings"
	"sync"
	"time"

	"github.com/hylla/tavla/internal/app"
)

// DefaultToastTTL is how long one toast stays visible.
const DefaultToastTTL = 4 * time.Second

// maxToasts caps the visible stack.
const maxToasts = 3

// Toast is one transient feedback message.
type Toast struct {
	Message string
	Level   app.Level
	At      time.Time
}

// Toasts is an expiring feedback stack rendered by the board view. Notify is safe to call from
// command goroutines while the view reads it.
type Toasts struct {
	mu    sync.Mutex
	ttl   time.Duration
	clock func() time.Time
	items []Toast
}

// NewToasts constructs a toast stack. Non-positive ttl uses DefaultToastTTL.
func NewToasts(ttl time.Duration, clock func() time.Time) *Toasts {
	if ttl <= 0 {
		ttl = DefaultToastTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &Toasts{ttl: ttl, clock: clock}
}

// Notify pushes one message.
func (t *Toasts) Notify(message string, level app.Level) {
	message = strings.TrimSpace(message)
	if message == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = append(t.items, Toast{Message: message, Level: level, At: t.clock()})
	if len(t.items) > maxToasts {
		t.items = t.items[len(t.items)-maxToasts:]
	}
}

// Active drops expired toasts and returns the rest, oldest first.
func (t *Toasts) Active() []Toast {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock()
	kept := t.items[:0]
	for _, item := range t.items {
		if now.Sub(item.At) < t.ttl {
			kept = append(kept, item)
		}
	}
	t.items = kept
	out := make([]Toast, len(kept))
	copy(out, kept)
	return out
}

// Latest returns the newest live toast.
func (t *Toasts) Latest() (Toast, bool) {
	active := t.Active()
	if len(active) == 0 {
		return Toast{}, false
	}
	return active[len(active)-1], true
}

// TTL returns the expiry window.
func (t *Toasts) TTL() time.Duration {
	return t.ttl
}
