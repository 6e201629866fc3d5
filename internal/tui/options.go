package tui

import (
	"time"

	"github.com/atotto/clipboard"
)

type Option func(*Model)

// defaultClipboard writes to the system clipboard.
func defaultClipboard(text string) error {
	return clipboard.WriteAll(text)
}

func WithShowCounts(show bool) Option {
	return func(m *Model) {
		m.showCounts = show
	}
}

func WithClipboard(write func(string) error) Option {
	return func(m *Model) {
		if write != nil {
			m.copyText = write
		}
	}
}

// WithToasts shares a toast stack with the board session so engine feedback reaches the view.
func WithToasts(toasts *Toasts) Option {
	return func(m *Model) {
		if toasts != nil {
			m.toasts = toasts
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(m *Model) {
		if clock != nil {
			m.clock = clock
		}
	}
}

func WithKeyConfig(cfg KeyConfig) Option {
	return func(m *Model) {
		m.keys.applyConfig(cfg)
	}
}

// WithTitle sets the header caption, usually the remote host.
func WithTitle(title string) Option {
	return func(m *Model) {
		m.title = title
	}
}
