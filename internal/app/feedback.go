package app

import (
	"fmt"
	"io"
	"sync"
)

// Level is the severity of one feedback signal.
type Level string

// LevelInfo and related constants define feedback levels.
const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// FeedbackBus shows one short message to the user.
type FeedbackBus interface {
	Notify(message string, level Level)
}

// nopFeedback drops every signal.
type nopFeedback struct{}

func (nopFeedback) Notify(string, Level) {}

// WriterFeedback prints signals as lines, for the CLI.
type WriterFeedback struct {
	mu  sync.Mutex
	out io.Writer
}

// NewWriterFeedback constructs a line-oriented feedback bus.
func NewWriterFeedback(out io.Writer) *WriterFeedback {
	return &WriterFeedback{out: out}
}

// Notify writes one signal.
func (f *WriterFeedback) Notify(message string, level Level) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, _ = fmt.Fprintf(f.out, "%s: %s\n", level, message)
}
