package editor

import (
	"log/slog"
	"sync"
	"time"
)

// Level is the severity of a user notification
type Level string

// Notification levels
const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a message surfaced to the user by the rendering layer
type Notification struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Notifier delivers notifications to the user. Notify must not block.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(Notification)

// Notify calls f
func (f NotifierFunc) Notify(n Notification) {
	f(n)
}

// LogNotifier writes notifications to a logger. It is the default when no
// rendering layer is attached.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify logs n at the matching level
func (l LogNotifier) Notify(n Notification) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switch n.Level {
	case LevelError:
		logger.Error("notification", "message", n.Message)
	case LevelWarning:
		logger.Warn("notification", "message", n.Message)
	default:
		logger.Info("notification", "message", n.Message)
	}
}

// MultiNotifier fans a notification out to several notifiers
type MultiNotifier []Notifier

// Notify delivers n to every notifier
func (m MultiNotifier) Notify(n Notification) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(n)
		}
	}
}

// Recorder keeps every notification it receives. Used by tests and by the
// CLI to print what happened during a one-shot command.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

// Notify records n
func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

// All returns the recorded notifications in arrival order
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Messages returns the messages recorded at level
func (r *Recorder) Messages(level Level) []string {
	var out []string
	for _, n := range r.All() {
		if n.Level == level {
			out = append(out, n.Message)
		}
	}
	return out
}

// Reset drops the recorded notifications
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = nil
}
