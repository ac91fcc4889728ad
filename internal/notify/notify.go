// Package notify carries user-visible notifications from the core to a presentation layer
package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Level is the severity shown to the user
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Notification is a single toast
type Notification struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier receives notifications
type Notifier interface {
	Notify(level Level, message string)
}

// Log writes notifications to a zap logger
type Log struct {
	logger *zap.Logger
}

// NewLog creates a logging notifier
func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Notify(level Level, message string) {
	if level == LevelError {
		l.logger.Warn(message, zap.String("level", string(level)))
		return
	}
	l.logger.Info(message, zap.String("level", string(level)))
}

// Multi fans a notification out to several notifiers
type Multi []Notifier

func (m Multi) Notify(level Level, message string) {
	for _, n := range m {
		n.Notify(level, message)
	}
}

// Feed keeps the most recent notifications and pushes them to subscribers
type Feed struct {
	mu     sync.Mutex
	buf    []Notification
	size   int
	subs   map[chan Notification]struct{}
	closed bool
}

// NewFeed creates a feed retaining up to size notifications
func NewFeed(size int) *Feed {
	if size <= 0 {
		size = 64
	}
	return &Feed{
		size: size,
		subs: make(map[chan Notification]struct{}),
	}
}

func (f *Feed) Notify(level Level, message string) {
	n := Notification{Level: level, Message: message, At: time.Now()}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}

	f.buf = append(f.buf, n)
	if len(f.buf) > f.size {
		f.buf = f.buf[len(f.buf)-f.size:]
	}

	for ch := range f.subs {
		// Slow subscribers miss notifications rather than block the core
		select {
		case ch <- n:
		default:
		}
	}
}

// Drain returns and clears the buffered notifications, oldest first
func (f *Feed) Drain() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.buf
	f.buf = nil
	if out == nil {
		out = []Notification{}
	}
	return out
}

// Subscribe returns a channel of future notifications and a function to stop receiving them
func (f *Feed) Subscribe() (<-chan Notification, func()) {
	ch := make(chan Notification, f.size)

	f.mu.Lock()
	if f.closed {
		close(ch)
		f.mu.Unlock()
		return ch, func() {}
	}
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if _, ok := f.subs[ch]; ok {
				delete(f.subs, ch)
				close(ch)
			}
		})
	}
}

// Close ends all subscriptions
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for ch := range f.subs {
		close(ch)
		delete(f.subs, ch)
	}
}

// Recorder collects notifications in memory, for tests and one-shot CLI commands
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

func (r *Recorder) Notify(level Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, Notification{Level: level, Message: message, At: time.Now()})
}

// All returns a copy of everything recorded
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Messages returns the recorded messages
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.items))
	for _, n := range r.items {
		out = append(out, n.Message)
	}
	return out
}
