// Package notify is the single channel through which store-facing outcomes
// reach the user. Mutating operations announce intent with Begin and resolve
// that announcement with Succeed or Fail, so no "in progress" toast is left
// dangling.
package notify

import (
	"log/slog"
	"sync"
	"time"
)

// Level classifies a toast.
type Level int

const (
	LevelLoading Level = iota
	LevelSuccess
	LevelFailure
	LevelWarning
)

func (l Level) String() string {
	switch l {
	case LevelLoading:
		return "loading"
	case LevelSuccess:
		return "success"
	case LevelFailure:
		return "failure"
	case LevelWarning:
		return "warning"
	default:
		return "unknown"
	}
}

// ID keys an announcement to its resolution.
type ID uint64

// Toast is a single user-visible notification.
type Toast struct {
	ID      ID
	Level   Level
	Message string
	Detail  string
	Updated time.Time

	rev uint64 // order of the last change, across all toasts
}

// Notifier receives operation outcomes.
type Notifier interface {
	Begin(msg string) ID
	Succeed(id ID, msg string)
	Fail(id ID, msg string, err error)
	// Warn resolves id as a non-fatal warning. A zero id records a
	// standalone warning.
	Warn(id ID, msg string, err error)
}

// Discard is a Notifier that drops everything.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Begin(string) ID { return 0 }
func (discard) Succeed(ID, string) {}
func (discard) Fail(ID, string, error) {}
func (discard) Warn(ID, string, error) {}

const defaultLimit = 32

// Center keeps a bounded history of toasts and logs every outcome.
type Center struct {
	mu     sync.Mutex
	logger *slog.Logger
	now    func() time.Time

	ring  []Toast
	idx   int
	count int
	seq   ID
	rev   uint64
}

// NewCenter returns a Center holding at most limit toasts. A nil logger uses
// slog.Default().
func NewCenter(limit int, logger *slog.Logger) *Center {
	if limit <= 0 {
		limit = defaultLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Center{
		logger: logger.With(slog.String("component", "notify")),
		now:    time.Now,
		ring:   make([]Toast, limit),
	}
}

// Begin records a loading toast and returns its id.
func (c *Center) Begin(msg string) ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.rev++
	c.pushLocked(Toast{ID: c.seq, Level: LevelLoading, Message: msg, Updated: c.now(), rev: c.rev})
	return c.seq
}

// Succeed resolves id as a success.
func (c *Center) Succeed(id ID, msg string) {
	c.resolve(id, LevelSuccess, msg, "")
	c.logger.Info(msg, slog.Uint64("toast", uint64(id)))
}

// Fail resolves id as a failure.
func (c *Center) Fail(id ID, msg string, err error) {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	c.resolve(id, LevelFailure, msg, detail)
	c.logger.Error(msg, slog.Uint64("toast", uint64(id)), slog.String("error", detail))
}

// Warn resolves id as a warning, or records a standalone warning when id is zero.
func (c *Center) Warn(id ID, msg string, err error) {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	c.resolve(id, LevelWarning, msg, detail)
	c.logger.Warn(msg, slog.Uint64("toast", uint64(id)), slog.String("error", detail))
}

// Recent returns the retained toasts, oldest first.
func (c *Center) Recent() []Toast {
	c.mu.Lock()
	defer c.mu.Unlock()
	limit := len(c.ring)
	out := make([]Toast, c.count)
	start := 0
	if c.count == limit {
		start = c.idx
	}
	for i := 0; i < c.count; i++ {
		out[i] = c.ring[(start+i)%limit]
	}
	return out
}

// Pending counts unresolved announcements.
func (c *Center) Pending() int {
	n := 0
	for _, t := range c.Recent() {
		if t.Level == LevelLoading {
			n++
		}
	}
	return n
}

// Latest returns the most recently changed toast, if any. An announcement
// resolved in place counts as changed when it was resolved.
func (c *Center) Latest() (Toast, bool) {
	recent := c.Recent()
	if len(recent) == 0 {
		return Toast{}, false
	}
	latest := recent[0]
	for _, t := range recent[1:] {
		if t.rev > latest.rev {
			latest = t
		}
	}
	return latest, true
}

func (c *Center) resolve(id ID, level Level, msg, detail string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id == 0 {
		c.seq++
		id = c.seq
	}
	c.rev++
	toast := Toast{ID: id, Level: level, Message: msg, Detail: detail, Updated: c.now(), rev: c.rev}
	limit := len(c.ring)
	for i := 0; i < c.count; i++ {
		slot := (c.idx - 1 - i + limit) % limit
		if c.ring[slot].ID == id {
			c.ring[slot] = toast
			return
		}
	}
	// The announcement was evicted; keep the outcome anyway.
	c.pushLocked(toast)
}

func (c *Center) pushLocked(t Toast) {
	c.ring[c.idx] = t
	c.idx = (c.idx + 1) % len(c.ring)
	if c.count < len(c.ring) {
		c.count++
	}
}
