package testutil

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// LogCapture is a slog.Handler that records every log line for assertions.
type LogCapture struct {
	mu      sync.Mutex
	records []slog.Record
}

// NewLogCapture returns the capture handler and a logger writing into it.
func NewLogCapture() (*LogCapture, *slog.Logger) {
	c := &LogCapture{}
	return c, slog.New(c)
}

// Enabled implements slog.Handler; everything is captured.
func (c *LogCapture) Enabled(context.Context, slog.Level) bool { return true }

// Handle implements slog.Handler.
func (c *LogCapture) Handle(_ context.Context, r slog.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r.Clone())
	return nil
}

// WithAttrs implements slog.Handler. Attrs are dropped; tests assert on
// messages and levels.
func (c *LogCapture) WithAttrs([]slog.Attr) slog.Handler { return c }

// WithGroup implements slog.Handler.
func (c *LogCapture) WithGroup(string) slog.Handler { return c }

// Contains reports whether any captured message contains substr.
func (c *LogCapture) Contains(substr string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.records {
		if strings.Contains(r.Message, substr) {
			return true
		}
	}
	return false
}

// ContainsAttr reports whether any captured record carries the string
// attribute key=value.
func (c *LogCapture) ContainsAttr(key, value string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.records {
		found := false
		c.records[i].Attrs(func(a slog.Attr) bool {
			if a.Key == key && a.Value.String() == value {
				found = true
				return false
			}
			return true
		})
		if found {
			return true
		}
	}
	return false
}

// CountLevel returns the number of records at the given level.
func (c *LogCapture) CountLevel(level slog.Level) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, r := range c.records {
		if r.Level == level {
			n++
		}
	}
	return n
}

// Len returns the number of captured records.
func (c *LogCapture) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}
