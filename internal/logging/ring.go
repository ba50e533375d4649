package logging

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Entry is one captured log line.
type Entry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Ring is a fixed-capacity circular buffer of log entries.
type Ring struct {
	mu      sync.RWMutex
	entries []Entry
	head    int
	count   int
}

// NewRing creates a ring holding up to size entries.
func NewRing(size int) *Ring {
	return &Ring{entries: make([]Entry, size)}
}

// Write appends an entry, overwriting the oldest when full.
func (r *Ring) Write(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.head] = e
	r.head = (r.head + 1) % len(r.entries)
	if r.count < len(r.entries) {
		r.count++
	}
}

// Snapshot returns all entries in chronological order.
func (r *Ring) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.count == 0 {
		return nil
	}
	out := make([]Entry, 0, r.count)
	if r.count < len(r.entries) {
		out = append(out, r.entries[:r.count]...)
	} else {
		out = append(out, r.entries[r.head:]...)
		out = append(out, r.entries[:r.head]...)
	}
	return out
}

// ringHandler is a slog.Handler that records entries into a Ring.
type ringHandler struct {
	ring   *Ring
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

func newRingHandler(ring *Ring, level slog.Leveler) *ringHandler {
	return &ringHandler{ring: ring, level: level}
}

func (h *ringHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *ringHandler) Handle(_ context.Context, rec slog.Record) error {
	attrs := make(map[string]any)
	module := "main"

	collect := func(a slog.Attr) {
		if a.Key == "module" {
			module = a.Value.String()
			return
		}
		flatten(attrs, h.groups, a)
	}
	for _, a := range h.attrs {
		collect(a)
	}
	rec.Attrs(func(a slog.Attr) bool {
		collect(a)
		return true
	})

	h.ring.Write(Entry{
		Timestamp:  rec.Time,
		Level:      levelName(rec.Level),
		Module:     module,
		Message:    rec.Message,
		Attributes: attrs,
	})
	return nil
}

func (h *ringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &ringHandler{ring: h.ring, level: h.level, attrs: merged, groups: h.groups}
}

func (h *ringHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	groups := append(append([]string(nil), h.groups...), name)
	return &ringHandler{ring: h.ring, level: h.level, attrs: h.attrs, groups: groups}
}

func flatten(into map[string]any, groups []string, a slog.Attr) {
	key := a.Key
	if len(groups) > 0 {
		key = joinKeys(groups) + "." + key
	}
	switch a.Value.Kind() {
	case slog.KindGroup:
		for _, ga := range a.Value.Group() {
			flatten(into, append(groups, a.Key), ga)
		}
	case slog.KindDuration:
		into[key] = a.Value.Duration().String()
	case slog.KindTime:
		into[key] = a.Value.Time().Format(time.RFC3339Nano)
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			into[key] = err.Error()
		} else {
			into[key] = a.Value.Any()
		}
	default:
		into[key] = a.Value.Any()
	}
}

func joinKeys(groups []string) string {
	out := groups[0]
	for _, g := range groups[1:] {
		out += "." + g
	}
	return out
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
