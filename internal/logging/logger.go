// Package logging provides structured slog logging with per-module level
// overrides, an in-memory ring of recent entries for the admin surface, and
// journald output when running under systemd.
package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

const historySize = 1000

// Config controls log output.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

var (
	mu            sync.RWMutex
	initialized   bool
	config        Config
	history       *Ring
	moduleLoggers = make(map[string]*slog.Logger)
	moduleLevels  = make(map[string]*slog.LevelVar)
)

// Initialize configures the logging system. Loggers handed out before
// Initialize are rebuilt so they pick up levels and the history ring.
func Initialize(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	config = cfg
	initialized = true
	history = NewRing(historySize)

	base := parseLevel(cfg.Level, slog.LevelInfo)
	for module, lv := range moduleLevels {
		lv.Set(parseLevel(cfg.Modules[module], base))
		moduleLoggers[module] = slog.New(buildHandler(cfg.Format, lv)).With("module", module)
	}

	root := &slog.LevelVar{}
	root.Set(base)
	slog.SetDefault(slog.New(buildHandler(cfg.Format, root)))
}

// GetLogger returns the logger for a module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	mu.RLock()
	if l, ok := moduleLoggers[module]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := moduleLoggers[module]; ok {
		return l
	}

	lv := &slog.LevelVar{}
	format := "text"
	if initialized {
		base := parseLevel(config.Level, slog.LevelInfo)
		lv.Set(parseLevel(config.Modules[module], base))
		format = config.Format
	} else {
		lv.Set(slog.LevelInfo)
	}

	l := slog.New(buildHandler(format, lv)).With("module", module)
	moduleLoggers[module] = l
	moduleLevels[module] = lv
	return l
}

// History returns the ring of recent log entries, or nil before Initialize.
func History() *Ring {
	mu.RLock()
	defer mu.RUnlock()
	return history
}

// buildHandler assembles the output chain: stdout text/json, journald when
// available, and the history ring once Initialize has created it.
func buildHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	if format == "json" {
		handlers = append(handlers, slog.NewJSONHandler(os.Stdout, opts))
	} else {
		handlers = append(handlers, slog.NewTextHandler(os.Stdout, opts))
	}
	if journalAvailable() {
		handlers = append(handlers, newJournalHandler(level))
	}
	if history != nil {
		handlers = append(handlers, newRingHandler(history, level))
	}

	if len(handlers) == 1 {
		return handlers[0]
	}
	return NewMultiHandler(handlers...)
}

func parseLevel(s string, fallback slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return fallback
	}
}
