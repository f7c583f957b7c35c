// Package logging wraps log/slog with the one piece of behavior the
// daemon needs that the stdlib handler doesn't give for free: reopening
// the log file in place on reload (spec §6 "reload: ... reopen log"),
// so log rotation tools can rename the old file out from under a
// running daemon. Callers log with slog directly and unwrapped; this
// package keeps that choice rather than introducing a third-party
// logging library.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/wasteddreams/preheat/internal/perr"
)

// Logger is a reopenable slog.Logger: Reopen swaps the underlying file
// without callers needing a new reference.
type Logger struct {
	mu   sync.Mutex
	path string // empty means stderr, never reopened
	file *os.File
	*slogHandle
}

// slogHandle holds the live *slog.Logger behind an indirection so
// Reopen can swap it out atomically under mu.
type slogHandle struct {
	mu sync.RWMutex
	l  *slog.Logger
}

// New opens path (or uses stderr if path is empty) and returns a
// ready-to-use Logger.
func New(path string) (*Logger, error) {
	lg := &Logger{path: path, slogHandle: &slogHandle{}}
	if err := lg.open(); err != nil {
		return nil, err
	}
	return lg, nil
}

func (lg *Logger) open() error {
	var w *os.File
	if lg.path == "" {
		w = os.Stderr
	} else {
		f, err := os.OpenFile(lg.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return perr.Wrap(perr.Fatal, "logging.New", lg.path, err)
		}
		w = f
	}

	lg.mu.Lock()
	old := lg.file
	lg.file = w
	lg.mu.Unlock()

	lg.slogHandle.mu.Lock()
	lg.slogHandle.l = slog.New(slog.NewTextHandler(w, nil))
	lg.slogHandle.mu.Unlock()

	if old != nil && old != os.Stderr {
		_ = old.Close()
	}
	return nil
}

// Reopen closes and reopens the log file at the same path, for SIGHUP
// handling (spec §6 "reload: ... reopen log").
func (lg *Logger) Reopen() error {
	if lg.path == "" {
		return nil // stderr: nothing to reopen
	}
	return lg.open()
}

// Slog returns the current *slog.Logger. Safe to call concurrently
// with Reopen; callers should not cache the result across a reload.
func (lg *Logger) Slog() *slog.Logger {
	lg.slogHandle.mu.RLock()
	defer lg.slogHandle.mu.RUnlock()
	return lg.slogHandle.l
}

// Close releases the underlying file, if any.
func (lg *Logger) Close() error {
	lg.mu.Lock()
	defer lg.mu.Unlock()
	if lg.file == nil || lg.file == os.Stderr {
		return nil
	}
	err := lg.file.Close()
	lg.file = nil
	if err != nil {
		return fmt.Errorf("logging.Close: %w", err)
	}
	return nil
}
