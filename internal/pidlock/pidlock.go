// Package pidlock implements the PID file the daemon and its companion
// CLI share (spec §6 "CLI control surface"): the daemon writes its PID
// at startup and the CLI reads it back to address signals. Grounded on
// the acquirePIDLock pattern used by other process daemons in the
// example pack (stale-lock detection via signal 0).
package pidlock

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/wasteddreams/preheat/internal/perr"
)

// Acquire writes the current process's PID to path, refusing to
// overwrite a PID file that still names a live process. A stale file
// (naming a PID that no longer answers signal 0) is silently replaced.
func Acquire(path string) error {
	if data, err := os.ReadFile(path); err == nil {
		if pid, convErr := strconv.Atoi(strings.TrimSpace(string(data))); convErr == nil && pid > 0 {
			if alive(pid) {
				return perr.New(perr.Fatal, "pidlock.Acquire", fmt.Sprintf("daemon already running (pid %d)", pid))
			}
		}
		_ = os.Remove(path)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return perr.Wrap(perr.Fatal, "pidlock.Acquire", path, err)
	}
	return nil
}

// Release removes the PID file. Called on graceful shutdown (spec §6
// "stop: ... free, exit 0").
func Release(path string) {
	_ = os.Remove(path)
}

// Read returns the PID recorded at path, for the companion CLI to
// address signals to.
func Read(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, perr.Wrap(perr.Resource, "pidlock.Read", path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, perr.Wrap(perr.Input, "pidlock.Read", path, err)
	}
	return pid, nil
}

// alive reports whether pid names a live process, via the standard
// kill(pid, 0) liveness probe (spec §6 "status | kill(pid, 0)").
func alive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
