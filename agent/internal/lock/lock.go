package lock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrLocked is returned when a live process holds the lock.
var ErrLocked = errors.New("lock: held by another process")

// Lock is an acquired PID file.
type Lock struct {
	path string
}

// alive reports whether pid names a running process. Overridden in tests.
var alive = func(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// Acquire creates path holding the current PID. A file left by a process
// that is no longer running is replaced.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("lock: %w", err)
	}
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%d\n", os.Getpid())
			cerr := f.Close()
			if werr != nil || cerr != nil {
				os.Remove(path)
				return nil, fmt.Errorf("lock: write %s: %w", path, errors.Join(werr, cerr))
			}
			return &Lock{path: path}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("lock: %w", err)
		}

		pid, rerr := readPID(path)
		if rerr == nil && pid != os.Getpid() && alive(pid) {
			return nil, fmt.Errorf("%w: pid %d (%s)", ErrLocked, pid, path)
		}
		// Stale or unreadable: remove and retry once.
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("lock: remove stale %s: %w", path, err)
		}
	}
	return nil, fmt.Errorf("%w: %s was recreated concurrently", ErrLocked, path)
}

// Path returns the lock file location.
func (l *Lock) Path() string { return l.path }

// Release removes the lock file. It is safe to call more than once.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("lock: release: %w", err)
	}
	return nil
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}
