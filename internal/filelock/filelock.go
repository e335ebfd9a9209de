// Package filelock implements the multi-process advisory lock on the
// store's `<path>.lock` file (spec §4.6), adapted from fcntl(F_SETLKW)
// record locking to flock(2) whole-file semantics, which map directly onto
// the spec's simpler exclusive/shared/none model.
package filelock

import (
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/chaturanga836/docstore/internal/common"
)

// Mode selects the lock discipline taken on open (spec §4.6).
type Mode int

const (
	// ModeNone takes no lock; the engine assumes single-process usage.
	ModeNone Mode = iota
	// ModeExclusive takes an exclusive lock, failing any concurrent opener.
	ModeExclusive
	// ModeShared takes a shared lock; mutation is rejected with ReadOnly.
	ModeShared
)

const retryInterval = 5 * time.Millisecond

// Lock holds an acquired advisory lock on a lockfile. The zero Lock (from
// ModeNone) is a no-op: Unlock is always safe to call.
type Lock struct {
	file *os.File
	mode Mode
}

// Acquire creates (if missing) and locks path according to mode, waiting up
// to timeout before failing with a LockError. A zero timeout fails fast on
// first contention, matching the spec's default.
func Acquire(path string, mode Mode, timeout time.Duration) (*Lock, error) {
	if mode == ModeNone {
		return &Lock{mode: ModeNone}, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, common.NewIOError(err, "filelock: open %s", path)
	}

	how := unix.LOCK_EX
	if mode == ModeShared {
		how = unix.LOCK_SH
	}

	deadline := time.Now().Add(timeout)
	for {
		err := unix.Flock(int(f.Fd()), how|unix.LOCK_NB)
		if err == nil {
			return &Lock{file: f, mode: mode}, nil
		}
		if err != unix.EWOULDBLOCK {
			f.Close()
			return nil, common.NewIOError(err, "filelock: flock %s", path)
		}
		if time.Now().After(deadline) {
			f.Close()
			return nil, common.NewLockError("filelock: could not acquire %s lock on %s within %s", modeName(mode), path, timeout)
		}
		time.Sleep(retryInterval)
	}
}

// Mode reports the discipline this lock was acquired under.
func (l *Lock) Mode() Mode {
	if l == nil {
		return ModeNone
	}
	return l.mode
}

// Unlock releases the lock and closes the underlying file descriptor. It is
// a no-op for a ModeNone lock.
func (l *Lock) Unlock() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		l.file.Close()
		return common.NewIOError(err, "filelock: unlock")
	}
	if err := l.file.Close(); err != nil {
		return common.NewIOError(err, "filelock: close lockfile")
	}
	return nil
}

func modeName(m Mode) string {
	switch m {
	case ModeExclusive:
		return "exclusive"
	case ModeShared:
		return "shared"
	default:
		return "none"
	}
}
