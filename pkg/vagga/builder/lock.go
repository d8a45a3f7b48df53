package builder

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// fileLock holds an exclusive flock(2) lock on a sibling ".lock" file,
// the per-container arbitration spec.md §4.6 calls for: two
// invocations building the same container contend on this lock, and
// the loser sees the winner's promoted root when it wakes (storage's
// Exists check, run right after acquiring the lock).
type fileLock struct {
	f *os.File
}

// lockContainer acquires an exclusive lock on path, blocking until
// available.
func lockContainer(path string) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("builder: opening lock %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("builder: locking %s: %w", path, err)
	}
	return &fileLock{f: f}, nil
}

func (l *fileLock) Unlock() error {
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		l.f.Close()
		return fmt.Errorf("builder: unlocking: %w", err)
	}
	return l.f.Close()
}
