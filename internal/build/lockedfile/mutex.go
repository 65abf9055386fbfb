// Package lockedfile provides an inter-process mutex backed by a lock file.
package lockedfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrLocked is returned by TryLock when another holder owns the mutex.
var ErrLocked = errors.New("lockedfile: already locked")

// A Mutex provides mutual exclusion within and across processes by locking
// a well-known file. The file is created on first use and never removed.
type Mutex struct {
	Path string
}

// MutexAt returns a new Mutex with Path set to the given non-empty path.
func MutexAt(path string) *Mutex {
	if path == "" {
		panic("lockedfile.MutexAt: path must be non-empty")
	}
	return &Mutex{Path: path}
}

func (mu *Mutex) String() string {
	return fmt.Sprintf("lockedfile.Mutex(%s)", mu.Path)
}

// Lock blocks until the mutex is held and returns the function that
// releases it.
func (mu *Mutex) Lock() (unlock func(), err error) {
	return mu.lock(true)
}

// TryLock acquires the mutex without waiting. It returns ErrLocked if the
// mutex is held elsewhere.
func (mu *Mutex) TryLock() (unlock func(), err error) {
	return mu.lock(false)
}

func (mu *Mutex) lock(wait bool) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(mu.Path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(mu.Path, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return nil, err
	}
	if err := lockFile(f, wait); err != nil {
		f.Close()
		if errors.Is(err, ErrLocked) {
			return nil, err
		}
		return nil, &os.PathError{Op: "lock", Path: mu.Path, Err: err}
	}
	return func() {
		unlockFile(f)
		f.Close()
	}, nil
}
