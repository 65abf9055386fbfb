package lockedfile

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestTryLockHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", ".lock")

	unlock, err := MutexAt(path).TryLock()
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}

	// flock locks belong to the open file description, so a second open of
	// the same path conflicts even inside one process.
	if _, err := MutexAt(path).TryLock(); !errors.Is(err, ErrLocked) {
		t.Fatalf("second TryLock err = %v, want ErrLocked", err)
	}

	unlock()

	unlock2, err := MutexAt(path).TryLock()
	if err != nil {
		t.Fatalf("TryLock after unlock: %v", err)
	}
	unlock2()
}

func TestLockBlocksUntilRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")
	mu := MutexAt(path)

	unlock, err := mu.Lock()
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		unlock2, err := MutexAt(path).Lock()
		if err != nil {
			t.Errorf("Lock in goroutine: %v", err)
			close(acquired)
			return
		}
		close(acquired)
		unlock2()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock acquired while the first was held")
	default:
	}
	unlock()
	<-acquired
}

func TestMutexAtEmptyPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("MutexAt(\"\") did not panic")
		}
	}()
	MutexAt("")
}
