package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

const (
	lockFileSuffix = ".lock"
)

// PlanLock manages a file-based lock next to a plan file, so that two
// goesplan processes never interleave writes to the same plan.
type PlanLock struct {
	lock *flock.Flock
	path string
}

// NewPlanLock creates a new lock for the given plan path.
func NewPlanLock(planPath string) (*PlanLock, error) {
	absPath, err := filepath.Abs(planPath)
	if err != nil {
		return nil, fmt.Errorf("could not get absolute plan path: %w", err)
	}
	lockPath := absPath + lockFileSuffix
	return &PlanLock{
		lock: flock.New(lockPath),
		path: lockPath,
	}, nil
}

// Lock acquires the plan lock, waiting if necessary.
// It will log a message if it has to wait.
func (l *PlanLock) Lock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock dir for %s: %w", l.path, err)
	}
	locked, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock on %s: %w", l.path, err)
	}

	if !locked {
		Log.Infof("Another goesplan process is writing to %s, waiting for it to finish...", l.path)
		if err := l.lock.Lock(); err != nil {
			return fmt.Errorf("failed to acquire lock on %s after waiting: %w", l.path, err)
		}
	}
	return nil
}

// Unlock releases the plan lock.
func (l *PlanLock) Unlock() error {
	if err := l.lock.Unlock(); err != nil {
		// Suppress error if the lock file doesn't exist, as it means we don't hold the lock.
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to release lock on %s: %w", l.path, err)
	}
	return nil
}

// Path returns the lock file path.
func (l *PlanLock) Path() string {
	return l.path
}
