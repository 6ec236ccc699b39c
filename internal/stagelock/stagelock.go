// Package stagelock serializes writers of a stage output directory.
package stagelock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// FileName is the lock file created inside the output directory.
const FileName = ".stage.lock"

const retryDelay = 50 * time.Millisecond

// ErrLocked reports that another process kept the directory locked past the timeout.
var ErrLocked = errors.New("stage output directory is locked")

// Lock is a held directory lock.
type Lock struct {
	fl *flock.Flock
}

// Acquire takes the exclusive lock on dir, creating dir when needed. It retries
// until timeout elapses or ctx ends; a non-positive timeout tries once.
func Acquire(ctx context.Context, dir string, timeout time.Duration) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("stagelock: ensure dir: %w", err)
	}
	fl := flock.New(filepath.Join(dir, FileName))

	if timeout <= 0 {
		ok, err := fl.TryLock()
		if err != nil {
			return nil, fmt.Errorf("stagelock: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrLocked, dir)
		}
		return &Lock{fl: fl}, nil
	}

	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ok, err := fl.TryLockContext(lockCtx, retryDelay)
	switch {
	case ok:
		return &Lock{fl: fl}, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case err == nil || errors.Is(err, context.DeadlineExceeded):
		return nil, fmt.Errorf("%w: %s after %s", ErrLocked, dir, timeout)
	default:
		return nil, fmt.Errorf("stagelock: %w", err)
	}
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.fl.Path()
}

// Release drops the lock. The lock file is left in place.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("stagelock: release: %w", err)
	}
	return nil
}
