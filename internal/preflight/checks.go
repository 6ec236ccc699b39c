package preflight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"audiopipe/internal/config"
	"audiopipe/internal/objectstore"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckOutputLocation verifies a directory that may not exist yet. Stage
// outputs are created on first run, so the nearest existing ancestor must be
// writable instead.
func CheckOutputLocation(name, path string) Result {
	if path == "" {
		return Result{Name: name, Detail: "missing path"}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}

	current := abs
	for {
		_, err := os.Stat(current)
		if err == nil {
			break
		}
		if !errors.Is(err, os.ErrNotExist) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", current, err)}
		}
		parent := filepath.Dir(current)
		if parent == current {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: no existing ancestor)", abs)}
		}
		current = parent
	}

	if current == abs {
		return CheckDirectoryAccess(name, abs)
	}
	check := CheckDirectoryAccess(name, current)
	if !check.Passed {
		return check
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (will be created under %s)", abs, current)}
}

// CheckObjectStore verifies the bucket is reachable, creating it when absent.
// It uses a 10-second timeout and a single attempt.
func CheckObjectStore(ctx context.Context, cfg config.ObjectStore, logger *slog.Logger) Result {
	const name = "Object store"

	if !cfg.Enabled {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	api, err := objectstore.NewMinioAPI(cfg, logger)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := api.EnsureBucket(checkCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{Name: name, Detail: "bucket check timed out (endpoint unresponsive)"}
		}
		return Result{Name: name, Detail: fmt.Sprintf("bucket check failed (%v)", err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", cfg.Endpoint)}
}
