package manifest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultFileName is the manifest file kept in each stage output directory.
const DefaultFileName = ".stage-manifest.json"

// ErrWrite marks manifest persistence failures. A stage whose manifest failed
// to persist must not be considered cached.
var ErrWrite = errors.New("manifest write failed")

// Store persists one manifest per stage output location and answers whether
// declared outputs exist. Callers must not write the same location concurrently.
type Store interface {
	// Load returns the recorded manifest for dir. A missing manifest is
	// (Manifest{}, false, nil); a malformed one returns an error wrapping
	// ErrInvalidManifest.
	Load(ctx context.Context, dir string) (Manifest, bool, error)
	// Write replaces the recorded manifest for dir.
	Write(ctx context.Context, dir string, m Manifest) error
	// Exists reports whether an output path is present.
	Exists(ctx context.Context, path string) (bool, error)
}

// FileStore keeps manifests as JSON files inside the output directory.
type FileStore struct {
	name string
}

// NewFileStore returns a store writing manifests under the given file name;
// an empty name uses DefaultFileName.
func NewFileStore(name string) *FileStore {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultFileName
	}
	return &FileStore{name: name}
}

// Path returns the manifest location for dir.
func (s *FileStore) Path(dir string) string {
	return filepath.Join(dir, s.name)
}

// Load reads the manifest for dir.
func (s *FileStore) Load(_ context.Context, dir string) (Manifest, bool, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return Manifest{}, false, errors.New("manifest: output dir is empty")
	}
	payload, err := os.ReadFile(s.Path(dir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Manifest{}, false, nil
		}
		return Manifest{}, false, fmt.Errorf("manifest: read %s: %w", s.Path(dir), err)
	}
	m, err := Unmarshal(payload)
	if err != nil {
		return Manifest{}, true, err
	}
	return m, true, nil
}

// Write atomically replaces the manifest for dir, creating dir when absent.
// The temp file is fsynced before the rename so a crash never leaves a torn
// manifest behind.
func (s *FileStore) Write(_ context.Context, dir string, m Manifest) error {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return fmt.Errorf("manifest: %w: output dir is empty", ErrWrite)
	}
	payload, err := Marshal(m)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("manifest: %w: ensure output dir: %w", ErrWrite, err)
	}

	tmp, err := os.CreateTemp(dir, "."+s.name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("manifest: %w: create temp: %w", ErrWrite, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("manifest: %w: write temp: %w", ErrWrite, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("manifest: %w: sync temp: %w", ErrWrite, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("manifest: %w: close temp: %w", ErrWrite, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("manifest: %w: chmod temp: %w", ErrWrite, err)
	}
	if err := os.Rename(tmpPath, s.Path(dir)); err != nil {
		cleanup()
		return fmt.Errorf("manifest: %w: rename: %w", ErrWrite, err)
	}
	syncDir(dir)
	return nil
}

// Exists reports whether path is present on disk.
func (s *FileStore) Exists(_ context.Context, path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("manifest: stat output %s: %w", path, err)
	}
	return true, nil
}

// syncDir flushes the directory entry for the renamed manifest. Some
// filesystems reject fsync on directories; the rename itself already happened.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

var defaultStore = NewFileStore(DefaultFileName)

// LoadManifest reads the manifest for dir using DefaultFileName.
func LoadManifest(ctx context.Context, dir string) (Manifest, bool, error) {
	return defaultStore.Load(ctx, dir)
}

// WriteManifest persists m for dir using DefaultFileName. Call it only after
// every stage output has been fully written.
func WriteManifest(ctx context.Context, dir string, m Manifest) error {
	return defaultStore.Write(ctx, dir, m)
}
