package objectstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"audiopipe/internal/config"
	"audiopipe/internal/manifest"
)

// Store implements manifest.Store over a bucket.
type Store struct {
	api    API
	prefix string
	name   string
}

var _ manifest.Store = (*Store)(nil)

// New builds a Store from object store configuration.
func New(cfg config.ObjectStore, manifestName string, logger *slog.Logger) (*Store, error) {
	api, err := NewMinioAPI(cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewWithAPI(api, cfg.Prefix, manifestName), nil
}

// NewWithAPI wraps an existing API. An empty manifestName uses
// manifest.DefaultFileName.
func NewWithAPI(api API, prefix, manifestName string) *Store {
	manifestName = strings.TrimSpace(manifestName)
	if manifestName == "" {
		manifestName = manifest.DefaultFileName
	}
	return &Store{api: api, prefix: strings.Trim(prefix, "/"), name: manifestName}
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	return s.api.EnsureBucket(ctx)
}

// ObjectKey maps a slash-separated location onto the bucket key space.
func (s *Store) ObjectKey(location string) string {
	cleaned := strings.TrimPrefix(path.Clean("/"+strings.TrimSpace(location)), "/")
	if s.prefix == "" {
		return cleaned
	}
	if cleaned == "" {
		return s.prefix
	}
	return s.prefix + "/" + cleaned
}

// ManifestKey returns the key of the manifest recorded for dir.
func (s *Store) ManifestKey(dir string) string {
	return path.Join(s.ObjectKey(dir), s.name)
}

// Load reads the manifest recorded for dir.
func (s *Store) Load(ctx context.Context, dir string) (manifest.Manifest, bool, error) {
	if strings.TrimSpace(dir) == "" {
		return manifest.Manifest{}, false, errors.New("objectstore: output dir is empty")
	}
	payload, err := s.api.Get(ctx, s.ManifestKey(dir))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return manifest.Manifest{}, false, nil
		}
		return manifest.Manifest{}, false, fmt.Errorf("objectstore: load manifest: %w", err)
	}
	m, err := manifest.Unmarshal(payload)
	if err != nil {
		return manifest.Manifest{}, true, err
	}
	return m, true, nil
}

// Write uploads m as the manifest for dir. Object PUTs replace atomically, so
// readers see either the previous or the new manifest.
func (s *Store) Write(ctx context.Context, dir string, m manifest.Manifest) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("objectstore: %w: output dir is empty", manifest.ErrWrite)
	}
	payload, err := manifest.Marshal(m)
	if err != nil {
		return fmt.Errorf("objectstore: %w: %w", manifest.ErrWrite, err)
	}
	if err := s.api.Put(ctx, s.ManifestKey(dir), payload, "application/json"); err != nil {
		return fmt.Errorf("objectstore: %w: %w", manifest.ErrWrite, err)
	}
	return nil
}

// Exists reports whether the object for an output location is present.
func (s *Store) Exists(ctx context.Context, location string) (bool, error) {
	ok, err := s.api.Stat(ctx, s.ObjectKey(location))
	if err != nil {
		return false, fmt.Errorf("objectstore: stat output: %w", err)
	}
	return ok, nil
}
