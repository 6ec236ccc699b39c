package testsupport

import (
	"path/filepath"
	"testing"

	"audiopipe/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config with its log directory under a per-test temp
// directory and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	cfg := config.Default()
	base := t.TempDir()
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Journal.Path = filepath.Join(base, "journal.db")
	cfg.Cache.LockTimeoutSeconds = 1

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithSecretFields replaces the redacted stage-config paths.
func WithSecretFields(fields ...string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Cache.SecretFields = append([]string(nil), fields...)
	}
}

// WithManifestName overrides the manifest file name.
func WithManifestName(name string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Cache.ManifestName = name
	}
}

// WithChunkSizeMiB overrides the fingerprint chunk size.
func WithChunkSizeMiB(size int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Cache.ChunkSizeMiB = size
	}
}

// WithoutJournal disables the stage history database.
func WithoutJournal() ConfigOption {
	return func(cfg *config.Config) {
		cfg.Journal.Enabled = false
	}
}
