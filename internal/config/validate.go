package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateObjectStore(); err != nil {
		return err
	}
	if c.Journal.RetentionDays < 0 {
		return errors.New("journal.retention_days must not be negative")
	}
	return c.validateLogging()
}

func (c *Config) validateCache() error {
	name := c.Cache.ManifestName
	if name != filepath.Base(name) || name == "." || name == ".." {
		return fmt.Errorf("cache.manifest_name must be a bare file name, got %q", name)
	}
	if c.Cache.ChunkSizeMiB <= 0 || c.Cache.ChunkSizeMiB > 1024 {
		return errors.New("cache.chunk_size_mib must be between 1 and 1024")
	}
	if c.Cache.LockTimeoutSeconds < 0 {
		return errors.New("cache.lock_timeout_seconds must not be negative")
	}
	for _, field := range c.Cache.SecretFields {
		for _, segment := range strings.Split(field, ".") {
			if strings.TrimSpace(segment) == "" {
				return fmt.Errorf("cache.secret_fields: %q has an empty path segment", field)
			}
		}
	}
	return nil
}

func (c *Config) validateObjectStore() error {
	if !c.ObjectStore.Enabled {
		return nil
	}
	if c.ObjectStore.Endpoint == "" {
		return errors.New("object_store.endpoint must be set when object_store.enabled is true")
	}
	if c.ObjectStore.AccessKey == "" || c.ObjectStore.SecretKey == "" {
		return errors.New("object_store.access_key and object_store.secret_key must be set when object_store.enabled is true (or AUDIOPIPE_S3_ACCESS_KEY / AUDIOPIPE_S3_SECRET_KEY)")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}
