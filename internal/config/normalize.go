package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCache()
	c.normalizeObjectStore()
	if err := c.normalizeJournal(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	c.Paths.LogDir = strings.TrimSpace(c.Paths.LogDir)
	if c.Paths.LogDir == "" {
		return nil
	}
	var err error
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeCache() {
	c.Cache.ManifestName = strings.TrimSpace(c.Cache.ManifestName)
	if c.Cache.ManifestName == "" {
		c.Cache.ManifestName = defaultManifestName
	}
	if c.Cache.ChunkSizeMiB == 0 {
		c.Cache.ChunkSizeMiB = defaultChunkSizeMiB
	}
	if c.Cache.LockTimeoutSeconds == 0 {
		c.Cache.LockTimeoutSeconds = defaultLockTimeoutSeconds
	}
	fields := make([]string, 0, len(c.Cache.SecretFields))
	seen := make(map[string]struct{}, len(c.Cache.SecretFields))
	for _, field := range c.Cache.SecretFields {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		if _, ok := seen[field]; ok {
			continue
		}
		seen[field] = struct{}{}
		fields = append(fields, field)
	}
	c.Cache.SecretFields = fields
}

func (c *Config) normalizeObjectStore() {
	c.ObjectStore.Endpoint = strings.TrimSpace(c.ObjectStore.Endpoint)
	c.ObjectStore.Bucket = strings.TrimSpace(c.ObjectStore.Bucket)
	if c.ObjectStore.Bucket == "" {
		c.ObjectStore.Bucket = defaultObjectStoreBucket
	}
	c.ObjectStore.Prefix = strings.Trim(strings.TrimSpace(c.ObjectStore.Prefix), "/")
	if c.ObjectStore.AccessKey == "" {
		if value, ok := os.LookupEnv("AUDIOPIPE_S3_ACCESS_KEY"); ok {
			c.ObjectStore.AccessKey = strings.TrimSpace(value)
		}
	}
	if c.ObjectStore.SecretKey == "" {
		if value, ok := os.LookupEnv("AUDIOPIPE_S3_SECRET_KEY"); ok {
			c.ObjectStore.SecretKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeJournal() error {
	c.Journal.Path = strings.TrimSpace(c.Journal.Path)
	if c.Journal.Path == "" {
		c.Journal.Path = defaultJournalPath
	}
	if c.Journal.RetentionDays == 0 {
		c.Journal.RetentionDays = defaultJournalRetention
	}
	var err error
	if c.Journal.Path, err = expandPath(c.Journal.Path); err != nil {
		return fmt.Errorf("journal.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
