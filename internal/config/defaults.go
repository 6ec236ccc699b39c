package config

const (
	defaultConfigPath         = "~/.config/audiopipe/config.toml"
	defaultLogDir             = "~/.local/share/audiopipe/logs"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultManifestName       = ".stage-manifest.json"
	defaultChunkSizeMiB       = 4
	defaultLockTimeoutSeconds = 30
	defaultObjectStoreBucket  = "audiopipe"
	defaultJournalPath        = "~/.local/share/audiopipe/journal.db"
	defaultJournalRetention   = 30
)

// defaultSecretFields are redacted from stage configurations before hashing.
var defaultSecretFields = []string{"hf_auth_token", "auth.hf_token"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir: defaultLogDir,
		},
		Cache: Cache{
			ManifestName:       defaultManifestName,
			ChunkSizeMiB:       defaultChunkSizeMiB,
			SecretFields:       append([]string(nil), defaultSecretFields...),
			LockTimeoutSeconds: defaultLockTimeoutSeconds,
		},
		ObjectStore: ObjectStore{
			Bucket: defaultObjectStoreBucket,
			UseSSL: true,
		},
		Journal: Journal{
			Enabled:       true,
			Path:          defaultJournalPath,
			RetentionDays: defaultJournalRetention,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
