package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"audiopipe/internal/config"
	"audiopipe/internal/preflight"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigShowCommand(ctx))

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Add stage-specific credentials to cache.secret_fields so rotating them does not invalidate cached outputs.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureConfig(); err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", ctx.configPath)
			if !ctx.configSeen {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	var outputDirs []string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration and readiness checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			source := ctx.configPath
			if !ctx.configSeen {
				source += " (not found, defaults)"
			}
			fmt.Fprintf(out, "Config: %s\n", source)
			fmt.Fprintln(out, renderTable([]string{"Setting", "Value"}, configRows(cfg), nil, colorize))

			fmt.Fprintln(out, "Readiness:")
			for _, result := range preflight.RunAll(cmd.Context(), cfg, outputDirs, logger) {
				kind := statusOK
				if !result.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&outputDirs, "output-dir", nil, "Also check this stage output directory (repeatable)")
	return cmd
}

func configRows(cfg *config.Config) [][]string {
	logFile := "stderr only"
	if cfg.Paths.LogDir != "" {
		logFile = filepath.Join(cfg.Paths.LogDir, "audiopipe.log")
	}
	rows := [][]string{
		{"paths.log_dir", logFile},
		{"cache.manifest_name", cfg.Cache.ManifestName},
		{"cache.chunk_size_mib", strconv.Itoa(cfg.Cache.ChunkSizeMiB)},
		{"cache.secret_fields", joinOrNone(cfg.Cache.SecretFields)},
		{"cache.lock_timeout_seconds", strconv.Itoa(cfg.Cache.LockTimeoutSeconds)},
		{"object_store.enabled", yesNo(cfg.ObjectStore.Enabled)},
	}
	if cfg.ObjectStore.Enabled {
		rows = append(rows,
			[]string{"object_store.endpoint", cfg.ObjectStore.Endpoint},
			[]string{"object_store.bucket", cfg.ObjectStore.Bucket},
			[]string{"object_store.prefix", cfg.ObjectStore.Prefix},
			[]string{"object_store.access_key", maskSecret(cfg.ObjectStore.AccessKey)},
			[]string{"object_store.secret_key", maskSecret(cfg.ObjectStore.SecretKey)},
			[]string{"object_store.use_ssl", yesNo(cfg.ObjectStore.UseSSL)},
		)
	}
	rows = append(rows, []string{"journal.enabled", yesNo(cfg.Journal.Enabled)})
	if cfg.Journal.Enabled {
		rows = append(rows,
			[]string{"journal.path", cfg.Journal.Path},
			[]string{"journal.retention_days", strconv.Itoa(cfg.Journal.RetentionDays)},
		)
	}
	rows = append(rows,
		[]string{"logging.format", cfg.Logging.Format},
		[]string{"logging.level", cfg.Logging.Level},
	)
	return rows
}

func maskSecret(value string) string {
	if value == "" {
		return "(unset)"
	}
	return "********"
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
