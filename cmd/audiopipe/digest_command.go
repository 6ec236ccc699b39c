package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"audiopipe/internal/confighash"
	"audiopipe/internal/stageconfig"
)

func newDigestCommand(ctx *commandContext) *cobra.Command {
	var section string
	var secrets []string
	var canonical bool

	cmd := &cobra.Command{
		Use:   "digest <stage-config>",
		Short: "Print the redacted digest of a stage configuration file",
		Long: "Print the digest recorded as config_hash for a stage configuration.\n" +
			"Secret fields from cache.secret_fields are blanked before hashing, so\n" +
			"rotating a credential does not change the digest.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			tree, err := loadStageConfig(args[0], section)
			if err != nil {
				return err
			}

			fields := cfg.Cache.SecretFields
			if cmd.Flags().Changed("secret") {
				fields = secrets
			}
			opts := []confighash.Option{confighash.WithSecretFields(fields...)}

			out := cmd.OutOrStdout()
			if canonical {
				payload, err := confighash.Canonical(tree, opts...)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(payload))
				return nil
			}
			digest, err := confighash.Digest(tree, opts...)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, digest)
			return nil
		},
	}

	cmd.Flags().StringVar(&section, "section", "", "Hash only this table of the file (dotted for nested tables)")
	cmd.Flags().StringSliceVar(&secrets, "secret", nil, "Secret field paths to redact (overrides cache.secret_fields)")
	cmd.Flags().BoolVar(&canonical, "canonical", false, "Print the redacted canonical JSON instead of the digest")
	return cmd
}

func loadStageConfig(path, section string) (map[string]any, error) {
	if path == "" {
		return map[string]any{}, nil
	}
	tree, err := stageconfig.Load(path)
	if err != nil {
		return nil, err
	}
	if section == "" {
		return tree, nil
	}
	return stageconfig.Section(tree, section)
}
