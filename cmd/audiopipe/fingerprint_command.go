package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"audiopipe/internal/fingerprint"
)

func newFingerprintCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "fingerprint <file>...",
		Short: "Show content fingerprints for stage input files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			hasher := fingerprint.Hasher{ChunkSize: cfg.ChunkSize(), Observer: ctx.metrics}
			fps, err := hasher.Files(cmd.Context(), args)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, fps)
			}

			rows := make([][]string, 0, len(fps))
			for _, fp := range fps {
				rows = append(rows, []string{fp.Name, humanize.IBytes(uint64(fp.Size)), fp.ContentHash})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"File", "Size", "SHA-256"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft},
				shouldColorize(out),
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output fingerprints as JSON")
	return cmd
}
