package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"audiopipe/internal/manifest"
)

// exitCodeMiss is returned by "manifest check --exit-code" when the stage must run.
const exitCodeMiss = 3

var errNoManifest = errors.New("no manifest recorded")

func newManifestCommand(ctx *commandContext) *cobra.Command {
	manifestCmd := &cobra.Command{
		Use:   "manifest",
		Short: "Inspect, check and record stage manifests",
	}

	manifestCmd.AddCommand(newManifestShowCommand(ctx))
	manifestCmd.AddCommand(newManifestCheckCommand(ctx))
	manifestCmd.AddCommand(newManifestRecordCommand(ctx))

	return manifestCmd
}

func newManifestShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <output-dir>",
		Short: "Show the manifest recorded for an output directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := ctx.runner()
			if err != nil {
				return err
			}
			defer runner.Close()
			m, found, err := runner.Store().Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("%w in %s", errNoManifest, args[0])
			}
			if jsonOutput {
				return writeJSON(cmd, m)
			}
			printManifest(cmd.OutOrStdout(), m)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the manifest as JSON")
	return cmd
}

func printManifest(out io.Writer, m manifest.Manifest) {
	colorize := shouldColorize(out)
	fmt.Fprintln(out, renderTable(
		[]string{"Field", "Value"},
		[][]string{
			{"Step", stepLabel(m.Step)},
			{"Session", m.SessionID},
			{"Schema", fmt.Sprintf("%d", m.Schema)},
			{"Config hash", string(m.ConfigHash)},
		},
		nil,
		colorize,
	))

	if len(m.Inputs) == 0 {
		fmt.Fprintln(out, "Inputs: none")
	} else {
		rows := make([][]string, 0, len(m.Inputs))
		for _, in := range m.Inputs {
			rows = append(rows, []string{in.Name, fmt.Sprintf("%d", in.Size), in.ContentHash})
		}
		fmt.Fprintln(out, renderTable([]string{"Input", "Bytes", "SHA-256"}, rows, []columnAlignment{alignLeft, alignRight, alignLeft}, colorize))
	}

	if len(m.Extra) == 0 {
		return
	}
	rows := make([][]string, 0, len(m.Extra))
	for _, key := range sortedKeys(m.Extra) {
		value, err := json.Marshal(m.Extra[key])
		if err != nil {
			value = []byte(fmt.Sprint(m.Extra[key]))
		}
		rows = append(rows, []string{key, string(value)})
	}
	fmt.Fprintln(out, renderTable([]string{"Extra", "Value"}, rows, nil, colorize))
}

type checkOutput struct {
	Step           string            `json:"step"`
	Skip           bool              `json:"skip"`
	Reason         string            `json:"reason"`
	MissingOutputs []string          `json:"missing_outputs"`
	ChangedFields  []string          `json:"changed_fields"`
	Expected       manifest.Manifest `json:"expected"`
}

func newManifestCheckCommand(ctx *commandContext) *cobra.Command {
	var flags stageFlags
	var jsonOutput bool
	var exitCode bool

	cmd := &cobra.Command{
		Use:   "check <output-dir>",
		Short: "Decide whether a stage can reuse its recorded outputs",
		Long: "Build the expected manifest from the given inputs and configuration and\n" +
			"compare it with the manifest recorded in the output directory. With\n" +
			"--exit-code the command exits 3 when the stage must run.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkLocalOutput(ctx, args[0]); err != nil {
				return err
			}
			runner, err := ctx.runner()
			if err != nil {
				return err
			}
			defer runner.Close()
			stage, err := flags.stage(args[0])
			if err != nil {
				return err
			}
			decision, expected, err := runner.Check(cmd.Context(), stage)
			if err != nil {
				return err
			}

			if jsonOutput {
				if err := writeJSON(cmd, checkOutput{
					Step:           expected.Step,
					Skip:           decision.Skip,
					Reason:         string(decision.Reason),
					MissingOutputs: nonNil(decision.MissingOutputs),
					ChangedFields:  nonNil(decision.ChangedFields),
					Expected:       expected,
				}); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				if decision.Skip {
					fmt.Fprintln(out, renderStatusLine(stepLabel(expected.Step), statusOK, "reuse ("+string(decision.Reason)+")", colorize))
				} else {
					fmt.Fprintln(out, renderStatusLine(stepLabel(expected.Step), statusWarn, "run ("+string(decision.Reason)+")", colorize))
					if len(decision.MissingOutputs) > 0 {
						fmt.Fprintln(out, renderStatusLine("Missing outputs", statusInfo, joinOrNone(decision.MissingOutputs), colorize))
					}
					if len(decision.ChangedFields) > 0 {
						fmt.Fprintln(out, renderStatusLine("Changed fields", statusInfo, joinOrNone(decision.ChangedFields), colorize))
					}
				}
			}

			if exitCode && !decision.Skip {
				if err := ctx.flushMetrics(); err != nil {
					return err
				}
				return &exitError{code: exitCodeMiss}
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the decision as JSON")
	cmd.Flags().BoolVar(&exitCode, "exit-code", false, "Exit with status 3 when the stage must run")
	return cmd
}

func newManifestRecordCommand(ctx *commandContext) *cobra.Command {
	var flags stageFlags

	cmd := &cobra.Command{
		Use:   "record <output-dir>",
		Short: "Record the manifest after a stage finished writing its outputs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkLocalOutput(ctx, args[0]); err != nil {
				return err
			}
			runner, err := ctx.runner()
			if err != nil {
				return err
			}
			defer runner.Close()
			stage, err := flags.stage(args[0])
			if err != nil {
				return err
			}
			m, err := runner.Record(cmd.Context(), stage)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s manifest for %s (config %s, %d inputs)\n",
				stepLabel(m.Step), args[0], shortHash(string(m.ConfigHash)), len(m.Inputs))
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
