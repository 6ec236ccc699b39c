package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags stageFlags

	cmd := &cobra.Command{
		Use:   "run <output-dir> -- <command> [args...]",
		Short: "Run a command behind the stage cache",
		Long: "Run the command only when the stage cannot reuse its recorded outputs.\n" +
			"The command sees AUDIOPIPE_OUTPUT_DIR, AUDIOPIPE_STEP and\n" +
			"AUDIOPIPE_SESSION_ID. The manifest is recorded only after the command\n" +
			"succeeds and every --require output exists.",
		Args: func(cmd *cobra.Command, args []string) error {
			if cmd.ArgsLenAtDash() != 1 || len(args) < 2 {
				return fmt.Errorf("usage: %s", cmd.Use)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			outputDir, command := args[0], args[1:]
			if err := checkLocalOutput(ctx, outputDir); err != nil {
				return err
			}
			runner, err := ctx.runner()
			if err != nil {
				return err
			}
			defer runner.Close()
			stage, err := flags.stage(outputDir)
			if err != nil {
				return err
			}
			stage.Execute = func(runCtx context.Context) error {
				proc := exec.CommandContext(runCtx, command[0], command[1:]...)
				proc.Stdout = cmd.OutOrStdout()
				proc.Stderr = cmd.ErrOrStderr()
				proc.Env = append(os.Environ(),
					"AUDIOPIPE_OUTPUT_DIR="+outputDir,
					"AUDIOPIPE_STEP="+stage.Name,
					"AUDIOPIPE_SESSION_ID="+stage.SessionID,
				)
				if err := proc.Run(); err != nil {
					return fmt.Errorf("run %s: %w", command[0], err)
				}
				return nil
			}

			result, err := runner.Run(cmd.Context(), stage)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			if result.Skipped {
				fmt.Fprintln(out, renderStatusLine(stepLabel(stage.Name), statusOK, "skipped, outputs reused", colorize))
				return nil
			}
			fmt.Fprintln(out, renderStatusLine(stepLabel(stage.Name), statusOK,
				fmt.Sprintf("completed in %s (%s)", result.Elapsed.Round(time.Millisecond), result.Decision.Reason), colorize))
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}
