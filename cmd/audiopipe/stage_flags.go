package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"audiopipe/internal/preflight"
	"audiopipe/internal/stagerun"
)

// stageFlags describes a stage invocation on the command line.
type stageFlags struct {
	step       string
	session    string
	inputs     []string
	configPath string
	section    string
	required   []string
	extra      map[string]string
}

func (f *stageFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.step, "step", "", "Stage name recorded in the manifest")
	cmd.Flags().StringVar(&f.session, "session", "", "Recording session identifier")
	cmd.Flags().StringSliceVarP(&f.inputs, "input", "i", nil, "Stage input file (repeatable)")
	cmd.Flags().StringVar(&f.configPath, "stage-config", "", "Stage configuration file (.toml, .yaml, .json)")
	cmd.Flags().StringVar(&f.section, "section", "", "Use only this table of the stage configuration")
	cmd.Flags().StringSliceVarP(&f.required, "require", "r", nil, "Output that must exist for reuse, relative to the output directory (repeatable)")
	cmd.Flags().StringToStringVar(&f.extra, "extra", nil, "Extra identity as key=value, e.g. checkpoint=v3")
	_ = cmd.MarkFlagRequired("step")
}

func (f *stageFlags) stage(outputDir string) (stagerun.Stage, error) {
	tree, err := loadStageConfig(f.configPath, f.section)
	if err != nil {
		return stagerun.Stage{}, err
	}
	extra := make(map[string]any, len(f.extra))
	for key, value := range f.extra {
		extra[key] = value
	}
	return stagerun.Stage{
		Name:            f.step,
		SessionID:       f.session,
		OutputDir:       outputDir,
		Inputs:          append([]string(nil), f.inputs...),
		Config:          tree,
		Extra:           extra,
		RequiredOutputs: resolveOutputs(outputDir, f.required),
	}, nil
}

// resolveOutputs joins relative output paths onto outputDir.
func resolveOutputs(outputDir string, outputs []string) []string {
	resolved := make([]string, 0, len(outputs))
	for _, output := range outputs {
		if output == "" || filepath.IsAbs(output) {
			resolved = append(resolved, output)
			continue
		}
		resolved = append(resolved, filepath.Join(outputDir, output))
	}
	return resolved
}

// checkLocalOutput fails early when a local output directory cannot be written.
func checkLocalOutput(ctx *commandContext, dir string) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if cfg.ObjectStore.Enabled {
		return nil
	}
	result := preflight.CheckOutputLocation("Output directory", dir)
	if !result.Passed {
		return fmt.Errorf("output directory not usable: %s", result.Detail)
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func joinOrNone(values []string) string {
	if len(values) == 0 {
		return "none"
	}
	return strings.Join(values, ", ")
}
