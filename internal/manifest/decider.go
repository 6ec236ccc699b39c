package manifest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"audiopipe/internal/logging"
)

const decisionType = "stage_cache"

// Reason explains a reuse decision.
type Reason string

const (
	ReasonMatch           Reason = "manifest_match"
	ReasonMissingOutput   Reason = "missing_output"
	ReasonNoManifest      Reason = "no_manifest"
	ReasonInvalidManifest Reason = "invalid_manifest"
	ReasonMismatch        Reason = "manifest_mismatch"
)

// Decision is the outcome of a reuse check.
type Decision struct {
	Skip   bool
	Reason Reason
	// MissingOutputs lists required outputs that were not found.
	MissingOutputs []string
	// ChangedFields lists manifest fields that differ from the recorded manifest.
	ChangedFields []string
}

// Recorder receives every decision, typically for metrics.
type Recorder interface {
	RecordDecision(step string, skip bool, reason string)
}

// Decider compares expected manifests with recorded ones.
type Decider struct {
	store    Store
	logger   *slog.Logger
	recorder Recorder
}

// DeciderOption customizes a Decider.
type DeciderOption func(*Decider)

// WithRecorder reports every decision to r.
func WithRecorder(r Recorder) DeciderOption {
	return func(d *Decider) {
		d.recorder = r
	}
}

// NewDecider returns a Decider reading from store. A nil store uses a
// FileStore with DefaultFileName.
func NewDecider(store Store, logger *slog.Logger, opts ...DeciderOption) *Decider {
	if store == nil {
		store = defaultStore
	}
	d := &Decider{
		store:  store,
		logger: logging.NewComponentLogger(logger, "manifest"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ShouldSkip reports whether the stage writing to dir may reuse its recorded
// outputs. Errors mean the cache state could not be determined.
func (d *Decider) ShouldSkip(ctx context.Context, dir string, expected Manifest, requiredOutputs []string) (bool, error) {
	decision, err := d.Decide(ctx, dir, expected, requiredOutputs)
	if err != nil {
		return false, err
	}
	return decision.Skip, nil
}

// Decide checks required outputs first and only then compares manifests. Reuse
// requires every output present and exact equality with the recorded manifest.
func (d *Decider) Decide(ctx context.Context, dir string, expected Manifest, requiredOutputs []string) (Decision, error) {
	var missing []string
	for _, output := range requiredOutputs {
		ok, err := d.store.Exists(ctx, output)
		if err != nil {
			return Decision{}, fmt.Errorf("manifest: check required output: %w", err)
		}
		if !ok {
			missing = append(missing, output)
		}
	}
	if len(missing) > 0 {
		return d.finish(ctx, dir, expected, Decision{Reason: ReasonMissingOutput, MissingOutputs: missing}), nil
	}

	recorded, found, err := d.store.Load(ctx, dir)
	switch {
	case errors.Is(err, ErrInvalidManifest):
		logging.WarnWithContext(ctx, d.logger, "recorded manifest unreadable", "manifest_invalid",
			logging.String("output_dir", dir),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stage will recompute"),
			logging.String(logging.FieldErrorHint, "the manifest is rewritten after the next successful run"),
		)
		return d.finish(ctx, dir, expected, Decision{Reason: ReasonInvalidManifest}), nil
	case err != nil:
		return Decision{}, err
	case !found:
		return d.finish(ctx, dir, expected, Decision{Reason: ReasonNoManifest}), nil
	}

	if changed := expected.Diff(recorded); len(changed) > 0 {
		return d.finish(ctx, dir, expected, Decision{Reason: ReasonMismatch, ChangedFields: changed}), nil
	}
	return d.finish(ctx, dir, expected, Decision{Skip: true, Reason: ReasonMatch}), nil
}

func (d *Decider) finish(ctx context.Context, dir string, expected Manifest, decision Decision) Decision {
	result := "miss"
	msg := "stage cache miss"
	if decision.Skip {
		result = "hit"
		msg = "stage cache hit"
	}
	attrs := logging.DecisionAttrs(decisionType, result, string(decision.Reason))
	attrs = append(attrs,
		logging.String("step", expected.Step),
		logging.String("output_dir", dir),
	)
	if len(decision.MissingOutputs) > 0 {
		attrs = append(attrs, logging.String("missing_outputs", strings.Join(decision.MissingOutputs, ",")))
	}
	if len(decision.ChangedFields) > 0 {
		attrs = append(attrs, logging.String("changed_fields", strings.Join(decision.ChangedFields, ",")))
	}
	logging.WithContext(ctx, d.logger).InfoContext(ctx, msg, logging.Args(attrs...)...)

	if d.recorder != nil {
		d.recorder.RecordDecision(expected.Step, decision.Skip, string(decision.Reason))
	}
	return decision
}
