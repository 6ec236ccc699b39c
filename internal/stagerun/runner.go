package stagerun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"audiopipe/internal/config"
	"audiopipe/internal/confighash"
	"audiopipe/internal/fingerprint"
	"audiopipe/internal/journal"
	"audiopipe/internal/logging"
	"audiopipe/internal/manifest"
	"audiopipe/internal/metrics"
	"audiopipe/internal/objectstore"
	"audiopipe/internal/stagelock"
)

// ErrIncompleteOutputs reports a stage that returned success without writing
// every required output.
var ErrIncompleteOutputs = errors.New("stage outputs incomplete")

// ExecuteFunc produces the stage outputs.
type ExecuteFunc func(ctx context.Context) error

// Stage describes one invocation of a pipeline stage.
type Stage struct {
	Name            string
	SessionID       string
	OutputDir       string
	Inputs          []string
	Config          any
	Extra           map[string]any
	RequiredOutputs []string
	Execute         ExecuteFunc
}

// Result reports what Run did.
type Result struct {
	Skipped       bool
	Decision      manifest.Decision
	Manifest      manifest.Manifest
	CorrelationID string
	Elapsed       time.Duration
}

// Journal receives stage cache history. *journal.Journal satisfies it.
type Journal interface {
	Append(ctx context.Context, e journal.Entry) (int64, error)
}

// Runner runs stages against a manifest store.
type Runner struct {
	store         manifest.Store
	journal       Journal
	closeJournal  func() error
	decider       *manifest.Decider
	hasher        fingerprint.Hasher
	configOptions []confighash.Option
	lockTimeout   time.Duration
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

// Options configures a Runner.
type Options struct {
	// Store defaults to a FileStore with manifest.DefaultFileName.
	Store     manifest.Store
	ChunkSize int
	// SecretFields replaces the redacted config paths; nil keeps
	// confighash.DefaultSecretFields and an empty slice disables redaction.
	SecretFields []string
	LockTimeout  time.Duration
	// Journal records decisions and manifest writes when set.
	Journal Journal
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// New builds a Runner from explicit options.
func New(opts Options) *Runner {
	store := opts.Store
	if store == nil {
		store = manifest.NewFileStore("")
	}
	var configOptions []confighash.Option
	if opts.SecretFields != nil {
		configOptions = append(configOptions, confighash.WithSecretFields(opts.SecretFields...))
	}
	logger := logging.NewComponentLogger(opts.Logger, "stagerun")
	return &Runner{
		store:         store,
		journal:       opts.Journal,
		decider:       manifest.NewDecider(store, opts.Logger, manifest.WithRecorder(opts.Metrics)),
		hasher:        fingerprint.Hasher{ChunkSize: opts.ChunkSize, Observer: opts.Metrics},
		configOptions: configOptions,
		lockTimeout:   opts.LockTimeout,
		metrics:       opts.Metrics,
		logger:        logger,
	}
}

// NewFromConfig builds a Runner using application configuration, selecting the
// object store backend when it is enabled and opening the journal when it is
// enabled. Callers must Close the returned Runner.
func NewFromConfig(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("stagerun: config is required")
	}
	var store manifest.Store = manifest.NewFileStore(cfg.Cache.ManifestName)
	if cfg.ObjectStore.Enabled {
		remote, err := objectstore.New(cfg.ObjectStore, cfg.Cache.ManifestName, logger)
		if err != nil {
			return nil, fmt.Errorf("stagerun: %w", err)
		}
		store = remote
	}
	opts := Options{
		Store:        store,
		ChunkSize:    cfg.ChunkSize(),
		SecretFields: cfg.Cache.SecretFields,
		LockTimeout:  cfg.LockTimeout(),
		Metrics:      m,
		Logger:       logger,
	}
	var opened *journal.Journal
	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("stagerun: %w", err)
		}
		opened = j
		opts.Journal = j
	}
	runner := New(opts)
	if opened != nil {
		runner.closeJournal = opened.Close
	}
	return runner, nil
}

// Close releases resources opened by NewFromConfig.
func (r *Runner) Close() error {
	if r == nil || r.closeJournal == nil {
		return nil
	}
	err := r.closeJournal()
	r.closeJournal = nil
	return err
}

// Store returns the manifest store the runner reads and writes.
func (r *Runner) Store() manifest.Store {
	return r.store
}

// Expected builds the manifest the stage would record if it ran now.
func (r *Runner) Expected(ctx context.Context, stage Stage) (manifest.Manifest, error) {
	return manifest.Build(ctx, manifest.BuildRequest{
		Step:          stage.Name,
		SessionID:     stage.SessionID,
		Inputs:        stage.Inputs,
		Config:        stage.Config,
		Extra:         stage.Extra,
		ConfigOptions: r.configOptions,
		Hasher:        r.hasher,
	})
}

// Check reports the reuse decision for stage without running it.
func (r *Runner) Check(ctx context.Context, stage Stage) (manifest.Decision, manifest.Manifest, error) {
	expected, err := r.Expected(ctx, stage)
	if err != nil {
		return manifest.Decision{}, manifest.Manifest{}, err
	}
	decision, err := r.decider.Decide(ctx, stage.OutputDir, expected, stage.RequiredOutputs)
	if err != nil {
		return manifest.Decision{}, expected, err
	}
	return decision, expected, nil
}

// Record verifies the required outputs and persists the expected manifest.
// Callers use it after producing outputs outside Run.
func (r *Runner) Record(ctx context.Context, stage Stage) (manifest.Manifest, error) {
	if strings.TrimSpace(stage.OutputDir) == "" {
		return manifest.Manifest{}, fmt.Errorf("stagerun: output dir is required for %s", stage.Name)
	}
	release, err := r.lock(ctx, stage.OutputDir, logging.WithContext(ctx, r.logger))
	if err != nil {
		return manifest.Manifest{}, err
	}
	defer release()

	expected, err := r.Expected(ctx, stage)
	if err != nil {
		return manifest.Manifest{}, err
	}
	if err := r.commit(ctx, stage, expected); err != nil {
		r.record(ctx, stage, journal.Entry{Event: journal.EventFailed, ConfigHash: expected.ConfigHash, Detail: err.Error()})
		return manifest.Manifest{}, err
	}
	r.record(ctx, stage, journal.Entry{Event: journal.EventRecorded, ConfigHash: expected.ConfigHash})
	return expected, nil
}

// Run executes stage unless its recorded outputs can be reused.
func (r *Runner) Run(ctx context.Context, stage Stage) (Result, error) {
	if strings.TrimSpace(stage.OutputDir) == "" {
		return Result{}, fmt.Errorf("stagerun: output dir is required for %s", stage.Name)
	}
	if stage.Execute == nil {
		return Result{}, fmt.Errorf("stagerun: execute func is required for %s", stage.Name)
	}

	started := time.Now()
	correlationID := uuid.NewString()
	ctx = logging.WithCorrelationID(ctx, correlationID)
	ctx = logging.WithSession(ctx, stage.SessionID)
	ctx = logging.WithStage(ctx, stage.Name)
	logger := logging.WithContext(ctx, r.logger)

	release, err := r.lock(ctx, stage.OutputDir, logger)
	if err != nil {
		return Result{CorrelationID: correlationID}, err
	}
	defer release()

	decision, expected, err := r.Check(ctx, stage)
	if err != nil {
		return Result{CorrelationID: correlationID}, err
	}
	result := Result{Decision: decision, Manifest: expected, CorrelationID: correlationID}
	r.record(ctx, stage, journal.Entry{
		Event:      journal.EventDecision,
		Reason:     string(decision.Reason),
		ConfigHash: expected.ConfigHash,
		Detail:     decisionDetail(decision),
	})
	if decision.Skip {
		result.Skipped = true
		result.Elapsed = time.Since(started)
		logger.Info("stage skipped",
			logging.String(logging.FieldEventType, "stage_skip"),
			logging.String("output_dir", stage.OutputDir),
		)
		return result, nil
	}

	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("output_dir", stage.OutputDir),
		logging.Int("input_count", len(stage.Inputs)),
		logging.String(logging.FieldDecisionReason, string(decision.Reason)),
	)

	if err := stage.Execute(ctx); err != nil {
		logger.Error("stage failed",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.Error(err),
		)
		r.record(ctx, stage, journal.Entry{Event: journal.EventFailed, Elapsed: time.Since(started), Detail: err.Error()})
		return result, fmt.Errorf("stagerun: %s: %w", stage.Name, err)
	}

	if err := r.commit(ctx, stage, expected); err != nil {
		logger.Error("stage failed",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.Error(err),
		)
		r.record(ctx, stage, journal.Entry{Event: journal.EventFailed, Elapsed: time.Since(started), Detail: err.Error()})
		return result, err
	}

	result.Elapsed = time.Since(started)
	r.record(ctx, stage, journal.Entry{Event: journal.EventRecorded, ConfigHash: expected.ConfigHash, Elapsed: result.Elapsed})
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

// lock serializes writers of a local output directory. Object store
// locations are not locked.
func (r *Runner) lock(ctx context.Context, dir string, logger *slog.Logger) (func(), error) {
	if _, local := r.store.(*manifest.FileStore); !local {
		return func() {}, nil
	}
	held, err := stagelock.Acquire(ctx, dir, r.lockTimeout)
	if err != nil {
		return nil, fmt.Errorf("stagerun: lock %s: %w", dir, err)
	}
	return func() {
		if err := held.Release(); err != nil {
			logging.WarnWithContext(ctx, logger, "failed to release stage lock", "stage_lock_release_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "remove the lock file if no other run is active"),
				logging.String(logging.FieldImpact, "the next run may wait for the lock timeout"),
			)
		}
	}, nil
}

func (r *Runner) commit(ctx context.Context, stage Stage, expected manifest.Manifest) error {
	var missing []string
	for _, output := range stage.RequiredOutputs {
		ok, err := r.store.Exists(ctx, output)
		if err != nil {
			return fmt.Errorf("stagerun: verify outputs: %w", err)
		}
		if !ok {
			missing = append(missing, output)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("stagerun: %s: %w: missing %s", stage.Name, ErrIncompleteOutputs, strings.Join(missing, ", "))
	}

	err := r.store.Write(ctx, stage.OutputDir, expected)
	r.metrics.RecordManifestWrite(err)
	if err != nil {
		return fmt.Errorf("stagerun: record manifest: %w", err)
	}
	return nil
}

// record appends e to the journal. History is best effort and never fails a stage.
func (r *Runner) record(ctx context.Context, stage Stage, e journal.Entry) {
	if r.journal == nil {
		return
	}
	e.Step = stage.Name
	e.SessionID = stage.SessionID
	e.OutputDir = stage.OutputDir
	if e.CorrelationID == "" {
		e.CorrelationID = logging.CorrelationID(ctx)
	}
	if _, err := r.journal.Append(ctx, e); err != nil {
		logging.WarnWithContext(ctx, r.logger, "failed to append stage journal", "stage_journal_failed",
			logging.Error(err),
			logging.String("journal_event", string(e.Event)),
			logging.String(logging.FieldImpact, "stage history is incomplete"),
			logging.String(logging.FieldErrorHint, "check journal.path permissions and free space"),
		)
	}
}

func decisionDetail(d manifest.Decision) string {
	switch {
	case len(d.MissingOutputs) > 0:
		return "missing: " + strings.Join(d.MissingOutputs, ", ")
	case len(d.ChangedFields) > 0:
		return "changed: " + strings.Join(d.ChangedFields, ", ")
	default:
		return ""
	}
}
