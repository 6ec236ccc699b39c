package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"audiopipe/internal/confighash"
	"audiopipe/internal/fingerprint"
)

// ErrInvalidRequest is returned when a build request lacks required identity.
var ErrInvalidRequest = errors.New("invalid manifest request")

// BuildRequest carries everything that identifies one stage invocation.
type BuildRequest struct {
	Step      string
	SessionID string
	// Inputs are the concrete input file paths; order does not matter.
	Inputs []string
	// Config is the stage configuration; see confighash.Digest.
	Config any
	// Extra is auxiliary identity that is neither an input file nor a config field.
	Extra map[string]any
	// ConfigOptions customize config canonicalization (e.g. secret fields).
	ConfigOptions []confighash.Option
	// Hasher fingerprints the inputs; the zero value uses the default chunk size.
	Hasher fingerprint.Hasher
}

// Build fingerprints every input, digests the configuration, and returns the
// expected manifest. It performs no caching decision itself.
func Build(ctx context.Context, req BuildRequest) (Manifest, error) {
	step := strings.TrimSpace(req.Step)
	if step == "" {
		return Manifest{}, fmt.Errorf("manifest: %w: step is required", ErrInvalidRequest)
	}

	inputs, err := req.Hasher.Files(ctx, req.Inputs)
	if err != nil {
		return Manifest{}, fmt.Errorf("manifest: fingerprint inputs for %s: %w", step, err)
	}

	digest, err := confighash.Digest(req.Config, req.ConfigOptions...)
	if err != nil {
		return Manifest{}, fmt.Errorf("manifest: digest config for %s: %w", step, err)
	}

	extra, err := plainExtra(req.Extra)
	if err != nil {
		return Manifest{}, fmt.Errorf("manifest: extra for %s: %w", step, err)
	}

	return Manifest{
		Schema:     SchemaVersion,
		Step:       step,
		SessionID:  strings.TrimSpace(req.SessionID),
		ConfigHash: digest,
		Inputs:     inputs,
		Extra:      extra,
	}.normalized(), nil
}

// plainExtra converts extra through JSON so a built manifest holds the same
// value types as one read back from disk.
func plainExtra(extra map[string]any) (map[string]any, error) {
	if len(extra) == 0 {
		return map[string]any{}, nil
	}
	encoded, err := json.Marshal(extra)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(encoded))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
