package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"audiopipe/internal/confighash"
	"audiopipe/internal/fingerprint"
)

// SchemaVersion tags the manifest document layout. Documents carrying any
// other value are treated as absent.
const SchemaVersion = 1

// ErrInvalidManifest marks manifest documents that are malformed or carry an
// unknown schema version.
var ErrInvalidManifest = errors.New("invalid manifest")

// Manifest is the recorded identity of one stage's outputs. Field order here
// is the serialized field order.
type Manifest struct {
	Schema     int                           `json:"schema"`
	Step       string                        `json:"step"`
	SessionID  string                        `json:"session_id"`
	ConfigHash confighash.ConfigDigest       `json:"config_hash"`
	Inputs     []fingerprint.FileFingerprint `json:"inputs"`
	Extra      map[string]any                `json:"extra"`
}

// Equal reports whether two manifests describe the same stage identity. Inputs
// are compared by name and content hash in order; Extra by its canonical JSON.
func (m Manifest) Equal(other Manifest) bool {
	return len(m.Diff(other)) == 0
}

// Diff returns the JSON names of the fields that differ between m and other.
func (m Manifest) Diff(other Manifest) []string {
	var fields []string
	if m.Schema != other.Schema {
		fields = append(fields, "schema")
	}
	if m.Step != other.Step {
		fields = append(fields, "step")
	}
	if m.SessionID != other.SessionID {
		fields = append(fields, "session_id")
	}
	if m.ConfigHash != other.ConfigHash {
		fields = append(fields, "config_hash")
	}
	if !sameInputs(m.Inputs, other.Inputs) {
		fields = append(fields, "inputs")
	}
	if !sameExtra(m.Extra, other.Extra) {
		fields = append(fields, "extra")
	}
	return fields
}

func sameInputs(a, b []fingerprint.FileFingerprint) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].ContentHash != b[i].ContentHash {
			return false
		}
	}
	return true
}

func sameExtra(a, b map[string]any) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	ea, errA := json.Marshal(a)
	eb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ea, eb)
}

// Marshal encodes m as indented JSON with a trailing newline.
func Marshal(m Manifest) ([]byte, error) {
	m = m.normalized()
	payload, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("manifest: encode: %w", err)
	}
	return append(payload, '\n'), nil
}

// Unmarshal decodes a manifest document. Malformed JSON and foreign schema
// versions return an error wrapping ErrInvalidManifest.
func Unmarshal(payload []byte) (Manifest, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("manifest: decode: %w: %w", ErrInvalidManifest, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Manifest{}, fmt.Errorf("manifest: decode: %w: trailing data", ErrInvalidManifest)
	}
	if m.Schema != SchemaVersion {
		return Manifest{}, fmt.Errorf("manifest: %w: unsupported schema %d", ErrInvalidManifest, m.Schema)
	}
	return m.normalized(), nil
}

// normalized replaces nil collections with empty ones so built and loaded
// manifests serialize identically.
func (m Manifest) normalized() Manifest {
	if m.Inputs == nil {
		m.Inputs = []fingerprint.FileFingerprint{}
	}
	if m.Extra == nil {
		m.Extra = map[string]any{}
	}
	return m
}
