package confighash

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ConfigDigest is the hex SHA-256 of a redacted canonical configuration.
type ConfigDigest string

// Redacted replaces every secret value before serialization.
const Redacted = ""

// ErrNotObject is returned when a configuration does not convert to a JSON object.
var ErrNotObject = errors.New("configuration is not an object")

// DefaultSecretFields are the dotted paths redacted when no option overrides them.
var DefaultSecretFields = []string{"hf_auth_token", "auth.hf_token"}

type options struct {
	secrets []string
}

// Option customizes canonicalization.
type Option func(*options)

// WithSecretFields replaces the redacted dotted paths. An empty call disables redaction.
func WithSecretFields(paths ...string) Option {
	return func(o *options) {
		o.secrets = append([]string(nil), paths...)
	}
}

// Digest returns the digest of cfg after redaction and canonical encoding.
func Digest(cfg any, opts ...Option) (ConfigDigest, error) {
	payload, err := Canonical(cfg, opts...)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return ConfigDigest(hex.EncodeToString(sum[:])), nil
}

// Canonical returns the redacted canonical JSON encoding of cfg.
func Canonical(cfg any, opts ...Option) ([]byte, error) {
	o := options{secrets: DefaultSecretFields}
	for _, opt := range opts {
		opt(&o)
	}

	tree, err := toTree(cfg)
	if err != nil {
		return nil, err
	}
	for _, path := range o.secrets {
		if strings.TrimSpace(path) == "" {
			continue
		}
		redact(tree, path)
	}
	normalizeNumbers(tree)
	return encode(tree)
}

// toTree deep-converts cfg into map/slice/scalar values. Numbers are kept as
// json.Number until normalizeNumbers rewrites them.
func toTree(cfg any) (map[string]any, error) {
	if cfg == nil {
		return map[string]any{}, nil
	}
	var raw []byte
	switch v := cfg.(type) {
	case json.RawMessage:
		raw = v
	default:
		encoded, err := json.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("confighash: encode config: %w", err)
		}
		raw = encoded
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("confighash: decode config: %w", err)
	}
	switch t := tree.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return t, nil
	default:
		return nil, fmt.Errorf("confighash: %w (got %T)", ErrNotObject, tree)
	}
}

// redact walks path, creating any missing objects, and writes Redacted to the
// leaf. The materialized section stays attached to tree. A path that runs
// through a non-object value cannot hold the secret and is left alone.
func redact(tree map[string]any, path string) {
	segments := strings.Split(path, ".")
	node := tree
	for _, segment := range segments[:len(segments)-1] {
		next, ok := node[segment]
		if !ok || next == nil {
			child := map[string]any{}
			node[segment] = child
			node = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return
		}
		node = child
	}
	node[segments[len(segments)-1]] = Redacted
}

// normalizeNumbers rewrites fractional and exponent literals in place to the
// form encoding/json gives a float64, so 1.0, 1e0 and 1 hash alike. Integer
// literals keep every digit.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for key, child := range t {
			t[key] = normalizeNumbers(child)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = normalizeNumbers(child)
		}
		return t
	case json.Number:
		literal := t.String()
		if !strings.ContainsAny(literal, ".eE") {
			if literal == "-0" {
				return json.Number("0")
			}
			return t
		}
		f, err := strconv.ParseFloat(literal, 64)
		if err != nil {
			return t
		}
		if f == 0 {
			f = 0
		}
		encoded, err := json.Marshal(f)
		if err != nil {
			return t
		}
		return json.Number(encoded)
	default:
		return v
	}
}

// encode marshals with sorted map keys and without HTML escaping.
func encode(tree map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(tree); err != nil {
		return nil, fmt.Errorf("confighash: canonical encode: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
