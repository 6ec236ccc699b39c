// Package stageconfig reads stage configuration files into the plain
// map form hashed by confighash.
//
// TOML, YAML and JSON are accepted and selected by file extension. A pipeline
// file may hold one table per stage; Section extracts a single stage's table.
package stageconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format names a supported configuration syntax.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

var (
	// ErrUnsupportedFormat reports a file extension with no known decoder.
	ErrUnsupportedFormat = errors.New("unsupported stage config format")
	// ErrNoSection reports a missing or non-table stage section.
	ErrNoSection = errors.New("stage config section not found")
)

// DetectFormat picks a format from the file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Load reads and decodes the stage configuration at path.
func Load(path string) (map[string]any, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stage config: %w", err)
	}
	defer file.Close()

	tree, err := Decode(file, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tree, nil
}

// Decode parses r as format. An empty document yields an empty map.
func Decode(r io.Reader, format Format) (map[string]any, error) {
	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read stage config: %w", err)
	}
	tree := map[string]any{}
	if len(bytes.TrimSpace(payload)) == 0 {
		return tree, nil
	}

	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(payload, &tree); err != nil {
			return nil, fmt.Errorf("parse toml: %w", err)
		}
	case FormatYAML:
		var doc any
		if err := yaml.Unmarshal(payload, &doc); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		normalized, ok := normalizeYAML(doc).(map[string]any)
		if !ok {
			return nil, fmt.Errorf("parse yaml: top level must be a mapping")
		}
		tree = normalized
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(payload))
		dec.UseNumber()
		if err := dec.Decode(&tree); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
		if _, err := dec.Token(); err != io.EOF {
			return nil, fmt.Errorf("parse json: trailing data after object")
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if tree == nil {
		tree = map[string]any{}
	}
	return tree, nil
}

// Section returns the table stored under name. Dotted names descend into
// nested tables.
func Section(tree map[string]any, name string) (map[string]any, error) {
	current := tree
	for _, part := range strings.Split(name, ".") {
		next, ok := current[part].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrNoSection, name)
		}
		current = next
	}
	return current, nil
}

// normalizeYAML rewrites map[any]any nodes, which yaml.v3 produces for
// non-string keys, into JSON-encodable maps.
func normalizeYAML(node any) any {
	switch v := node.(type) {
	case map[string]any:
		for key, value := range v {
			v[key] = normalizeYAML(value)
		}
		return v
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, value := range v {
			out[fmt.Sprint(key)] = normalizeYAML(value)
		}
		return out
	case []any:
		for i, value := range v {
			v[i] = normalizeYAML(value)
		}
		return v
	default:
		return v
	}
}
