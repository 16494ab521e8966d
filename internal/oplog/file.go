package oplog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ReadFile loads an operation record from a .yaml, .yml or .json file and
// validates it.
func ReadFile(path string) (*Operation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read operation file: %w", err)
	}
	op, err := Decode(filepath.Ext(path), data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return op, nil
}

// Decode parses an operation record. ext selects the format (".json" or
// ".yaml"/".yml"). Unknown fields are rejected so typos surface early.
func Decode(ext string, data []byte) (*Operation, error) {
	var op Operation
	switch strings.ToLower(ext) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		dec.UseNumber()
		if err := dec.Decode(&op); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&op); err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported operation file extension %q", ext)
	}
	if err := Validate(&op); err != nil {
		return nil, fmt.Errorf("invalid operation: %w", err)
	}
	return &op, nil
}

// Encode writes op as indented JSON, the format the CLI emits.
func Encode(w io.Writer, op *Operation) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(op)
}
