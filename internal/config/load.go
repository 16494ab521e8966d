package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Error codes, shared with the CLI's E0xx range.
const (
	ErrCodeGeneric         = "E001" // Generic/unknown error
	ErrCodeLoadFailed      = "E004" // File could not be parsed
	ErrCodeNotFound        = "E005" // Path not found
	ErrCodeBuildFailed     = "E006" // CUE build failed
	ErrCodeSchema          = "E201" // Schema violation
	ErrCodeInvalidStrategy = "E202" // Strategy construction failed
	ErrCodeDuplicateName   = "E203" // Two strategies share a name
	ErrCodeUnsupported     = "E204" // Unsupported file extension
)

// LoadError represents an error that occurred while loading configuration.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Load reads a configuration file. The format follows the extension:
// .cue and .json are compiled as CUE, .yaml and .yml are decoded with
// yaml.v3 first. The result is unified with the embedded #Config schema,
// which fills in defaults.
func Load(path string) (*Config, error) {
	src, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("config file not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading config: %v", err)}
	}
	cfg, err := Parse(path, src)
	if err != nil {
		return nil, err
	}
	cfg.Source = path
	return cfg, nil
}

// Parse decodes configuration source. filename selects the format and is
// used in error positions.
func Parse(filename string, src []byte) (*Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building schema: %v", err)}
	}

	var data cue.Value
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".cue", ".json":
		data = ctx.CompileBytes(src, cue.Filename(filename))
		if err := data.Err(); err != nil {
			return nil, formatCUEError(err, ErrCodeLoadFailed)
		}
	case ".yaml", ".yml":
		var raw map[string]any
		if err := yaml.Unmarshal(src, &raw); err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("%s: %v", filename, err)}
		}
		if raw == nil {
			raw = map[string]any{}
		}
		data = ctx.Encode(raw)
		if err := data.Err(); err != nil {
			return nil, formatCUEError(err, ErrCodeLoadFailed)
		}
	default:
		return nil, &LoadError{Code: ErrCodeUnsupported, Message: fmt.Sprintf("unsupported config extension %q (want .cue, .json, .yaml or .yml)", ext)}
	}

	value := schema.LookupPath(cue.ParsePath("#Config")).Unify(data)
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err, ErrCodeSchema)
	}

	// Round-trip through JSON so numbers keep their literal form.
	raw, err := value.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(err, ErrCodeSchema)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("decoding config: %v", err)}
	}
	return &cfg, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error, code string) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: code, Message: err.Error()}
	}

	first := errs[0]
	loadErr := &LoadError{Code: code, Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		loadErr.Pos = positions[0]
	}
	return loadErr
}
