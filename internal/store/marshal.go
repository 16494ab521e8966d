package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/metaop/internal/oplog"
)

// marshalExtra converts a record's extra parameters to canonical JSON TEXT.
func marshalExtra(extra map[string]any) (string, error) {
	if extra == nil {
		return "{}", nil
	}
	data, err := oplog.MarshalCanonical(extra)
	if err != nil {
		return "", fmt.Errorf("marshal extra: %w", err)
	}
	return string(data), nil
}

// unmarshalExtra parses canonical JSON TEXT back into extra parameters.
// Numbers decode as json.Number to avoid float64 precision loss.
// Empty objects decode as nil so a round trip preserves "no extras".
func unmarshalExtra(data string) (map[string]any, error) {
	if data == "" || data == "{}" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	var extra map[string]any
	if err := dec.Decode(&extra); err != nil {
		return nil, fmt.Errorf("unmarshal extra: %w", err)
	}
	return extra, nil
}

// marshalContext converts call-context frames to canonical JSON TEXT.
func marshalContext(c oplog.CallContext) (string, error) {
	frames := make([]any, len(c.Frames))
	for i, f := range c.Frames {
		frame := map[string]any{
			"file":  f.Site.File,
			"line":  f.Site.Line,
			"depth": f.Depth,
			"start": f.Start,
		}
		if f.End != nil {
			frame["end"] = *f.End
		}
		frames[i] = frame
	}
	data, err := oplog.MarshalCanonical(frames)
	if err != nil {
		return "", fmt.Errorf("marshal context: %w", err)
	}
	return string(data), nil
}

type storedFrame struct {
	File  string   `json:"file"`
	Line  int      `json:"line"`
	Depth int      `json:"depth"`
	Start float64  `json:"start"`
	End   *float64 `json:"end"`
}

// unmarshalContext parses canonical JSON TEXT back into a call context.
func unmarshalContext(data string) (oplog.CallContext, error) {
	if data == "" || data == "[]" {
		return oplog.CallContext{}, nil
	}
	var frames []storedFrame
	if err := json.Unmarshal([]byte(data), &frames); err != nil {
		return oplog.CallContext{}, fmt.Errorf("unmarshal context: %w", err)
	}
	c := oplog.CallContext{Frames: make([]oplog.CallFrame, len(frames))}
	for i, f := range frames {
		c.Frames[i] = oplog.CallFrame{
			Site:  oplog.CallSite{File: f.File, Line: f.Line},
			Depth: f.Depth,
			Start: f.Start,
			End:   f.End,
		}
	}
	return c, nil
}

// nullFloat converts an optional time to a nullable column value.
func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

// floatPtr converts a nullable column value back to an optional time.
func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
