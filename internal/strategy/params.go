package strategy

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
)

// Params holds kind-specific strategy parameters as decoded from a config
// file or built in code. Values are converted and validated by the
// constructor of the strategy that owns them.
type Params map[string]any

// paramReader reads typed values from Params. The first failure is kept in
// err and later reads become no-ops returning their defaults.
type paramReader struct {
	strategy string
	params   Params
	err      error
}

func newParamReader(strategy string, params Params) *paramReader {
	return &paramReader{strategy: strategy, params: params}
}

func (r *paramReader) fail(param, format string, args ...any) {
	if r.err == nil {
		r.err = configErrorf(r.strategy, param, format, args...)
	}
}

func (r *paramReader) lookup(key string) (any, bool) {
	if r.err != nil || r.params == nil {
		return nil, false
	}
	v, ok := r.params[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// only rejects keys not in allowed, catching typos like "window" for
// "window_ms".
func (r *paramReader) only(allowed ...string) {
	keys := make([]string, 0, len(r.params))
	for k := range r.params {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if !slices.Contains(allowed, k) {
			r.fail(k, "unknown parameter (allowed: %s)", strings.Join(allowed, ", "))
			return
		}
	}
}

// positiveMillis reads a strictly positive millisecond value and returns
// it in seconds.
func (r *paramReader) positiveMillis(key string, def float64, required bool) float64 {
	v, ok := r.lookup(key)
	if !ok {
		if required {
			r.fail(key, "required")
		}
		return def / 1000
	}
	f, ok := toFloat(v)
	if !ok {
		r.fail(key, "must be a number, got %T", v)
		return def / 1000
	}
	if f <= 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		r.fail(key, "must be > 0, got %v", f)
		return def / 1000
	}
	return f / 1000
}

func (r *paramReader) intAtLeast(key string, def, min int, required bool) int {
	v, ok := r.lookup(key)
	if !ok {
		if required {
			r.fail(key, "required")
		}
		return def
	}
	n, ok := toInt(v)
	if !ok {
		r.fail(key, "must be an integer, got %v", v)
		return def
	}
	if n < min {
		r.fail(key, "must be >= %d, got %d", min, n)
		return def
	}
	return n
}

func (r *paramReader) boolean(key string, def bool) bool {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		r.fail(key, "must be a bool, got %T", v)
		return def
	}
	return b
}

func (r *paramReader) str(key, def string, required bool) string {
	v, ok := r.lookup(key)
	if !ok {
		if required {
			r.fail(key, "required")
		}
		return def
	}
	s, ok := v.(string)
	if !ok {
		r.fail(key, "must be a string, got %T", v)
		return def
	}
	if required && s == "" {
		r.fail(key, "must not be empty")
	}
	return s
}

func (r *paramReader) stringList(key string) []string {
	v, ok := r.lookup(key)
	if !ok {
		return nil
	}
	switch list := v.(type) {
	case []string:
		return slices.Clone(list)
	case []any:
		out := make([]string, 0, len(list))
		for i, elem := range list {
			s, ok := elem.(string)
			if !ok {
				r.fail(key, "element %d must be a string, got %T", i, elem)
				return nil
			}
			out = append(out, s)
		}
		return out
	default:
		r.fail(key, "must be a list of strings, got %T", v)
		return nil
	}
}

func (r *paramReader) pattern(key string) *regexp.Regexp {
	s := r.str(key, "", false)
	if s == "" || r.err != nil {
		return nil
	}
	re, err := regexp.Compile(s)
	if err != nil {
		r.fail(key, "invalid pattern: %v", err)
		return nil
	}
	return re
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func toInt(v any) (int, bool) {
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// String renders params deterministically for logs.
func (p Params) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, p[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
