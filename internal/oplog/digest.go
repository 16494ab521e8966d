package oplog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
)

// DomainOperation is the domain prefix for operation digests.
// The version suffix allows the digest layout to change later.
const DomainOperation = "metaop/operation/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Digest computes a content digest of an operation's recorded data.
//
// The ID and MetaGroups are excluded: the digest identifies what was
// recorded, not what was derived from it or where it was stored. Times are
// folded to integer microseconds so that round-tripping through storage
// does not change the digest.
func Digest(op *Operation) (string, error) {
	subs := make([]any, len(op.SubOperations))
	for i, rec := range op.SubOperations {
		subs[i] = map[string]any{
			"seq":         rec.Seq,
			"name":        rec.Name,
			"target":      rec.Target,
			"start":       micros(rec.StartTime),
			"end":         micros(rec.EndTime),
			"status":      string(rec.Status),
			"origin":      map[string]any{"file": rec.Origin.File, "line": rec.Origin.Line},
			"child_count": rec.ChildCount,
			"extra":       extraOrEmpty(rec.Extra),
		}
	}

	frames := make([]any, len(op.Context.Frames))
	for i, f := range op.Context.Frames {
		frames[i] = map[string]any{
			"file":  f.Site.File,
			"line":  f.Site.Line,
			"depth": f.Depth,
			"start": micros(&f.Start),
			"end":   micros(f.End),
		}
	}

	obj := map[string]any{
		"name":           op.Name,
		"status":         string(op.Status),
		"start":          micros(op.StartTime),
		"end":            micros(op.EndTime),
		"sub_operations": subs,
		"frames":         frames,
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("Digest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainOperation, canonical), nil
}

// MustDigest is like Digest but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustDigest(op *Operation) string {
	d, err := Digest(op)
	if err != nil {
		panic(err)
	}
	return d
}

func micros(t *float64) any {
	if t == nil {
		return nil
	}
	return int64(math.Round(*t * 1e6))
}

func extraOrEmpty(extra map[string]any) map[string]any {
	if extra == nil {
		return map[string]any{}
	}
	return extra
}
