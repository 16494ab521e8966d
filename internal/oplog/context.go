package oplog

// CallFrame is one entry of the instrumentation's call-context stack: an
// instrumented function that was executing during the parent operation.
//
// Depth 0 is the outermost frame. A nil End means the frame was still
// executing when the operation finished.
type CallFrame struct {
	Site  CallSite `json:"site" yaml:"site"`
	Depth int      `json:"depth" yaml:"depth"`
	Start float64  `json:"start" yaml:"start"`
	End   *float64 `json:"end,omitempty" yaml:"end,omitempty"`
}

// Active reports whether the frame was executing at time t.
func (f CallFrame) Active(t float64) bool {
	if t < f.Start {
		return false
	}
	return f.End == nil || t <= *f.End
}

// CallContext is the call-context stack captured for a parent operation at
// collection time. It is ordinary input data for actor resolution; nothing
// reads ambient state.
type CallContext struct {
	Frames []CallFrame `json:"frames,omitempty" yaml:"frames,omitempty"`
}

// IsEmpty reports whether no frames were captured.
func (c CallContext) IsEmpty() bool {
	return len(c.Frames) == 0
}

// ActorAt resolves the call-site of the outermost instrumented function that
// was executing at time t, skipping frames located at any of the excluded
// sites (typically the relay call-site itself).
//
// Ties on depth resolve to the frame that started first, then to frame order.
func (c CallContext) ActorAt(t float64, exclude ...CallSite) (CallSite, bool) {
	var (
		best  CallFrame
		found bool
	)
	for _, f := range c.Frames {
		if !f.Active(t) || isExcluded(f.Site, exclude) {
			continue
		}
		if !found || f.Depth < best.Depth || (f.Depth == best.Depth && f.Start < best.Start) {
			best = f
			found = true
		}
	}
	return best.Site, found
}

func isExcluded(site CallSite, exclude []CallSite) bool {
	for _, ex := range exclude {
		if site == ex {
			return true
		}
	}
	return false
}
