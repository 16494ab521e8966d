package strategy

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/metaop/internal/oplog"
)

// SourceBurstStrategy collapses storms of atomic records emitted from one
// relay call-site into bursts.
//
// A record is eligible when its origin is the relay call-site, it has no
// children, and its duration is at most max_record_duration_ms. Eligible
// records are sorted by start time and split into bursts whenever the gap
// to the previous candidate's end exceeds max_gap_ms or the burst would
// span more than time_window_ms. Bursts with fewer than min_burst_size
// eligible records are discarded. Any other record starting inside a
// surviving burst's span is absorbed as noise, including eligible records
// left over from a discarded cluster.
//
// A higher-priority strategy may claim some of a burst's eligible records.
// KeepGroup re-counts the eligible records the burst actually received so
// a burst left with noise alone is dropped.
//
// The relay call-site is the same for every record, so the burst is
// labelled with the outermost instrumented frame of the parent operation's
// call context active when the burst began. Without context the relay
// itself is the label.
//
// Params:
//   - relay_file (string, required)
//   - relay_line (int >= 0, required)
//   - max_record_duration_ms (number > 0, default 5)
//   - max_gap_ms (number > 0, default 50)
//   - time_window_ms (number > 0, default 1000)
//   - min_burst_size (int >= 2, default 2)
type SourceBurstStrategy struct {
	base
	relay        oplog.CallSite
	maxDuration  float64 // seconds
	maxGap       float64 // seconds
	window       float64 // seconds
	minBurstSize int

	state burstState
}

// burst is one planned cluster of eligible candidates.
type burst struct {
	id       string
	start    float64
	end      float64
	eligible []int
	planned  map[int]bool
	noise    []int
	actor    oplog.CallSite
	resolved bool
}

type burstState struct {
	planned     bool
	counter     int
	assignments map[int]string
	bursts      map[string]*burst
}

// NewSourceBurst constructs a SourceBurstStrategy, validating cfg.
func NewSourceBurst(cfg Config) (*SourceBurstStrategy, error) {
	b, err := newBase(cfg, KindSourceBurst)
	if err != nil {
		return nil, err
	}
	r := newParamReader(b.name, cfg.Params)
	r.only("relay_file", "relay_line", "max_record_duration_ms", "max_gap_ms", "time_window_ms", "min_burst_size")
	relayFile := r.str("relay_file", "", true)
	relayLine := r.intAtLeast("relay_line", 0, 0, true)
	maxDuration := r.positiveMillis("max_record_duration_ms", 5, false)
	maxGap := r.positiveMillis("max_gap_ms", 50, false)
	window := r.positiveMillis("time_window_ms", 1000, false)
	minBurst := r.intAtLeast("min_burst_size", 2, 2, false)
	if r.err != nil {
		return nil, r.err
	}
	if maxGap > window {
		return nil, configErrorf(b.name, "max_gap_ms", "must not exceed time_window_ms (%v > %v)", maxGap*1000, window*1000)
	}
	return &SourceBurstStrategy{
		base:         b,
		relay:        oplog.CallSite{File: relayFile, Line: relayLine},
		maxDuration:  maxDuration,
		maxGap:       maxGap,
		window:       window,
		minBurstSize: minBurst,
	}, nil
}

// Relay returns the configured relay call-site.
func (s *SourceBurstStrategy) Relay() oplog.CallSite {
	return s.relay
}

// Eligible reports whether rec is an atomic record from the relay
// call-site. Untimed records are never eligible.
func (s *SourceBurstStrategy) Eligible(rec oplog.SubOperation) bool {
	if rec.Origin != s.relay || rec.ChildCount != 0 {
		return false
	}
	d, ok := rec.Duration()
	if !ok {
		return false
	}
	return !exceeds(d, s.maxDuration)
}

// Detect implements Strategy. The first call of a pass plans every burst
// from the sibling list; later calls look the record up.
func (s *SourceBurstStrategy) Detect(rec oplog.SubOperation, pass *Pass) (string, bool, error) {
	if !s.state.planned {
		if pass == nil {
			return "", false, fmt.Errorf("source burst %s: detect called without pass input", s.name)
		}
		s.plan(pass)
	}
	id, ok := s.state.assignments[rec.Seq]
	return id, ok, nil
}

func (s *SourceBurstStrategy) plan(pass *Pass) {
	st := &s.state
	st.planned = true
	st.assignments = make(map[int]string)
	st.bursts = make(map[string]*burst)

	var candidates []oplog.SubOperation
	for _, rec := range pass.Siblings {
		if s.Eligible(rec) {
			candidates = append(candidates, rec)
		}
	}
	slices.SortStableFunc(candidates, func(a, b oplog.SubOperation) int {
		as, _ := a.Start()
		bs, _ := b.Start()
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		}
		return a.Seq - b.Seq
	})

	var (
		kept    []*burst
		current *burst
		first   oplog.SubOperation
		prevEnd float64
	)
	flush := func() {
		if current != nil && len(current.eligible) >= s.minBurstSize {
			st.counter++
			current.id = GroupID(s.name, st.counter, first)
			kept = append(kept, current)
		}
		current = nil
	}
	for _, c := range candidates {
		start, _ := c.Start()
		end, _ := c.End()
		if current != nil && (exceeds(start-prevEnd, s.maxGap) || exceeds(start-current.start, s.window)) {
			flush()
		}
		if current == nil {
			current = &burst{start: start, end: end, planned: make(map[int]bool)}
			first = c
		}
		current.eligible = append(current.eligible, c.Seq)
		current.planned[c.Seq] = true
		if end > current.end {
			current.end = end
		}
		prevEnd = end
	}
	flush()

	for _, b := range kept {
		for _, seq := range b.eligible {
			st.assignments[seq] = b.id
		}
		b.actor, b.resolved = pass.Context.ActorAt(b.start, s.relay)
		if !b.resolved {
			b.actor = s.relay
		}
		st.bursts[b.id] = b
	}

	// Noise: unassigned siblings that start inside a burst's span.
	for _, rec := range pass.Siblings {
		if _, taken := st.assignments[rec.Seq]; taken {
			continue
		}
		start, ok := rec.Start()
		if !ok {
			continue
		}
		for _, b := range kept {
			if start >= b.start-timeEpsilon && start <= b.end+timeEpsilon {
				st.assignments[rec.Seq] = b.id
				b.noise = append(b.noise, rec.Seq)
				break
			}
		}
	}
}

// EligibleCount reports how many planned eligible candidates a burst holds.
// It is the count used for the min_burst_size test; noise is excluded.
func (s *SourceBurstStrategy) EligibleCount(groupID string) int {
	if b, ok := s.state.bursts[groupID]; ok {
		return len(b.eligible)
	}
	return 0
}

// KeepGroup implements GroupFilter. A burst survives only when at least
// min_burst_size of its planned eligible records reached it; noise never
// counts.
func (s *SourceBurstStrategy) KeepGroup(groupID string, members []oplog.SubOperation) bool {
	b, ok := s.state.bursts[groupID]
	if !ok {
		return false
	}
	received := 0
	for _, m := range members {
		if b.planned[m.Seq] {
			received++
		}
	}
	return received >= s.minBurstSize
}

// Actor returns the resolved actor for a burst and whether it came from the
// call context (false means the relay fallback was used).
func (s *SourceBurstStrategy) Actor(groupID string) (oplog.CallSite, bool) {
	if b, ok := s.state.bursts[groupID]; ok {
		return b.actor, b.resolved
	}
	return s.relay, false
}

// Classify labels a burst from the multiset of eligible operation names.
func Classify(names []string) string {
	if len(names) == 0 {
		return "empty burst"
	}
	var updates, gets, sets int
	for _, n := range names {
		lower := strings.ToLower(n)
		switch {
		case strings.Contains(lower, "update"):
			updates++
		case strings.HasPrefix(lower, "get") || strings.HasPrefix(lower, "read"):
			gets++
		case strings.HasPrefix(lower, "set") || strings.HasPrefix(lower, "write") || strings.HasPrefix(lower, "put"):
			sets++
		}
	}
	total := len(names)
	switch {
	case updates*2 > total:
		return "update storm"
	case gets == total:
		return "read burst"
	case sets == total:
		return "write burst"
	case gets > 0 && sets > 0 && (gets+sets)*2 > total:
		return "get/set exchange"
	default:
		return "mixed burst"
	}
}

// Describe implements Strategy.
func (s *SourceBurstStrategy) Describe(groupID string, members []oplog.SubOperation) (string, error) {
	var (
		names []string
		noise int
	)
	b := s.state.bursts[groupID]
	for _, m := range members {
		if b != nil && b.planned[m.Seq] {
			names = append(names, m.Name)
		} else {
			noise++
		}
	}

	actor, resolved := s.Actor(groupID)
	label := actor.String()
	if !resolved {
		label += " (relay)"
	}
	return fmt.Sprintf("%s: %d operations (%d noise) in %s from %s",
		Classify(names), len(members), noise, formatMillis(elapsedMillis(members)), label), nil
}

// Reset implements Strategy.
func (s *SourceBurstStrategy) Reset() {
	s.state = burstState{}
}
