package strategy

import (
	"fmt"
	"slices"

	"github.com/roach88/metaop/internal/oplog"
)

// TargetClusterStrategy groups consecutive records that share a target,
// tolerating up to max_gap interleaved records with other targets.
//
// Params:
//   - targets ([]string, optional allow-list; empty allows any non-empty target)
//   - max_gap (int >= 0, default 1)
//   - strict_sequence (bool, default false; disallows any gap)
type TargetClusterStrategy struct {
	base
	allow  []string
	maxGap int
	strict bool

	state targetState
}

type targetState struct {
	cursor
	target string
	gaps   int
}

// NewTargetCluster constructs a TargetClusterStrategy, validating cfg.
func NewTargetCluster(cfg Config) (*TargetClusterStrategy, error) {
	b, err := newBase(cfg, KindTargetCluster)
	if err != nil {
		return nil, err
	}
	r := newParamReader(b.name, cfg.Params)
	r.only("targets", "max_gap", "strict_sequence")
	allow := r.stringList("targets")
	maxGap := r.intAtLeast("max_gap", 1, 0, false)
	strict := r.boolean("strict_sequence", false)
	if r.err != nil {
		return nil, r.err
	}
	for i, t := range allow {
		if t == "" {
			return nil, configErrorf(b.name, "targets", "element %d is empty", i)
		}
	}
	return &TargetClusterStrategy{base: b, allow: allow, maxGap: maxGap, strict: strict}, nil
}

func (s *TargetClusterStrategy) allowed(target string) bool {
	if target == "" {
		return false
	}
	return len(s.allow) == 0 || slices.Contains(s.allow, target)
}

// Detect implements Strategy.
func (s *TargetClusterStrategy) Detect(rec oplog.SubOperation, _ *Pass) (string, bool, error) {
	st := &s.state
	if st.isOpen && rec.Target == st.target {
		st.gaps = 0
		return st.groupID, true, nil
	}
	if st.isOpen && !s.strict && st.gaps < s.maxGap {
		st.gaps++
		return st.groupID, true, nil
	}

	st.close()
	st.target = ""
	st.gaps = 0
	if !s.allowed(rec.Target) {
		return "", false, nil
	}
	st.target = rec.Target
	return st.open(s.name, rec), true, nil
}

// Describe implements Strategy. The dominant target names the group.
func (s *TargetClusterStrategy) Describe(_ string, members []oplog.SubOperation) (string, error) {
	counts := make(map[string]int)
	var target string
	for _, m := range members {
		counts[m.Target]++
		if target == "" || counts[m.Target] > counts[target] {
			target = m.Target
		}
	}
	others := len(members) - counts[target]
	if others > 0 {
		return fmt.Sprintf("%d operations on %q (%d interleaved), %s (%s)",
			len(members), target, others, formatMillis(elapsedMillis(members)), summarizeNames(members)), nil
	}
	return fmt.Sprintf("%d operations on %q, %s (%s)",
		len(members), target, formatMillis(elapsedMillis(members)), summarizeNames(members)), nil
}

// Reset implements Strategy.
func (s *TargetClusterStrategy) Reset() {
	s.state = targetState{}
}
