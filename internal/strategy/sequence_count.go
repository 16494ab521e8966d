package strategy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/metaop/internal/oplog"
)

// SequenceCountStrategy groups runs of records repeating the same
// (name, status) pair. Once a run reaches min_repeat records, the record
// that crossed the threshold and every later record of the run share one
// cluster; the first min_repeat-1 records stay ungrouped.
//
// Params:
//   - min_repeat (int >= 2, default 3)
//   - name_filter (regexp, optional)
//   - status_filter (string, optional, case-insensitive)
type SequenceCountStrategy struct {
	base
	minRepeat    int
	nameFilter   *regexp.Regexp
	statusFilter string

	state sequenceState
}

type sequenceState struct {
	cursor
	name   string
	status oplog.Status
	length int
}

// NewSequenceCount constructs a SequenceCountStrategy, validating cfg.
func NewSequenceCount(cfg Config) (*SequenceCountStrategy, error) {
	b, err := newBase(cfg, KindSequenceCount)
	if err != nil {
		return nil, err
	}
	r := newParamReader(b.name, cfg.Params)
	r.only("min_repeat", "name_filter", "status_filter")
	minRepeat := r.intAtLeast("min_repeat", 3, 2, false)
	nameFilter := r.pattern("name_filter")
	statusFilter := r.str("status_filter", "", false)
	if r.err != nil {
		return nil, r.err
	}
	return &SequenceCountStrategy{
		base:         b,
		minRepeat:    minRepeat,
		nameFilter:   nameFilter,
		statusFilter: statusFilter,
	}, nil
}

func (s *SequenceCountStrategy) accepts(rec oplog.SubOperation) bool {
	if s.nameFilter != nil && !s.nameFilter.MatchString(rec.Name) {
		return false
	}
	if s.statusFilter != "" && !strings.EqualFold(s.statusFilter, string(rec.Status)) {
		return false
	}
	return true
}

// Detect implements Strategy.
func (s *SequenceCountStrategy) Detect(rec oplog.SubOperation, _ *Pass) (string, bool, error) {
	st := &s.state
	if !s.accepts(rec) {
		st.endRun()
		return "", false, nil
	}

	if st.length > 0 && rec.Name == st.name && rec.Status == st.status {
		st.length++
	} else {
		st.endRun()
		st.name = rec.Name
		st.status = rec.Status
		st.length = 1
	}

	if st.length < s.minRepeat {
		return "", false, nil
	}
	if !st.isOpen {
		st.open(s.name, rec)
	}
	return st.groupID, true, nil
}

func (st *sequenceState) endRun() {
	st.close()
	st.name = ""
	st.status = ""
	st.length = 0
}

// Describe implements Strategy.
func (s *SequenceCountStrategy) Describe(_ string, members []oplog.SubOperation) (string, error) {
	if len(members) == 0 {
		return "empty group", nil
	}
	first := members[0]
	return fmt.Sprintf("%s [%s] repeated, %d grouped after %d leading, %s",
		first.Name, first.Status, len(members), s.minRepeat-1, formatMillis(elapsedMillis(members))), nil
}

// Reset implements Strategy.
func (s *SequenceCountStrategy) Reset() {
	s.state = sequenceState{}
}
