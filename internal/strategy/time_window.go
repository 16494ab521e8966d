package strategy

import (
	"fmt"

	"github.com/roach88/metaop/internal/oplog"
)

// TimeWindowStrategy partitions records purely by elapsed time: a new
// cluster opens whenever the gap since the previous timed record exceeds
// the window.
//
// Params:
//   - window_ms (number > 0, required)
type TimeWindowStrategy struct {
	base
	window float64 // seconds

	state timeWindowState
}

type timeWindowState struct {
	cursor
	lastTime float64
}

// NewTimeWindow constructs a TimeWindowStrategy, validating cfg.
func NewTimeWindow(cfg Config) (*TimeWindowStrategy, error) {
	b, err := newBase(cfg, KindTimeWindow)
	if err != nil {
		return nil, err
	}
	r := newParamReader(b.name, cfg.Params)
	r.only("window_ms")
	window := r.positiveMillis("window_ms", 0, true)
	if r.err != nil {
		return nil, r.err
	}
	return &TimeWindowStrategy{base: b, window: window}, nil
}

// Detect implements Strategy. Untimed records never match and leave the
// cursor untouched.
func (s *TimeWindowStrategy) Detect(rec oplog.SubOperation, _ *Pass) (string, bool, error) {
	start, ok := rec.Start()
	if !ok {
		return "", false, nil
	}
	if !s.state.isOpen || exceeds(start-s.state.lastTime, s.window) {
		s.state.open(s.name, rec)
	}
	s.state.lastTime = start
	return s.state.groupID, true, nil
}

// Describe implements Strategy.
func (s *TimeWindowStrategy) Describe(_ string, members []oplog.SubOperation) (string, error) {
	return fmt.Sprintf("%d operations within %s windows, %s elapsed (%s)",
		len(members), formatMillis(s.window*1000), formatMillis(elapsedMillis(members)), summarizeNames(members)), nil
}

// Reset implements Strategy.
func (s *TimeWindowStrategy) Reset() {
	s.state = timeWindowState{}
}
