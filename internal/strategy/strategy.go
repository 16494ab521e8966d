package strategy

import (
	"fmt"
	"math"
	"strconv"

	"github.com/roach88/metaop/internal/oplog"
)

// Kind identifies a strategy variant.
type Kind string

const (
	KindTimeWindow     Kind = "time_window"
	KindTargetCluster  Kind = "target_cluster"
	KindNameSimilarity Kind = "name_similarity"
	KindSequenceCount  Kind = "sequence_count"
	KindSourceBurst    Kind = "source_burst"
)

// BuiltinKinds lists the built-in kinds in their canonical order.
var BuiltinKinds = []Kind{
	KindTimeWindow,
	KindTargetCluster,
	KindNameSimilarity,
	KindSequenceCount,
	KindSourceBurst,
}

// DefaultMinGroupSize is used when a Config leaves MinGroupSize at zero.
const DefaultMinGroupSize = 2

// DefaultPriority is used by the config loader when a file omits priority.
const DefaultPriority = 100

// Config is the construction-time configuration of one strategy.
type Config struct {
	// Name is the stable identifier; defaults to the kind.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Kind selects the algorithm.
	Kind Kind `json:"kind" yaml:"kind"`

	// Priority orders evaluation; lower is tried first.
	Priority int `json:"priority" yaml:"priority"`

	// Disabled strategies are skipped by the detector without construction.
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`

	// MinGroupSize is the smallest group the detector keeps for this
	// strategy. Zero means DefaultMinGroupSize.
	MinGroupSize int `json:"min_group_size,omitempty" yaml:"min_group_size,omitempty"`

	// Params holds kind-specific parameters.
	Params Params `json:"params,omitempty" yaml:"params,omitempty"`
}

// DisplayName returns the configured name, falling back to the kind.
func (c Config) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return string(c.Kind)
}

// Pass is the read-only input for one detection pass over an operation.
type Pass struct {
	// Siblings is the full sub-operation list of the parent operation,
	// sorted by Seq.
	Siblings []oplog.SubOperation

	// Context is the call-context stack captured for the parent operation.
	Context oplog.CallContext
}

// Strategy is a single-pass clustering algorithm.
//
// Detect is called once per record, in ascending Seq order. It returns the
// group id the record belongs to, or ok=false. Strategies may advance
// internal cursor state on each call.
type Strategy interface {
	Name() string
	Kind() Kind
	Priority() int
	MinGroupSize() int
	Detect(rec oplog.SubOperation, pass *Pass) (groupID string, ok bool, err error)
	Describe(groupID string, members []oplog.SubOperation) (string, error)
	Reset()
}

// GroupFilter is implemented by strategies whose groups need a check
// beyond MinGroupSize once the final member list is known. The Detector
// discards a group when KeepGroup returns false.
type GroupFilter interface {
	KeepGroup(groupID string, members []oplog.SubOperation) bool
}

// base carries the fields every built-in strategy shares.
type base struct {
	name         string
	kind         Kind
	priority     int
	minGroupSize int
}

func newBase(cfg Config, kind Kind) (base, error) {
	name := cfg.DisplayName()
	if cfg.Kind != "" && cfg.Kind != kind {
		return base{}, configErrorf(name, "kind", "expected %s, got %s", kind, cfg.Kind)
	}
	minSize := cfg.MinGroupSize
	if minSize == 0 {
		minSize = DefaultMinGroupSize
	}
	if minSize < 1 {
		return base{}, configErrorf(name, "min_group_size", "must be >= 1, got %d", cfg.MinGroupSize)
	}
	if cfg.Name == "" {
		name = string(kind)
	}
	return base{
		name:         name,
		kind:         kind,
		priority:     cfg.Priority,
		minGroupSize: minSize,
	}, nil
}

func (b *base) Name() string      { return b.name }
func (b *base) Kind() Kind        { return b.kind }
func (b *base) Priority() int     { return b.priority }
func (b *base) MinGroupSize() int { return b.minGroupSize }

// cursor is the owned accumulator for forward-pass strategies: the running
// counter and the currently open cluster.
type cursor struct {
	counter int
	groupID string
	isOpen  bool
}

// open starts a new cluster whose first member is rec.
func (c *cursor) open(strategy string, rec oplog.SubOperation) string {
	c.counter++
	c.groupID = GroupID(strategy, c.counter, rec)
	c.isOpen = true
	return c.groupID
}

func (c *cursor) close() {
	c.groupID = ""
	c.isOpen = false
}

func (c *cursor) reset() {
	*c = cursor{}
}

// GroupID derives a deterministic group id from the strategy name, the
// strategy's running counter, and the first member's start time in whole
// milliseconds ("-" when the member is untimed).
//
// Example: "time_window#2@1530".
func GroupID(strategy string, counter int, first oplog.SubOperation) string {
	ts := "-"
	if start, ok := first.Start(); ok {
		ts = strconv.FormatInt(int64(math.Round(start*1000)), 10)
	}
	return fmt.Sprintf("%s#%d@%s", strategy, counter, ts)
}

// timeEpsilon absorbs float noise when comparing elapsed times to limits.
const timeEpsilon = 1e-9

func exceeds(elapsed, limit float64) bool {
	return elapsed > limit+timeEpsilon
}
