package strategy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/metaop/internal/oplog"
)

func TestNew_BuiltinKinds(t *testing.T) {
	params := map[Kind]Params{
		KindTimeWindow:     {"window_ms": 10},
		KindTargetCluster:  nil,
		KindNameSimilarity: nil,
		KindSequenceCount:  nil,
		KindSourceBurst:    {"relay_file": "signal.py", "relay_line": 1},
	}
	for _, kind := range BuiltinKinds {
		t.Run(string(kind), func(t *testing.T) {
			s, err := New(Config{Kind: kind, Priority: 3, Params: params[kind]})
			require.NoError(t, err)
			assert.Equal(t, kind, s.Kind())
			assert.Equal(t, string(kind), s.Name())
			assert.Equal(t, 3, s.Priority())
			assert.Equal(t, DefaultMinGroupSize, s.MinGroupSize())
		})
	}
}

func TestNew_NameAndMinGroupSize(t *testing.T) {
	s, err := New(Config{Name: "fast", Kind: KindTimeWindow, MinGroupSize: 4, Params: Params{"window_ms": 1}})
	require.NoError(t, err)
	assert.Equal(t, "fast", s.Name())
	assert.Equal(t, 4, s.MinGroupSize())
}

func TestNew_Errors(t *testing.T) {
	_, err := New(Config{})
	requireConfigError(t, err, "kind")

	_, err = New(Config{Kind: "bogus"})
	requireConfigError(t, err, "kind")

	_, err = New(Config{Kind: KindSequenceCount, MinGroupSize: -1})
	requireConfigError(t, err, "min_group_size")

	_, err = NewTimeWindow(Config{Kind: KindSequenceCount, Params: Params{"window_ms": 1}})
	requireConfigError(t, err, "kind")

	s, err := New(Config{Kind: KindTimeWindow})
	assert.Nil(t, s)
	assert.True(t, IsConfigError(err))
	assert.Contains(t, err.Error(), "strategy time_window: param window_ms: required")
}

// countStrategy claims every record into one group.
type countStrategy struct {
	name string
}

func (c *countStrategy) Name() string      { return c.name }
func (c *countStrategy) Kind() Kind        { return "count" }
func (c *countStrategy) Priority() int     { return 0 }
func (c *countStrategy) MinGroupSize() int { return 1 }
func (c *countStrategy) Reset()            {}

func (c *countStrategy) Detect(oplog.SubOperation, *Pass) (string, bool, error) {
	return c.name + "#1", true, nil
}

func (c *countStrategy) Describe(string, []oplog.SubOperation) (string, error) {
	return "all", nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []Kind{
		KindNameSimilarity, KindSequenceCount, KindSourceBurst, KindTargetCluster, KindTimeWindow,
	}, r.Kinds())

	require.NoError(t, r.Register("count", func(cfg Config) (Strategy, error) {
		return &countStrategy{name: cfg.DisplayName()}, nil
	}))
	assert.Contains(t, r.Kinds(), Kind("count"))

	s, err := r.New(Config{Kind: "count"})
	require.NoError(t, err)
	assert.Equal(t, "count", s.Name())

	assert.Error(t, r.Register("count", func(Config) (Strategy, error) { return nil, nil }))
	assert.Error(t, r.Register(KindTimeWindow, New))
	assert.Error(t, r.Register("", New))
	assert.Error(t, r.Register("nil", nil))

	_, err = r.New(Config{Kind: "missing"})
	requireConfigError(t, err, "kind")

	require.NoError(t, r.Register("broken", func(Config) (Strategy, error) { return nil, nil }))
	_, err = r.New(Config{Kind: "broken"})
	assert.True(t, IsConfigError(err))

	boom := errors.New("boom")
	require.NoError(t, r.Register("failing", func(Config) (Strategy, error) { return nil, boom }))
	_, err = r.New(Config{Kind: "failing"})
	assert.ErrorIs(t, err, boom)
}
