package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/metaop/internal/testutil"
)

func TestTargetCluster_ToleratesGap(t *testing.T) {
	s := mustNew(t, Config{Kind: KindTargetCluster})
	op := testutil.NewOperation("move").
		Add("set", testutil.On("A")).
		Add("set", testutil.On("A")).
		Add("get", testutil.On("B")).
		Add("set", testutil.On("A")).
		Add("get", testutil.On("C")).
		Add("get", testutil.On("C")).
		Build()

	got := detectAll(t, s, op)
	assert.Equal(t, map[int]string{
		1: "target_cluster#1@-",
		2: "target_cluster#1@-",
		3: "target_cluster#1@-",
		4: "target_cluster#1@-",
		5: "target_cluster#1@-",
		6: "target_cluster#2@-",
	}, got)
}

func TestTargetCluster_StrictSequence(t *testing.T) {
	s := mustNew(t, Config{Kind: KindTargetCluster, Params: Params{"strict_sequence": true}})
	op := testutil.NewOperation("move").
		Add("set", testutil.On("A")).
		Add("set", testutil.On("B")).
		Add("set", testutil.On("A")).
		Build()

	got := detectAll(t, s, op)
	assert.Equal(t, "target_cluster#1@-", got[1])
	assert.Equal(t, "target_cluster#2@-", got[2])
	assert.Equal(t, "target_cluster#3@-", got[3])
}

func TestTargetCluster_AllowList(t *testing.T) {
	s := mustNew(t, Config{Kind: KindTargetCluster, Params: Params{"targets": []any{"A"}}})
	op := testutil.NewOperation("move").
		Add("set", testutil.On("A")).
		Add("set", testutil.On("B")).
		Add("set", testutil.On("B")).
		Add("set").
		Build()

	got := detectAll(t, s, op)
	assert.Equal(t, map[int]string{
		1: "target_cluster#1@-",
		2: "target_cluster#1@-",
	}, got)
}

func TestTargetCluster_Describe(t *testing.T) {
	s := mustNew(t, Config{Kind: KindTargetCluster})
	op := testutil.NewOperation("move").
		Add("set", testutil.On("motor"), testutil.Span(0, 1)).
		Add("get", testutil.On("det"), testutil.Span(2, 1)).
		Add("set", testutil.On("motor"), testutil.Span(4, 1)).
		Build()
	got := detectAll(t, s, op)

	desc, err := s.Describe(got[1], membersOf(op, got, got[1]))
	require.NoError(t, err)
	assert.Equal(t, `3 operations on "motor" (1 interleaved), 5.0ms (set x2, get x1)`, desc)
}

func TestTargetCluster_ConfigErrors(t *testing.T) {
	_, err := NewTargetCluster(Config{Kind: KindTargetCluster, Params: Params{"max_gap": -1}})
	requireConfigError(t, err, "max_gap")

	_, err = NewTargetCluster(Config{Kind: KindTargetCluster, Params: Params{"targets": []any{"A", ""}}})
	requireConfigError(t, err, "targets")

	_, err = NewTargetCluster(Config{Kind: KindTargetCluster, Params: Params{"targets": "A"}})
	requireConfigError(t, err, "targets")
}
