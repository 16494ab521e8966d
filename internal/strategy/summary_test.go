package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/metaop/internal/oplog"
	"github.com/roach88/metaop/internal/testutil"
)

func TestSummarizeNames(t *testing.T) {
	op := testutil.NewOperation("x").
		Add("set").Add("get").Add("get").Add("set").Add("get").
		Add("a").Add("b").Add("c").
		Build()
	assert.Equal(t, "get x3, set x2, a x1, b x1, +1 more", summarizeNames(op.SubOperations))
}

func TestElapsedMillis(t *testing.T) {
	untimed := testutil.NewOperation("x").Add("a").Add("b").Build()
	assert.Zero(t, elapsedMillis(untimed.SubOperations))

	mixed := testutil.NewOperation("x").
		Add("a", testutil.Span(10, 5)).
		Add("b").
		Add("c", testutil.At(30)).
		Build()
	assert.InDelta(t, 20.0, elapsedMillis(mixed.SubOperations), 1e-9)

	assert.Zero(t, elapsedMillis(nil))
	assert.Zero(t, elapsedMillis([]oplog.SubOperation{}))
}

func TestGroupID(t *testing.T) {
	assert.Equal(t, "tw#3@1530", GroupID("tw", 3, oplog.SubOperation{StartTime: oplog.Seconds(1.5304)}))
	assert.Equal(t, "tw#1@-", GroupID("tw", 1, oplog.SubOperation{}))
}

func TestParamsString(t *testing.T) {
	p := Params{"b": 2, "a": "x"}
	assert.Equal(t, "{a=x, b=2}", p.String())
}
