package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/metaop/internal/testutil"
)

func TestNameSimilarity_PrefixGroups(t *testing.T) {
	s := mustNew(t, Config{Kind: KindNameSimilarity, Params: Params{"prefix_length": 3}})
	op := testutil.NewOperation("io").
		Add("GET_X").
		Add("GET_Y").
		Add("SET_Z").
		Build()

	got := detectAll(t, s, op)
	assert.Equal(t, "name_similarity#1@-", got[1])
	assert.Equal(t, "name_similarity#1@-", got[2])
	assert.Equal(t, "name_similarity#2@-", got[3])
}

func TestNameSimilarity_Prefix(t *testing.T) {
	folded, err := NewNameSimilarity(Config{Kind: KindNameSimilarity})
	require.NoError(t, err)
	sensitive, err := NewNameSimilarity(Config{Kind: KindNameSimilarity, Params: Params{"case_sensitive": true}})
	require.NoError(t, err)
	dotted, err := NewNameSimilarity(Config{Kind: KindNameSimilarity, Params: Params{"delimiter": ".", "prefix_length": 4}})
	require.NoError(t, err)

	tests := []struct {
		name string
		s    *NameSimilarityStrategy
		in   string
		want string
	}{
		{"delimiter", folded, "GET_X", "get"},
		{"case sensitive", sensitive, "GET_X", "GET"},
		{"no delimiter", folded, "readAll", "rea"},
		{"short name", folded, "io", "io"},
		{"leading delimiter", folded, "_hidden", "_hi"},
		{"custom delimiter", dotted, "motor.move", "motor"},
		{"custom length", dotted, "positioner", "posi"},
		{"runes", folded, "Ωmega", "ωme"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.s.Prefix(tt.in))
		})
	}
}

func TestNameSimilarity_PatternClosesCluster(t *testing.T) {
	s := mustNew(t, Config{Kind: KindNameSimilarity, Params: Params{"pattern": "^(GET|SET)_"}})
	op := testutil.NewOperation("io").
		Add("GET_A").
		Add("noise").
		Add("GET_B").
		Add("GET_C").
		Build()

	got := detectAll(t, s, op)
	assert.Equal(t, map[int]string{
		1: "name_similarity#1@-",
		3: "name_similarity#2@-",
		4: "name_similarity#2@-",
	}, got)
}

func TestNameSimilarity_Describe(t *testing.T) {
	s := mustNew(t, Config{Kind: KindNameSimilarity})
	op := testutil.NewOperation("io").
		Add("GET_X", testutil.Span(0, 2)).
		Add("GET_Y", testutil.Span(3, 2)).
		Build()
	got := detectAll(t, s, op)

	desc, err := s.Describe(got[1], membersOf(op, got, got[1]))
	require.NoError(t, err)
	assert.Equal(t, "2 GET* operations, 5.0ms (GET_X x1, GET_Y x1)", desc)
}

func TestNameSimilarity_ConfigErrors(t *testing.T) {
	_, err := NewNameSimilarity(Config{Kind: KindNameSimilarity, Params: Params{"pattern": "("}})
	requireConfigError(t, err, "pattern")

	_, err = NewNameSimilarity(Config{Kind: KindNameSimilarity, Params: Params{"prefix_length": 0}})
	requireConfigError(t, err, "prefix_length")

	_, err = NewNameSimilarity(Config{Kind: KindNameSimilarity, Params: Params{"case_sensitive": "yes"}})
	requireConfigError(t, err, "case_sensitive")
}
