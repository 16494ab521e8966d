package strategy

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"github.com/roach88/metaop/internal/oplog"
)

// NameSimilarityStrategy groups consecutive records whose names share a
// prefix. The prefix is the text before the first delimiter, or the first
// prefix_length runes when the name has no delimiter.
//
// Params:
//   - pattern (regexp, optional; non-matching names close the open cluster)
//   - prefix_length (int > 0, default 3)
//   - delimiter (string, default "_")
//   - case_sensitive (bool, default false)
type NameSimilarityStrategy struct {
	base
	pattern       *regexp.Regexp
	prefixLength  int
	delimiter     string
	caseSensitive bool
	fold          cases.Caser

	state nameState
}

type nameState struct {
	cursor
	prefix string
}

// NewNameSimilarity constructs a NameSimilarityStrategy, validating cfg.
func NewNameSimilarity(cfg Config) (*NameSimilarityStrategy, error) {
	b, err := newBase(cfg, KindNameSimilarity)
	if err != nil {
		return nil, err
	}
	r := newParamReader(b.name, cfg.Params)
	r.only("pattern", "prefix_length", "delimiter", "case_sensitive")
	pattern := r.pattern("pattern")
	prefixLength := r.intAtLeast("prefix_length", 3, 1, false)
	delimiter := r.str("delimiter", "_", false)
	caseSensitive := r.boolean("case_sensitive", false)
	if r.err != nil {
		return nil, r.err
	}
	return &NameSimilarityStrategy{
		base:          b,
		pattern:       pattern,
		prefixLength:  prefixLength,
		delimiter:     delimiter,
		caseSensitive: caseSensitive,
		fold:          cases.Fold(),
	}, nil
}

// Prefix extracts the grouping prefix of name, case-folded unless the
// strategy is case sensitive.
func (s *NameSimilarityStrategy) Prefix(name string) string {
	if !s.caseSensitive {
		name = s.fold.String(name)
	}
	return s.extract(name)
}

func (s *NameSimilarityStrategy) extract(name string) string {
	if s.delimiter != "" {
		if i := strings.Index(name, s.delimiter); i > 0 {
			return name[:i]
		}
	}
	runes := []rune(name)
	if len(runes) > s.prefixLength {
		runes = runes[:s.prefixLength]
	}
	return string(runes)
}

// Detect implements Strategy.
func (s *NameSimilarityStrategy) Detect(rec oplog.SubOperation, _ *Pass) (string, bool, error) {
	st := &s.state
	if rec.Name == "" || (s.pattern != nil && !s.pattern.MatchString(rec.Name)) {
		st.close()
		st.prefix = ""
		return "", false, nil
	}
	prefix := s.Prefix(rec.Name)
	if st.isOpen && prefix == st.prefix {
		return st.groupID, true, nil
	}
	st.prefix = prefix
	return st.open(s.name, rec), true, nil
}

// Describe implements Strategy.
func (s *NameSimilarityStrategy) Describe(_ string, members []oplog.SubOperation) (string, error) {
	if len(members) == 0 {
		return "empty group", nil
	}
	return fmt.Sprintf("%d %s* operations, %s (%s)",
		len(members), s.extract(members[0].Name), formatMillis(elapsedMillis(members)), summarizeNames(members)), nil
}

// Reset implements Strategy.
func (s *NameSimilarityStrategy) Reset() {
	s.state = nameState{}
}
