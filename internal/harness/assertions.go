package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/metaop/internal/oplog"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string            // Assertion type for categorization
	Expected string            // Human-readable expected outcome
	Actual   string            // Human-readable actual outcome
	Groups   []oplog.MetaGroup // All detected groups for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nDetected groups:\n")
	if len(e.Groups) == 0 {
		fmt.Fprintf(&buf, "  (none)\n")
	}
	for i, g := range e.Groups {
		fmt.Fprintf(&buf, "  [%d] %s %s %v %q\n", i+1, g.Strategy, g.ID, g.Members, g.Description)
	}

	return buf.String()
}

// filterGroups returns the groups produced by strategy, or all groups when
// strategy is empty.
func filterGroups(groups []oplog.MetaGroup, strategy string) []oplog.MetaGroup {
	if strategy == "" {
		return groups
	}
	var out []oplog.MetaGroup
	for _, g := range groups {
		if g.Strategy == strategy {
			out = append(out, g)
		}
	}
	return out
}

func scope(strategy string) string {
	if strategy == "" {
		return ""
	}
	return fmt.Sprintf(" from %s", strategy)
}

// assertGroupCount checks the number of detected groups.
func assertGroupCount(groups []oplog.MetaGroup, assertion Assertion) error {
	got := len(filterGroups(groups, assertion.Strategy))
	if got != assertion.Count {
		return &AssertionError{
			Type:     AssertGroupCount,
			Expected: fmt.Sprintf("%d groups%s", assertion.Count, scope(assertion.Strategy)),
			Actual:   fmt.Sprintf("%d groups", got),
			Groups:   groups,
		}
	}
	return nil
}

// assertGroupMembers checks that some group has exactly the given members.
// Order in the assertion does not matter.
func assertGroupMembers(groups []oplog.MetaGroup, assertion Assertion) error {
	want := slices.Clone(assertion.Members)
	slices.Sort(want)
	for _, g := range filterGroups(groups, assertion.Strategy) {
		if slices.Equal(g.Members, want) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertGroupMembers,
		Expected: fmt.Sprintf("group%s with members %v", scope(assertion.Strategy), want),
		Actual:   "no such group",
		Groups:   groups,
	}
}

// assertUngrouped checks that none of the given records was claimed.
func assertUngrouped(groups []oplog.MetaGroup, assertion Assertion) error {
	for _, seq := range assertion.Members {
		for _, g := range groups {
			if slices.Contains(g.Members, seq) {
				return &AssertionError{
					Type:     AssertUngrouped,
					Expected: fmt.Sprintf("record %d in no group", seq),
					Actual:   fmt.Sprintf("record %d in group %s", seq, g.ID),
					Groups:   groups,
				}
			}
		}
	}
	return nil
}

// assertDescriptionContains checks the description of the group holding
// assertion.Seq.
func assertDescriptionContains(groups []oplog.MetaGroup, assertion Assertion) error {
	for _, g := range groups {
		if !slices.Contains(g.Members, assertion.Seq) {
			continue
		}
		if strings.Contains(g.Description, assertion.Text) {
			return nil
		}
		return &AssertionError{
			Type:     AssertDescriptionContains,
			Expected: fmt.Sprintf("description containing %q", assertion.Text),
			Actual:   fmt.Sprintf("%q", g.Description),
			Groups:   groups,
		}
	}
	return &AssertionError{
		Type:     AssertDescriptionContains,
		Expected: fmt.Sprintf("a group containing record %d", assertion.Seq),
		Actual:   "record is ungrouped",
		Groups:   groups,
	}
}

// EvaluateAssertions runs every assertion against the detected groups and
// returns the failure messages. An empty slice means all passed.
func EvaluateAssertions(groups []oplog.MetaGroup, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertGroupCount:
			err = assertGroupCount(groups, assertion)
		case AssertGroupMembers:
			err = assertGroupMembers(groups, assertion)
		case AssertUngrouped:
			err = assertUngrouped(groups, assertion)
		case AssertDescriptionContains:
			err = assertDescriptionContains(groups, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
