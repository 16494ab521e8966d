package cli

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/roach88/metaop/internal/detector"
	"github.com/roach88/metaop/internal/oplog"
)

// ReportView is the JSON form of a detector report.
type ReportView struct {
	Records          int            `json:"records"`
	Groups           int            `json:"groups"`
	Discarded        int            `json:"discarded"`
	GroupsByStrategy map[string]int `json:"groups_by_strategy"`
	Errors           []string       `json:"errors,omitempty"`
	DurationMs       float64        `json:"duration_ms"`
}

func newReportView(r *detector.Report) ReportView {
	v := ReportView{
		Records:          r.Records,
		Groups:           r.Groups,
		Discarded:        r.Discarded,
		GroupsByStrategy: r.GroupsByStrategy,
		DurationMs:       float64(r.Duration.Microseconds()) / 1000,
	}
	for _, err := range r.Errors {
		v.Errors = append(v.Errors, err.Error())
	}
	return v
}

// renderOperation prints an operation with its meta groups collapsed.
//
// Records are listed in sequence order. Each group is printed once, at the
// position of its first member, and its members are skipped; with expand
// the members are listed beneath it. Grouping comes only from
// op.MetaGroups.
func renderOperation(w io.Writer, op *oplog.Operation, expand bool) {
	fmt.Fprintf(w, "Operation: %s [%s]\n", op.Name, op.Status)
	if op.ID != "" {
		fmt.Fprintf(w, "ID: %s\n", op.ID)
	}
	fmt.Fprintf(w, "%d records, %d meta groups\n", len(op.SubOperations), len(op.MetaGroups))
	fmt.Fprintln(w)

	records := slices.Clone(op.SubOperations)
	slices.SortFunc(records, func(a, b oplog.SubOperation) int { return a.Seq - b.Seq })

	for _, rec := range records {
		g, grouped := op.GroupOf(rec.Seq)
		if !grouped {
			fmt.Fprintf(w, "  %s\n", formatRecord(rec))
			continue
		}
		if g.Members[0] != rec.Seq {
			continue
		}
		fmt.Fprintf(w, "  ▸ %s\n", g.Description)
		fmt.Fprintf(w, "      %s  %s  ok=%d err=%d\n", g.ID, formatMembers(g.Members), g.SuccessCount, g.ErrorCount)
		if expand {
			for _, seq := range g.Members {
				if m, ok := op.Lookup(seq); ok {
					fmt.Fprintf(w, "      %s\n", formatRecord(m))
				}
			}
		}
	}
}

// formatRecord renders one sub-operation on a single line.
func formatRecord(rec oplog.SubOperation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %s", rec.Seq, rec.Name)
	if rec.Target != "" {
		fmt.Fprintf(&b, " on %s", rec.Target)
	}
	fmt.Fprintf(&b, " %s", rec.Status)
	if d, ok := rec.Duration(); ok {
		fmt.Fprintf(&b, " %.1fms", d*1000)
	}
	if !rec.Origin.IsZero() {
		fmt.Fprintf(&b, " @ %s", rec.Origin)
	}
	return b.String()
}

// formatMembers renders member sequence indices, folding consecutive runs
// ("1-4,7").
func formatMembers(members []int) string {
	var parts []string
	for i := 0; i < len(members); {
		j := i
		for j+1 < len(members) && members[j+1] == members[j]+1 {
			j++
		}
		if j > i {
			parts = append(parts, fmt.Sprintf("%d-%d", members[i], members[j]))
		} else {
			parts = append(parts, fmt.Sprintf("%d", members[i]))
		}
		i = j + 1
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// renderReport prints the detector summary line and any recovered errors.
func renderReport(w io.Writer, r *detector.Report) {
	fmt.Fprintf(w, "\nDetected %d meta groups (%d discarded below minimum size)\n", r.Groups, r.Discarded)
	for _, err := range r.Errors {
		fmt.Fprintf(w, "  ! %v\n", err)
	}
}
