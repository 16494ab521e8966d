package strategy

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/metaop/internal/oplog"
)

// nameCount is one entry of a name histogram.
type nameCount struct {
	name  string
	count int
}

// nameHistogram counts member names, most frequent first, ties by name.
func nameHistogram(members []oplog.SubOperation) []nameCount {
	counts := make(map[string]int)
	for _, m := range members {
		counts[m.Name]++
	}
	hist := make([]nameCount, 0, len(counts))
	for name, n := range counts {
		hist = append(hist, nameCount{name: name, count: n})
	}
	slices.SortFunc(hist, func(a, b nameCount) int {
		if a.count != b.count {
			return b.count - a.count
		}
		return strings.Compare(a.name, b.name)
	})
	return hist
}

// summarizeNames renders the histogram as "get x3, set x2", listing at most
// four names.
func summarizeNames(members []oplog.SubOperation) string {
	const maxNames = 4
	hist := nameHistogram(members)
	parts := make([]string, 0, maxNames+1)
	for i, nc := range hist {
		if i == maxNames {
			parts = append(parts, fmt.Sprintf("+%d more", len(hist)-maxNames))
			break
		}
		parts = append(parts, fmt.Sprintf("%s x%d", nc.name, nc.count))
	}
	return strings.Join(parts, ", ")
}

// elapsedMillis returns the span from the earliest start to the latest end
// among timed members. Untimed member lists report zero.
func elapsedMillis(members []oplog.SubOperation) float64 {
	var (
		first, last float64
		timed       bool
	)
	for _, m := range members {
		start, ok := m.Start()
		if !ok {
			continue
		}
		end, _ := m.End()
		if !timed || start < first {
			first = start
		}
		if !timed || end > last {
			last = end
		}
		timed = true
	}
	if !timed {
		return 0
	}
	return (last - first) * 1000
}

func formatMillis(ms float64) string {
	return fmt.Sprintf("%.1fms", ms)
}
