package table

import (
	"sort"

	"github.com/perfviz/perfviz/pkg/models"
)

// SortCharts orders every chart's legend. Instance charts follow the
// requested mode; per-counter charts are always sorted by name.
func SortCharts(charts []Chart, byName bool) {
	for i := range charts {
		if byName || charts[i].Meta.PerCounter {
			SortColumnsByName(&charts[i].Table)
		} else {
			SortColumnsByRelevance(&charts[i].Table)
		}
	}
}

// SortColumnsByRelevance reorders a table's columns by descending column sum,
// so the busiest instances come first and the chart legend stays readable on
// systems with hundreds of volumes. Gap cells contribute nothing to a sum.
// Columns with equal sums keep their first-seen relative order.
func SortColumnsByRelevance(t *models.FlatTable) {
	sums := make([]float64, len(t.Columns))
	for row := range t.Values {
		for col, v := range t.Values[row] {
			if t.Valid[row][col] {
				sums[col] += v
			}
		}
	}
	perm := make([]int, len(t.Columns))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(i, j int) bool {
		return sums[perm[i]] > sums[perm[j]]
	})
	applyPermutation(t, perm)
}

// SortColumnsByName reorders a table's columns lexicographically.
func SortColumnsByName(t *models.FlatTable) {
	perm := make([]int, len(t.Columns))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(i, j int) bool {
		return t.Columns[perm[i]] < t.Columns[perm[j]]
	})
	applyPermutation(t, perm)
}

func applyPermutation(t *models.FlatTable, perm []int) {
	cols := make([]string, len(perm))
	for i, p := range perm {
		cols[i] = t.Columns[p]
	}
	t.Columns = cols
	for row := range t.Values {
		vals := make([]float64, len(perm))
		valid := make([]bool, len(perm))
		for i, p := range perm {
			vals[i] = t.Values[row][p]
			valid[i] = t.Valid[row][p]
		}
		t.Values[row] = vals
		t.Valid[row] = valid
	}
}
