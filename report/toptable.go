// Package report is the sink end of the pipeline: sorted top tables,
// delimited export/import of the differential-expression results, and the
// workshop's plot set (library sizes, MA, volcano, MDS). Nothing here feeds
// back into the pipeline.
package report

import (
	"math"
	"sort"

	"github.com/haswelllab/rnaseqmisc/diffexp"
)

// SortKey selects the ordering for TopTable.
type SortKey int

const (
	// ByPValue sorts ascending by raw p-value; genes without a p-value
	// (filtered or degenerate) sort last, in their original order.
	ByPValue SortKey = iota
	// ByAbsLogFC sorts descending by |logFC|, absent values last.
	ByAbsLogFC
)

// TopTable returns the n highest-ranked rows under the key, preserving the
// input (a copy is sorted, the argument is untouched). n <= 0 means all rows.
// significantOnly drops rows not flagged significant.
func TopTable(results []diffexp.Result, n int, key SortKey, significantOnly bool) []diffexp.Result {
	rows := make([]diffexp.Result, 0, len(results))
	for _, r := range results {
		if significantOnly && !r.Significant {
			continue
		}
		rows = append(rows, r)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		switch key {
		case ByAbsLogFC:
			return rankAbsLogFC(rows[i]) > rankAbsLogFC(rows[j])
		default:
			a, b := rankPValue(rows[i]), rankPValue(rows[j])
			return a < b
		}
	})

	if n > 0 && n < len(rows) {
		rows = rows[:n]
	}

	return rows
}

func rankPValue(r diffexp.Result) float64 {
	if !r.PValue.Valid {
		return math.Inf(1)
	}

	return r.PValue.Float64
}

func rankAbsLogFC(r diffexp.Result) float64 {
	if !r.LogFC.Valid {
		return math.Inf(-1)
	}

	return math.Abs(r.LogFC.Float64)
}
