// Package abundance flags lowly expressed genes ahead of scaling and testing.
// A gene is kept when its library-size-normalized count clears a minimum in
// at least as many samples as the smallest covariate group, so a gene
// expressed in only one condition is never filtered away by the other.
package abundance

import (
	"fmt"
	"math"
	"sort"

	gonumstat "github.com/gonum/stat"

	"github.com/haswelllab/rnaseqmisc/counts"
)

// ConfigurationError indicates an unusable grouping covariate: no samples, or
// a sample missing its group label. Unrecoverable; reported to the caller.
type ConfigurationError struct {
	msg string
}

func (e ConfigurationError) Error() string {
	return "configuration: " + e.msg
}

const cpmScale = 1e6

// Flags marks each gene as abundant (true) or lowly expressed (false). The
// minCount threshold is in raw reads at the median library size; it is
// converted to a counts-per-million cutoff so samples with deeper sequencing
// don't pass genes on depth alone. A gene passes when its CPM clears the
// cutoff in at least k samples, where k is the size of the smallest group
// defined by the covariate; a single-level covariate degrades k to the total
// sample count.
func Flags(m *counts.Matrix, groups map[string]string, minCount float64) ([]bool, error) {
	k, err := minGroupSize(m.Samples, groups)
	if err != nil {
		return nil, err
	}

	libSizes := m.LibSizes()
	for j, n := range libSizes {
		if n <= 0 {
			return nil, fmt.Errorf("sample %q has library size %v; cannot normalize", m.Samples[j], n)
		}
	}

	cutoff := minCount / medianOf(libSizes) * cpmScale

	out := make([]bool, len(m.Genes))
	for i, row := range m.Counts {
		passing := 0
		for j, v := range row {
			if v/libSizes[j]*cpmScale >= cutoff {
				passing++
			}
		}
		out[i] = passing >= k
	}

	return out, nil
}

// Keep applies the flags, returning the matrix restricted to abundant genes.
func Keep(m *counts.Matrix, flags []bool) (*counts.Matrix, error) {
	return m.SubsetGenes(flags)
}

// LibSizeSummary returns the mean and standard deviation of the library
// sizes, for progress reporting by callers.
func LibSizeSummary(m *counts.Matrix) (mean, sd float64) {
	return gonumstat.MeanStdDev(m.LibSizes(), nil)
}

func minGroupSize(samples []string, groups map[string]string) (int, error) {
	if len(samples) == 0 {
		return 0, ConfigurationError{msg: "no samples to group"}
	}

	sizes := make(map[string]int)
	for _, s := range samples {
		level, exists := groups[s]
		if !exists {
			return 0, ConfigurationError{msg: fmt.Sprintf("sample %q has no group level", s)}
		}
		sizes[level]++
	}

	if len(sizes) == 0 {
		return 0, ConfigurationError{msg: "grouping covariate defines no groups"}
	}

	// A single-level covariate means every sample must pass the cutoff.
	if len(sizes) == 1 {
		return len(samples), nil
	}

	k := math.MaxInt32
	for _, n := range sizes {
		if n < k {
			k = n
		}
	}

	return k, nil
}

func medianOf(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}

	return (sorted[n/2-1] + sorted[n/2]) / 2
}
