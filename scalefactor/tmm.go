// Package scalefactor computes between-sample scaling factors with the
// trimmed mean of M-values (TMM) method, plus the CPM/logCPM transforms built
// on the resulting effective library sizes. Raw library size alone conflates
// sequencing depth with library composition; TMM corrects the composition
// part by comparing every library against a reference and averaging the log
// ratios of the genes that are not obviously differentially expressed.
package scalefactor

import (
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"github.com/haswelllab/rnaseqmisc/counts"
)

// Factor is one sample's scaling result. Factor is strictly positive and
// relative: the factors across all samples are normalized so their product is
// 1, so only ratios between samples are meaningful. EffectiveLibSize is
// LibSize * Factor, the denominator used by CPM.
type Factor struct {
	Sample           string
	LibSize          float64
	Factor           float64
	EffectiveLibSize float64
}

// Trim fractions for the doubly trimmed mean: the most extreme logMTrim of
// M-values and logATrim of A-values are discarded on each side before
// averaging. These are the published TMM defaults.
const (
	logMTrim = 0.30
	logATrim = 0.05
)

// Compute derives one TMM scaling factor per sample. The reference library is
// the one whose 75th percentile of library-size-scaled counts is closest to
// the mean 75th percentile across libraries. A sample sharing no nonzero
// genes with the reference has an undefined factor and fails the whole call
// rather than defaulting silently.
func Compute(m *counts.Matrix) ([]Factor, error) {
	if m.NGenes() == 0 || m.NSamples() == 0 {
		return nil, fmt.Errorf("cannot compute scaling factors for an empty matrix")
	}

	libSizes := m.LibSizes()
	for j, n := range libSizes {
		if n <= 0 {
			return nil, fmt.Errorf("sample %q has library size %v", m.Samples[j], n)
		}
	}

	refIdx, err := chooseReference(m, libSizes)
	if err != nil {
		return nil, err
	}
	refCol := m.Column(refIdx)

	logFactors := make([]float64, m.NSamples())
	for j := range m.Samples {
		if j == refIdx {
			logFactors[j] = 0
			continue
		}

		lf, err := trimmedLogRatio(m.Column(j), libSizes[j], refCol, libSizes[refIdx])
		if err != nil {
			return nil, fmt.Errorf("sample %q: %v", m.Samples[j], err)
		}
		logFactors[j] = lf
	}

	// Normalize so the factors multiply to 1, keeping them purely relative.
	center := stat.Mean(logFactors, nil)

	out := make([]Factor, m.NSamples())
	for j, s := range m.Samples {
		f := math.Exp2(logFactors[j] - center)
		out[j] = Factor{
			Sample:           s,
			LibSize:          libSizes[j],
			Factor:           f,
			EffectiveLibSize: libSizes[j] * f,
		}
	}

	return out, nil
}

// chooseReference picks the library whose upper quartile of scaled counts is
// closest to the mean upper quartile. Ties break toward the lower column
// index, which keeps the choice deterministic for a fixed input ordering.
func chooseReference(m *counts.Matrix, libSizes []float64) (int, error) {
	q75 := make([]float64, m.NSamples())
	for j := range q75 {
		col := m.Column(j)
		scaled := make([]float64, 0, len(col))
		for _, v := range col {
			if v > 0 {
				scaled = append(scaled, v/libSizes[j])
			}
		}
		switch len(scaled) {
		case 0:
			return 0, fmt.Errorf("sample %q has no nonzero counts", m.Samples[j])
		case 1:
			q75[j] = scaled[0]
		default:
			q, err := stats.Percentile(stats.Float64Data(scaled), 75)
			if err != nil {
				return 0, err
			}
			q75[j] = q
		}
	}

	target := stat.Mean(q75, nil)

	best, bestDist := 0, math.Inf(1)
	for j, q := range q75 {
		if d := math.Abs(q - target); d < bestDist {
			best, bestDist = j, d
		}
	}

	return best, nil
}

type geneStat struct {
	m float64 // log2 fold-change vs reference
	a float64 // average log2 abundance
	w float64 // inverse of the delta-method variance
}

// trimmedLogRatio computes the doubly trimmed, precision-weighted mean of
// per-gene M-values (log2 ratio of scaled counts) for one sample against the
// reference, using only genes nonzero in both libraries.
func trimmedLogRatio(col []float64, libSize float64, refCol []float64, refLibSize float64) (float64, error) {
	genes := make([]geneStat, 0, len(col))
	for g := range col {
		y, r := col[g], refCol[g]
		if y <= 0 || r <= 0 {
			continue
		}

		py, pr := y/libSize, r/refLibSize
		variance := (libSize-y)/(libSize*y) + (refLibSize-r)/(refLibSize*r)
		if variance <= 0 {
			continue
		}

		genes = append(genes, geneStat{
			m: math.Log2(py / pr),
			a: 0.5 * (math.Log2(py) + math.Log2(pr)),
			w: 1 / variance,
		})
	}

	if len(genes) == 0 {
		return 0, fmt.Errorf("no nonzero genes shared with the reference library; scaling factor undefined")
	}

	keep := doubleTrim(genes)
	if len(keep) == 0 {
		// All genes trimmed (tiny gene sets). Fall back to the untrimmed set.
		keep = genes
	}

	var num, den float64
	for _, gs := range keep {
		num += gs.w * gs.m
		den += gs.w
	}

	return num / den, nil
}

// doubleTrim drops genes in the extreme tails of both the M and A
// distributions, returning the survivors.
func doubleTrim(genes []geneStat) []geneStat {
	loM, hiM := quantileBounds(genes, func(gs geneStat) float64 { return gs.m }, logMTrim)
	loA, hiA := quantileBounds(genes, func(gs geneStat) float64 { return gs.a }, logATrim)

	keep := make([]geneStat, 0, len(genes))
	for _, gs := range genes {
		if gs.m < loM || gs.m > hiM || gs.a < loA || gs.a > hiA {
			continue
		}
		keep = append(keep, gs)
	}

	return keep
}

func quantileBounds(genes []geneStat, valueOf func(geneStat) float64, trim float64) (lo, hi float64) {
	values := make([]float64, len(genes))
	for i, gs := range genes {
		values[i] = valueOf(gs)
	}
	sort.Float64s(values)

	lo = stat.Quantile(trim, stat.LinInterp, values, nil)
	hi = stat.Quantile(1-trim, stat.LinInterp, values, nil)

	return lo, hi
}
