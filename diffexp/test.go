package diffexp

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
	"gopkg.in/guregu/null.v3"

	"github.com/haswelllab/rnaseqmisc/counts"
	"github.com/haswelllab/rnaseqmisc/scalefactor"
)

// Result is one gene's row of the differential-expression table. Genes the
// abundance filter excluded keep their row but carry absent (not zero)
// effect and significance fields. Degenerate marks genes whose fit failed
// (all-zero counts, non-convergence); their significance fields are absent
// too and the rest of the table is unaffected.
type Result struct {
	Gene        string     `csv:"gene"`
	Tested      bool       `csv:"tested"`
	LogFC       null.Float `csv:"logFC"`
	LogCPM      null.Float `csv:"logCPM"`
	PValue      null.Float `csv:"pvalue"`
	FDR         null.Float `csv:"fdr"`
	Significant bool       `csv:"significant"`
	Degenerate  bool       `csv:"degenerate"`
}

// Test fits the NB GLM for every gene passing the abundance filter and tests
// the design's contrast coefficient. Offsets are log effective library sizes
// from the scaling factors, so composition bias stays corrected inside the
// model. FDR adjustment (Benjamini-Hochberg) runs across tested,
// non-degenerate genes only; a gene is Significant when its FDR falls below
// fdrThreshold. Row order follows m.Genes.
func Test(m *counts.Matrix, factors []scalefactor.Factor, design *Design, keep []bool, fdrThreshold float64) ([]Result, error) {
	if len(keep) != m.NGenes() {
		return nil, fmt.Errorf("keep has %d flags for %d genes", len(keep), m.NGenes())
	}
	nRows, p := design.X.Dims()
	if nRows != m.NSamples() {
		return nil, configErrorf("design has %d rows for %d samples", nRows, m.NSamples())
	}
	if fdrThreshold <= 0 || fdrThreshold >= 1 {
		return nil, configErrorf("fdr threshold %v outside (0, 1)", fdrThreshold)
	}

	offsets, err := logEffectiveSizes(m, factors)
	if err != nil {
		return nil, err
	}

	logCPM, err := scalefactor.LogCPM(m, factors)
	if err != nil {
		return nil, err
	}

	residualDF := float64(nRows - p)

	// First pass: Poisson fits to anchor the dispersion estimates.
	type geneFit struct {
		idx     int
		y       []float64
		poisson glmFit
		phiHat  float64
	}

	fits := make([]geneFit, 0, m.NGenes())
	degenerate := make(map[int]bool)

	for i := range m.Genes {
		if !keep[i] {
			continue
		}

		y := m.Counts[i]
		if allZero(y) {
			degenerate[i] = true
			continue
		}

		fit, err := fitNB(y, design.X, offsets, 0)
		if err != nil {
			degenerate[i] = true
			continue
		}

		mu := fittedMeans(fit, design.X, offsets)
		fits = append(fits, geneFit{
			idx:     i,
			y:       y,
			poisson: fit,
			phiHat:  momentDispersion(y, mu, residualDF),
		})
	}

	perGene := make([]float64, len(fits))
	for i, f := range fits {
		perGene[i] = f.phiHat
	}
	common := commonDispersion(perGene)

	// Second pass: NB fits at the shrunk per-gene dispersion, Wald test on
	// the contrast column.
	results := make([]Result, m.NGenes())
	for i, g := range m.Genes {
		results[i] = Result{Gene: g, Tested: keep[i] && !degenerate[i], Degenerate: degenerate[i]}
	}

	type tested struct {
		idx    int
		pValue float64
	}
	var testedGenes []tested

	c := design.ContrastCol
	for _, f := range fits {
		phi := shrinkDispersion(f.phiHat, common, residualDF)

		fit, err := fitNB(f.y, design.X, offsets, phi)
		if err != nil || !fit.converged {
			results[f.idx].Tested = false
			results[f.idx].Degenerate = true
			continue
		}

		se := math.Sqrt(fit.cov.At(c, c))
		if !(se > 0) || math.IsInf(se, 0) {
			results[f.idx].Tested = false
			results[f.idx].Degenerate = true
			continue
		}

		wald := fit.beta[c] / se
		pValue := 2 * distuv.UnitNormal.Survival(math.Abs(wald))
		if pValue > 1 {
			pValue = 1
		}

		results[f.idx].LogFC = null.FloatFrom(fit.beta[c] / math.Ln2)
		results[f.idx].LogCPM = null.FloatFrom(stat.Mean(logCPM.Counts[f.idx], nil))
		results[f.idx].PValue = null.FloatFrom(pValue)

		testedGenes = append(testedGenes, tested{idx: f.idx, pValue: pValue})
	}

	// Benjamini-Hochberg across the tested genes.
	pValues := make([]float64, len(testedGenes))
	for i, t := range testedGenes {
		pValues[i] = t.pValue
	}
	adjusted := adjustBH(pValues)
	for i, t := range testedGenes {
		results[t.idx].FDR = null.FloatFrom(adjusted[i])
		results[t.idx].Significant = adjusted[i] < fdrThreshold
	}

	return results, nil
}

// adjustBH returns Benjamini-Hochberg adjusted p-values aligned with the
// input order. The adjustment is a running minimum over the rank-scaled
// p-values, so it never reorders genes relative to their raw p-values.
func adjustBH(pValues []float64) []float64 {
	n := len(pValues)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return pValues[order[a]] < pValues[order[b]] })

	adjusted := make([]float64, n)
	running := math.Inf(1)
	for rank := n - 1; rank >= 0; rank-- {
		i := order[rank]
		scaled := pValues[i] * float64(n) / float64(rank+1)
		if scaled < running {
			running = scaled
		}
		if running > 1 {
			adjusted[i] = 1
		} else {
			adjusted[i] = running
		}
	}

	return adjusted
}

func allZero(y []float64) bool {
	for _, v := range y {
		if v != 0 {
			return false
		}
	}

	return true
}

func logEffectiveSizes(m *counts.Matrix, factors []scalefactor.Factor) ([]float64, error) {
	bySample := make(map[string]scalefactor.Factor, len(factors))
	for _, f := range factors {
		bySample[f.Sample] = f
	}

	out := make([]float64, m.NSamples())
	for j, s := range m.Samples {
		f, exists := bySample[s]
		if !exists {
			return nil, fmt.Errorf("no scaling factor for sample %q", s)
		}
		if f.EffectiveLibSize <= 0 {
			return nil, fmt.Errorf("sample %q has nonpositive effective library size", s)
		}
		out[j] = math.Log(f.EffectiveLibSize)
	}

	return out, nil
}
