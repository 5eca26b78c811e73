// Package mds projects samples into a low-dimensional ordination space with
// classical (Torgerson) multidimensional scaling over pairwise log-expression
// distances. The distance between two samples is the root-mean-square log2
// fold-change across the most variable genes, so samples with similar
// expression profiles land near each other.
package mds

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/haswelllab/rnaseqmisc/counts"
)

// DefaultTopGenes is how many of the most variable genes enter the distance
// computation when the caller does not say otherwise.
const DefaultTopGenes = 500

// Projection is the ordination result: one point per sample, axes ordered by
// decreasing eigenvalue. Explained[k] is the fraction of the total positive
// eigenvalue mass captured by axis k.
type Projection struct {
	Samples   []string
	Points    [][]float64 // Points[j][k] is sample j's coordinate on axis k
	Explained []float64
}

// Reduce runs classical MDS on a logCPM matrix. Distances use the topGenes
// most variable genes (ranked by cross-sample variance; topGenes <= 0 means
// DefaultTopGenes, capped at the gene count). The projection is deterministic
// given a fixed input ordering: eigenvector sign, which the decomposition
// leaves arbitrary, is fixed so the first nonzero loading of each axis is
// positive.
func Reduce(logCPM *counts.Matrix, dims, topGenes int) (*Projection, error) {
	n := logCPM.NSamples()
	if n < 3 {
		return nil, fmt.Errorf("need at least 3 samples for an ordination; have %d", n)
	}
	if dims < 1 || dims >= n {
		return nil, fmt.Errorf("dims must be in [1, %d); have %d", n, dims)
	}

	if topGenes <= 0 {
		topGenes = DefaultTopGenes
	}
	if g := logCPM.NGenes(); topGenes > g {
		topGenes = g
	}

	rows := topVariableRows(logCPM, topGenes)

	// Squared pairwise distances: mean squared per-gene log2 fold-change.
	d2 := mat.NewSymDense(n, nil)
	for a := 0; a < n; a++ {
		for b := a + 1; b < n; b++ {
			var ss float64
			for _, row := range rows {
				diff := row[a] - row[b]
				ss += diff * diff
			}
			d2.SetSym(a, b, ss/float64(len(rows)))
		}
	}

	// Torgerson double centering: B = -1/2 J D2 J.
	b := doubleCenter(d2)

	var eig mat.EigenSym
	if !eig.Factorize(b, true) {
		return nil, fmt.Errorf("eigendecomposition of the centered distance matrix failed")
	}

	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	// Axes ordered by decreasing eigenvalue; only positive eigenvalues carry
	// geometric meaning in classical MDS.
	order := make([]int, len(values))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return values[order[i]] > values[order[j]] })

	var positiveMass float64
	for _, v := range values {
		if v > 0 {
			positiveMass += v
		}
	}
	if positiveMass <= 0 {
		return nil, fmt.Errorf("all samples are equidistant at zero; no ordination axes")
	}

	points := make([][]float64, n)
	for j := range points {
		points[j] = make([]float64, dims)
	}
	explained := make([]float64, dims)

	for k := 0; k < dims; k++ {
		idx := order[k]
		lambda := values[idx]
		if lambda <= 0 {
			return nil, fmt.Errorf("axis %d has nonpositive eigenvalue %v; request fewer dimensions", k+1, lambda)
		}

		axis := make([]float64, n)
		for j := 0; j < n; j++ {
			axis[j] = vectors.At(j, idx) * math.Sqrt(lambda)
		}
		fixSign(axis)

		for j := 0; j < n; j++ {
			points[j][k] = axis[j]
		}
		explained[k] = lambda / positiveMass
	}

	return &Projection{
		Samples:   append([]string(nil), logCPM.Samples...),
		Points:    points,
		Explained: explained,
	}, nil
}

// topVariableRows returns the logCPM rows of the topGenes genes with the
// largest cross-sample variance. Ties rank by original row order.
func topVariableRows(logCPM *counts.Matrix, topGenes int) [][]float64 {
	type ranked struct {
		idx      int
		variance float64
	}

	byVariance := make([]ranked, logCPM.NGenes())
	for i, row := range logCPM.Counts {
		byVariance[i] = ranked{idx: i, variance: stat.Variance(row, nil)}
	}
	sort.SliceStable(byVariance, func(i, j int) bool { return byVariance[i].variance > byVariance[j].variance })

	byVariance = byVariance[:topGenes]
	sort.Slice(byVariance, func(i, j int) bool { return byVariance[i].idx < byVariance[j].idx })

	rows := make([][]float64, len(byVariance))
	for i, r := range byVariance {
		rows[i] = logCPM.Counts[r.idx]
	}

	return rows
}

func doubleCenter(d2 *mat.SymDense) *mat.SymDense {
	n := d2.Symmetric()

	rowMeans := make([]float64, n)
	var grandMean float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			rowMeans[i] += d2.At(i, j)
		}
		rowMeans[i] /= float64(n)
		grandMean += rowMeans[i]
	}
	grandMean /= float64(n)

	b := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			b.SetSym(i, j, -0.5*(d2.At(i, j)-rowMeans[i]-rowMeans[j]+grandMean))
		}
	}

	return b
}

func fixSign(axis []float64) {
	for _, v := range axis {
		if v == 0 {
			continue
		}
		if v < 0 {
			for j := range axis {
				axis[j] = -axis[j]
			}
		}
		return
	}
}
