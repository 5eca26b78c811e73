package scalefactor

import (
	"fmt"
	"math"

	"github.com/haswelllab/rnaseqmisc/counts"
)

// CPM returns counts-per-million scaled by each sample's effective library
// size. The result is a new matrix; the input is untouched.
func CPM(m *counts.Matrix, factors []Factor) (*counts.Matrix, error) {
	eff, err := effectiveSizes(m, factors)
	if err != nil {
		return nil, err
	}

	rows := make([][]float64, m.NGenes())
	for i, row := range m.Counts {
		out := make([]float64, len(row))
		for j, v := range row {
			out[j] = v / eff[j] * cpmScale
		}
		rows[i] = out
	}

	return counts.NewMatrix(m.Genes, m.Samples, rows)
}

// LogCPM returns log2 counts-per-million with a half-count prior to keep
// zeros finite, the abundance measure used for ordination and reporting.
func LogCPM(m *counts.Matrix, factors []Factor) (*counts.Matrix, error) {
	eff, err := effectiveSizes(m, factors)
	if err != nil {
		return nil, err
	}

	rows := make([][]float64, m.NGenes())
	for i, row := range m.Counts {
		out := make([]float64, len(row))
		for j, v := range row {
			out[j] = math.Log2((v + 0.5) / (eff[j] + 1) * cpmScale)
		}
		rows[i] = out
	}

	return counts.NewMatrix(m.Genes, m.Samples, rows)
}

const cpmScale = 1e6

func effectiveSizes(m *counts.Matrix, factors []Factor) ([]float64, error) {
	bySample := make(map[string]Factor, len(factors))
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
			return nil, fmt.Errorf("sample %q has nonpositive effective library size %v", s, f.EffectiveLibSize)
		}
		out[j] = f.EffectiveLibSize
	}

	return out, nil
}
