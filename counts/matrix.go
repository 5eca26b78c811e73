// Package counts holds the gene-by-sample count table and the reshaping,
// joining, and identifier-mapping steps that every downstream stage consumes.
// All transformations return new values; nothing mutates a loaded matrix.
package counts

import (
	"fmt"
)

// Matrix is a gene-by-sample table of read counts. Genes index the rows and
// Samples index the columns of Counts. Treat a Matrix as immutable once
// constructed: downstream stages derive new matrices rather than editing one
// in place.
type Matrix struct {
	Genes   []string
	Samples []string

	// Counts[i][j] is the count for Genes[i] in Samples[j]
	Counts [][]float64
}

// SchemaError indicates that an input table is structurally unusable: a
// missing required column, a ragged row, a duplicated key, or a join key
// mismatch between the counts and the sample sheet. These are user errors and
// abort the run.
type SchemaError struct {
	msg string
}

func (e SchemaError) Error() string {
	return "schema: " + e.msg
}

func schemaErrorf(format string, args ...interface{}) SchemaError {
	return SchemaError{msg: fmt.Sprintf(format, args...)}
}

// NewMatrix validates shape and key uniqueness and returns the assembled
// matrix. The counts slice is retained, not copied.
func NewMatrix(genes, samples []string, matrixCounts [][]float64) (*Matrix, error) {
	if len(genes) != len(matrixCounts) {
		return nil, schemaErrorf("%d gene identifiers but %d count rows", len(genes), len(matrixCounts))
	}

	seenGenes := make(map[string]struct{}, len(genes))
	for _, g := range genes {
		if _, exists := seenGenes[g]; exists {
			return nil, schemaErrorf("duplicate gene identifier %q", g)
		}
		seenGenes[g] = struct{}{}
	}

	seenSamples := make(map[string]struct{}, len(samples))
	for _, s := range samples {
		if _, exists := seenSamples[s]; exists {
			return nil, schemaErrorf("duplicate sample identifier %q", s)
		}
		seenSamples[s] = struct{}{}
	}

	for i, row := range matrixCounts {
		if len(row) != len(samples) {
			return nil, schemaErrorf("gene %q has %d counts but there are %d samples", genes[i], len(row), len(samples))
		}
	}

	return &Matrix{Genes: genes, Samples: samples, Counts: matrixCounts}, nil
}

// NGenes returns the number of gene rows.
func (m *Matrix) NGenes() int {
	return len(m.Genes)
}

// NSamples returns the number of sample columns.
func (m *Matrix) NSamples() int {
	return len(m.Samples)
}

// LibSizes returns the per-sample column sums.
func (m *Matrix) LibSizes() []float64 {
	out := make([]float64, len(m.Samples))
	for _, row := range m.Counts {
		for j, v := range row {
			out[j] += v
		}
	}

	return out
}

// Column returns a copy of one sample's counts across all genes.
func (m *Matrix) Column(j int) []float64 {
	out := make([]float64, len(m.Genes))
	for i, row := range m.Counts {
		out[i] = row[j]
	}

	return out
}

// SubsetGenes returns a new matrix containing only the rows where keep is
// true. The keep slice must align with m.Genes.
func (m *Matrix) SubsetGenes(keep []bool) (*Matrix, error) {
	if len(keep) != len(m.Genes) {
		return nil, fmt.Errorf("keep has %d entries for %d genes", len(keep), len(m.Genes))
	}

	genes := make([]string, 0, len(m.Genes))
	rows := make([][]float64, 0, len(m.Genes))
	for i, ok := range keep {
		if !ok {
			continue
		}
		genes = append(genes, m.Genes[i])
		rows = append(rows, m.Counts[i])
	}

	return &Matrix{Genes: genes, Samples: m.Samples, Counts: rows}, nil
}
