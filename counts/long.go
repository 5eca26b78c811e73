package counts

// LongRecord is one (sample, gene, count) triple from the un-pivoted count
// matrix. The long form is the canonical intermediate: exactly one record per
// (sample, gene) pair.
type LongRecord struct {
	Sample string
	Gene   string
	Count  float64
}

// Long un-pivots the matrix into gene-major (sample, gene, count) triples.
func (m *Matrix) Long() []LongRecord {
	out := make([]LongRecord, 0, len(m.Genes)*len(m.Samples))
	for i, g := range m.Genes {
		for j, s := range m.Samples {
			out = append(out, LongRecord{Sample: s, Gene: g, Count: m.Counts[i][j]})
		}
	}

	return out
}

// FromLong re-pivots long records into a wide matrix. Gene and sample order
// follow first appearance, so Long followed by FromLong reproduces the
// original matrix exactly. Duplicate (sample, gene) pairs and missing cells
// are SchemaErrors.
func FromLong(records []LongRecord) (*Matrix, error) {
	var genes, samples []string
	geneIdx := make(map[string]int)
	sampleIdx := make(map[string]int)

	for _, rec := range records {
		if _, exists := geneIdx[rec.Gene]; !exists {
			geneIdx[rec.Gene] = len(genes)
			genes = append(genes, rec.Gene)
		}
		if _, exists := sampleIdx[rec.Sample]; !exists {
			sampleIdx[rec.Sample] = len(samples)
			samples = append(samples, rec.Sample)
		}
	}

	rows := make([][]float64, len(genes))
	seen := make([][]bool, len(genes))
	for i := range rows {
		rows[i] = make([]float64, len(samples))
		seen[i] = make([]bool, len(samples))
	}

	for _, rec := range records {
		i, j := geneIdx[rec.Gene], sampleIdx[rec.Sample]
		if seen[i][j] {
			return nil, schemaErrorf("duplicate record for gene %q, sample %q", rec.Gene, rec.Sample)
		}
		seen[i][j] = true
		rows[i][j] = rec.Count
	}

	for i := range seen {
		for j := range seen[i] {
			if !seen[i][j] {
				return nil, schemaErrorf("no record for gene %q, sample %q", genes[i], samples[j])
			}
		}
	}

	return NewMatrix(genes, samples, rows)
}
