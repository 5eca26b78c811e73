package counts

// MapSymbols relabels gene identifiers with their symbols. Identifiers with
// no mapping (or an empty symbol) keep their original identifier so that no
// rows are silently dropped. Because the identifier-to-symbol mapping can be
// many-to-one, rows that end up sharing a symbol are collapsed by summing
// their counts per sample; row order follows first appearance of each symbol.
func MapSymbols(m *Matrix, symbols []SymbolEntry) *Matrix {
	bySymbol := make(map[string]string, len(symbols))
	for _, entry := range symbols {
		if entry.Symbol == "" {
			continue
		}
		bySymbol[entry.GeneID] = entry.Symbol
	}

	var outGenes []string
	rowIdx := make(map[string]int)
	var outRows [][]float64

	for i, g := range m.Genes {
		label := g
		if sym, exists := bySymbol[g]; exists {
			label = sym
		}

		at, exists := rowIdx[label]
		if !exists {
			rowIdx[label] = len(outGenes)
			outGenes = append(outGenes, label)

			row := make([]float64, len(m.Samples))
			copy(row, m.Counts[i])
			outRows = append(outRows, row)
			continue
		}

		for j, v := range m.Counts[i] {
			outRows[at][j] += v
		}
	}

	return &Matrix{Genes: outGenes, Samples: m.Samples, Counts: outRows}
}
