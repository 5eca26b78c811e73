package counts

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/carbocation/pfx"
	"github.com/gocarina/gocsv"
)

// SampleInfo is one row of the sample sheet. Condition is the covariate of
// interest (e.g., treated vs untreated); Batch captures a nuisance grouping
// such as cell line or sequencing run and may be empty.
type SampleInfo struct {
	Sample    string `csv:"sample"`
	Condition string `csv:"condition"`
	Batch     string `csv:"batch,omitempty"`
}

// SymbolEntry maps one gene identifier to a human-readable symbol. The
// mapping may be many-to-one; duplicate symbols are aggregated by MapSymbols.
type SymbolEntry struct {
	GeneID string `csv:"gene_id"`
	Symbol string `csv:"symbol"`
}

// ReadMatrix parses a delimited gene-by-sample count table. The first column
// holds gene identifiers (its header name is ignored); every remaining header
// cell names a sample. Non-numeric counts, ragged rows, and duplicated keys
// are SchemaErrors.
func ReadMatrix(r io.Reader, comma rune) (*Matrix, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.Comment = '#'

	lines, err := cr.ReadAll()
	if err != nil {
		return nil, pfx.Err(err)
	}

	if len(lines) < 2 {
		return nil, schemaErrorf("count table has %d lines; need a header and at least one gene", len(lines))
	}
	if len(lines[0]) < 2 {
		return nil, schemaErrorf("count table header has %d columns; need a gene column and at least one sample", len(lines[0]))
	}

	samples := lines[0][1:]
	genes := make([]string, 0, len(lines)-1)
	rows := make([][]float64, 0, len(lines)-1)

	for lineNum, line := range lines[1:] {
		if len(line) != len(lines[0]) {
			return nil, schemaErrorf("line %d has %d fields but the header has %d", lineNum+2, len(line), len(lines[0]))
		}

		row := make([]float64, len(samples))
		for j, field := range line[1:] {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, schemaErrorf("line %d, sample %q: count %q is not numeric", lineNum+2, samples[j], field)
			}
			if v < 0 {
				return nil, schemaErrorf("line %d, sample %q: negative count %v", lineNum+2, samples[j], v)
			}
			row[j] = v
		}

		genes = append(genes, line[0])
		rows = append(rows, row)
	}

	return NewMatrix(genes, samples, rows)
}

// ReadSampleInfo parses the sample sheet. Delimiter is detected from the
// header by gocsv's default reader when comma, and overridden for tabs here.
func ReadSampleInfo(r io.Reader, comma rune) ([]SampleInfo, error) {
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		cr := csv.NewReader(in)
		cr.Comma = comma
		cr.LazyQuotes = true
		return cr
	})

	records := []*SampleInfo{}
	if err := gocsv.Unmarshal(r, &records); err != nil {
		return nil, pfx.Err(err)
	}

	out := make([]SampleInfo, 0, len(records))
	for _, rec := range records {
		if rec.Sample == "" {
			return nil, schemaErrorf("sample sheet row with empty sample identifier")
		}
		if rec.Condition == "" {
			return nil, schemaErrorf("sample %q has no condition", rec.Sample)
		}
		out = append(out, *rec)
	}

	return out, nil
}

// ReadSymbols parses a two-column gene_id/symbol table.
func ReadSymbols(r io.Reader, comma rune) ([]SymbolEntry, error) {
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		cr := csv.NewReader(in)
		cr.Comma = comma
		cr.LazyQuotes = true
		return cr
	})

	records := []*SymbolEntry{}
	if err := gocsv.Unmarshal(r, &records); err != nil {
		return nil, pfx.Err(err)
	}

	out := make([]SymbolEntry, 0, len(records))
	for _, rec := range records {
		out = append(out, *rec)
	}

	return out, nil
}

// JoinSamples verifies that the join between the count columns and the sample
// sheet is total: every sample column has exactly one metadata row. Extra
// metadata rows for samples absent from the matrix are ignored. Returns a
// lookup keyed by sample identifier.
func JoinSamples(m *Matrix, info []SampleInfo) (map[string]SampleInfo, error) {
	byID := make(map[string]SampleInfo, len(info))
	for _, rec := range info {
		if _, exists := byID[rec.Sample]; exists {
			return nil, schemaErrorf("sample %q appears more than once in the sample sheet", rec.Sample)
		}
		byID[rec.Sample] = rec
	}

	out := make(map[string]SampleInfo, len(m.Samples))
	for _, s := range m.Samples {
		rec, exists := byID[s]
		if !exists {
			return nil, schemaErrorf("sample %q is in the count table but not the sample sheet", s)
		}
		out[s] = rec
	}

	return out, nil
}

// ConditionBySample reduces the joined metadata to sample -> condition level,
// the shape the abundance filter and the design builder want.
func ConditionBySample(joined map[string]SampleInfo) map[string]string {
	out := make(map[string]string, len(joined))
	for s, rec := range joined {
		out[s] = rec.Condition
	}

	return out
}
