package report

import (
	"encoding/csv"
	"io"

	"github.com/carbocation/pfx"
	"github.com/gocarina/gocsv"

	"github.com/haswelllab/rnaseqmisc/diffexp"
)

// WriteResults exports the result table as tab-delimited text. Absent effect
// and significance fields serialize as empty cells, never as zeros.
func WriteResults(w io.Writer, results []diffexp.Result) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'

	if err := gocsv.MarshalCSV(resultPointers(results), gocsv.NewSafeCSVWriter(cw)); err != nil {
		return pfx.Err(err)
	}

	return nil
}

// ReadResults re-parses an exported result table; WriteResults followed by
// ReadResults reproduces the rows exactly, absent fields included.
func ReadResults(r io.Reader) ([]diffexp.Result, error) {
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		cr := csv.NewReader(in)
		cr.Comma = '\t'
		cr.LazyQuotes = true
		return cr
	})

	records := []*diffexp.Result{}
	if err := gocsv.Unmarshal(r, &records); err != nil {
		return nil, pfx.Err(err)
	}

	out := make([]diffexp.Result, 0, len(records))
	for _, rec := range records {
		out = append(out, *rec)
	}

	return out, nil
}

func resultPointers(results []diffexp.Result) []*diffexp.Result {
	out := make([]*diffexp.Result, len(results))
	for i := range results {
		out[i] = &results[i]
	}

	return out
}
