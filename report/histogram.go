package report

import (
	"fmt"
	"io"

	"github.com/aybabtme/uniplot/histogram"

	"github.com/haswelllab/rnaseqmisc/counts"
)

// LogCPMHistogram prints a terminal histogram of every logCPM value in the
// matrix, the quick density check the narrative walks through after
// filtering. The number of buckets is arbitrary.
func LogCPMHistogram(w io.Writer, logCPM *counts.Matrix) error {
	values := make([]float64, 0, logCPM.NGenes()*logCPM.NSamples())
	for _, row := range logCPM.Counts {
		values = append(values, row...)
	}

	if len(values) == 0 {
		return fmt.Errorf("no logCPM values to summarize")
	}

	hist := histogram.Hist(25, values)

	return histogram.Fprint(w, hist, histogram.Linear(40))
}
