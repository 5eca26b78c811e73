// Package diffexp fits a per-gene negative-binomial generalized linear model
// with a log link and tests one contrast between condition levels. Dispersion
// is estimated from the data (common, then shrunk per gene), p-values come
// from a Wald test on the contrast coefficient, and false-discovery-rate
// control is applied across the tested genes.
package diffexp

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/haswelllab/rnaseqmisc/counts"
)

// ConfigurationError indicates an unusable design or contrast: identical or
// absent contrast levels, a sample without metadata, or a collinear design
// matrix. Unrecoverable; reported to the caller.
type ConfigurationError struct {
	msg string
}

func (e ConfigurationError) Error() string {
	return "configuration: " + e.msg
}

func configErrorf(format string, args ...interface{}) ConfigurationError {
	return ConfigurationError{msg: fmt.Sprintf(format, args...)}
}

// Contrast names the two condition levels to compare. Effect sizes are
// reported as Treatment relative to Control.
type Contrast struct {
	Treatment string
	Control   string
}

// Design is the per-sample model matrix: an intercept at the Control
// condition baseline, one indicator column per non-baseline condition level,
// and optionally one indicator per non-baseline batch level. ContrastCol is
// the column whose coefficient estimates the requested contrast.
type Design struct {
	X           *mat.Dense
	Columns     []string
	ContrastCol int
}

// NewDesign builds the model matrix for the samples in order. Condition
// levels other than the contrast's are modeled with their own columns so
// they neither join the baseline nor have to be subset away. includeBatch
// adds the Batch covariate when the metadata carries more than one level.
func NewDesign(samples []string, info map[string]counts.SampleInfo, contrast Contrast, includeBatch bool) (*Design, error) {
	if contrast.Treatment == contrast.Control {
		return nil, configErrorf("contrast compares level %q with itself", contrast.Treatment)
	}

	conditions := make([]string, len(samples))
	batches := make([]string, len(samples))
	condSeen := make(map[string]int)
	batchSeen := make(map[string]int)

	for i, s := range samples {
		rec, exists := info[s]
		if !exists {
			return nil, configErrorf("sample %q has no metadata row", s)
		}
		conditions[i] = rec.Condition
		condSeen[rec.Condition]++
		batches[i] = rec.Batch
		batchSeen[rec.Batch]++
	}

	if condSeen[contrast.Treatment] == 0 {
		return nil, configErrorf("contrast level %q has no samples", contrast.Treatment)
	}
	if condSeen[contrast.Control] == 0 {
		return nil, configErrorf("contrast level %q has no samples", contrast.Control)
	}

	// Non-baseline condition columns, contrast's treatment level first so its
	// column index is stable regardless of the other level names.
	condLevels := make([]string, 0, len(condSeen))
	for level := range condSeen {
		if level == contrast.Control || level == contrast.Treatment {
			continue
		}
		condLevels = append(condLevels, level)
	}
	sort.Strings(condLevels)
	condLevels = append([]string{contrast.Treatment}, condLevels...)

	var batchLevels []string
	if includeBatch && len(batchSeen) > 1 {
		for level := range batchSeen {
			batchLevels = append(batchLevels, level)
		}
		sort.Strings(batchLevels)
		batchLevels = batchLevels[1:] // first level is the baseline
	}

	columns := []string{"(intercept)"}
	for _, level := range condLevels {
		columns = append(columns, "condition:"+level)
	}
	for _, level := range batchLevels {
		columns = append(columns, "batch:"+level)
	}

	x := mat.NewDense(len(samples), len(columns), nil)
	for i := range samples {
		x.Set(i, 0, 1)
		for c, level := range condLevels {
			if conditions[i] == level {
				x.Set(i, 1+c, 1)
			}
		}
		for b, level := range batchLevels {
			if batches[i] == level {
				x.Set(i, 1+len(condLevels)+b, 1)
			}
		}
	}

	if len(columns) >= len(samples) {
		return nil, configErrorf("design has %d coefficients for %d samples; no residual degrees of freedom", len(columns), len(samples))
	}

	if err := checkFullRank(x); err != nil {
		return nil, err
	}

	return &Design{X: x, Columns: columns, ContrastCol: 1}, nil
}

// checkFullRank rejects collinear designs (e.g., batch perfectly confounded
// with condition) before any per-gene fitting happens.
func checkFullRank(x *mat.Dense) error {
	var svd mat.SVD
	if !svd.Factorize(x, mat.SVDNone) {
		return configErrorf("design matrix decomposition failed")
	}

	values := svd.Values(nil)
	if values[len(values)-1] <= 1e-10*values[0] {
		return configErrorf("design matrix is not full rank; a covariate is confounded with another")
	}

	return nil
}
