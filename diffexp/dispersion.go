package diffexp

import (
	"math"
	"sort"
)

const (
	// priorDF weights the common dispersion when shrinking per-gene moment
	// estimates, in residual-degrees-of-freedom units.
	priorDF = 20.0

	dispersionFloor = 1e-8
)

// momentDispersion is the method-of-moments estimate of the NB dispersion for
// one gene given its Poisson-fit means: solve sum((y-mu)^2 - mu)/mu^2 = df
// for phi. Negative estimates clamp to zero (data underdispersed vs Poisson).
func momentDispersion(y, mu []float64, residualDF float64) float64 {
	if residualDF <= 0 {
		return 0
	}

	var sum float64
	for j := range y {
		if mu[j] <= 0 {
			continue
		}
		d := y[j] - mu[j]
		sum += (d*d - mu[j]) / (mu[j] * mu[j])
	}

	phi := sum / residualDF
	if phi < 0 || math.IsNaN(phi) || math.IsInf(phi, 0) {
		return 0
	}

	return phi
}

// commonDispersion summarizes per-gene moment estimates with their median,
// which resists the handful of genes with wild estimates.
func commonDispersion(perGene []float64) float64 {
	finite := make([]float64, 0, len(perGene))
	for _, v := range perGene {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		finite = append(finite, v)
	}

	if len(finite) == 0 {
		return dispersionFloor
	}

	sort.Float64s(finite)
	n := len(finite)
	var med float64
	if n%2 == 1 {
		med = finite[n/2]
	} else {
		med = (finite[n/2-1] + finite[n/2]) / 2
	}

	if med < dispersionFloor {
		return dispersionFloor
	}

	return med
}

// shrinkDispersion pulls a per-gene estimate toward the common value with
// weight proportional to the residual degrees of freedom, floored so the NB
// variance never degrades below Poisson numerically.
func shrinkDispersion(perGene, common, residualDF float64) float64 {
	phi := (residualDF*perGene + priorDF*common) / (residualDF + priorDF)
	if phi < dispersionFloor {
		return dispersionFloor
	}

	return phi
}
