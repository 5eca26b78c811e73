package diffexp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	irlsMaxIter = 25
	irlsTol     = 1e-8
)

// glmFit is one gene's negative-binomial fit: coefficients on the natural-log
// scale and the inverse Fisher information for Wald standard errors.
type glmFit struct {
	beta      []float64
	cov       *mat.Dense
	converged bool
}

// fitNB runs iteratively reweighted least squares for a negative-binomial
// GLM with log link: log(mu) = X*beta + offset, Var(y) = mu + phi*mu^2.
// phi = 0 degrades to Poisson. Returns an error when the weighted solve is
// singular or the iteration produces non-finite values; the caller isolates
// that gene rather than aborting the run.
func fitNB(y []float64, x *mat.Dense, offsets []float64, phi float64) (glmFit, error) {
	n, p := x.Dims()
	if len(y) != n || len(offsets) != n {
		return glmFit{}, fmt.Errorf("response has %d values for a %d-row design", len(y), n)
	}

	// Start from the data itself, damped away from zero.
	mu := make([]float64, n)
	eta := make([]float64, n)
	for j := range y {
		mu[j] = y[j] + 0.5
		eta[j] = math.Log(mu[j])
	}

	beta := make([]float64, p)
	w := make([]float64, n)
	z := make([]float64, n)
	wx := mat.NewDense(n, p, nil)
	wz := mat.NewVecDense(n, nil)

	converged := false
	for iter := 0; iter < irlsMaxIter; iter++ {
		for j := 0; j < n; j++ {
			w[j] = mu[j] / (1 + phi*mu[j])
			z[j] = (eta[j] - offsets[j]) + (y[j]-mu[j])/mu[j]

			sw := math.Sqrt(w[j])
			for k := 0; k < p; k++ {
				wx.Set(j, k, sw*x.At(j, k))
			}
			wz.SetVec(j, sw*z[j])
		}

		var qr mat.QR
		qr.Factorize(wx)

		var sol mat.Dense
		if err := qr.SolveTo(&sol, false, wz); err != nil {
			return glmFit{}, fmt.Errorf("weighted solve failed: %v", err)
		}

		maxDelta := 0.0
		for k := 0; k < p; k++ {
			next := sol.At(k, 0)
			if math.IsNaN(next) || math.IsInf(next, 0) {
				return glmFit{}, fmt.Errorf("coefficient %d diverged", k)
			}
			if d := math.Abs(next - beta[k]); d > maxDelta {
				maxDelta = d
			}
			beta[k] = next
		}

		for j := 0; j < n; j++ {
			eta[j] = offsets[j]
			for k := 0; k < p; k++ {
				eta[j] += x.At(j, k) * beta[k]
			}
			mu[j] = math.Exp(eta[j])
			if mu[j] < 1e-10 {
				mu[j] = 1e-10
			}
		}

		if maxDelta < irlsTol {
			converged = true
			break
		}
	}

	// Fisher information at the final weights: (X' W X)^-1.
	for j := 0; j < n; j++ {
		w[j] = mu[j] / (1 + phi*mu[j])
	}
	info := mat.NewDense(p, p, nil)
	for a := 0; a < p; a++ {
		for b := 0; b < p; b++ {
			var sum float64
			for j := 0; j < n; j++ {
				sum += x.At(j, a) * w[j] * x.At(j, b)
			}
			info.Set(a, b, sum)
		}
	}

	cov := mat.NewDense(p, p, nil)
	if err := cov.Inverse(info); err != nil {
		return glmFit{}, fmt.Errorf("information matrix not invertible: %v", err)
	}

	return glmFit{beta: beta, cov: cov, converged: converged}, nil
}

// fittedMeans recomputes mu for a fit, used by the dispersion pass.
func fittedMeans(fit glmFit, x *mat.Dense, offsets []float64) []float64 {
	n, p := x.Dims()
	mu := make([]float64, n)
	for j := 0; j < n; j++ {
		eta := offsets[j]
		for k := 0; k < p; k++ {
			eta += x.At(j, k) * fit.beta[k]
		}
		mu[j] = math.Exp(eta)
	}

	return mu
}
