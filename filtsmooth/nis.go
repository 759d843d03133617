package filtsmooth

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// NIS returns the normalized innovation squared statistic zᵀ·(S·Sᵀ)⁻¹·z for
// each recorded update step. Under a well-calibrated filter these are χ²
// distributed with as many degrees of freedom as ODE components.
func NIS(innovs []Innovation) ([]float64, error) {
	out := make([]float64, len(innovs))
	for k, rec := range innovs {
		var w mat.VecDense
		if err := w.SolveVec(rec.CovFactor, rec.Residual); err != nil {
			return nil, fmt.Errorf("filtsmooth: NIS at step %d: %v", rec.Index, err)
		}
		out[k] = mat.Dot(&w, &w)
	}
	return out, nil
}

// NISTest runs a χ² consistency test on the innovations: it returns the
// two-sided acceptance interval at the given significance level, the mean NIS
// across steps, and the fraction of per-step statistics inside the interval.
// A mean far outside [lower, upper] indicates an over- or under-confident
// filter and usually calls for calibration.
func NISTest(innovs []Innovation, significance float64) (lower, upper, mean, fraction float64, err error) {
	if len(innovs) == 0 {
		return 0, 0, 0, 0, errors.New("filtsmooth: NIS test requires at least one innovation")
	}
	if significance <= 0 || significance >= 1 {
		return 0, 0, 0, 0, fmt.Errorf("filtsmooth: significance must be in (0,1), got %g", significance)
	}
	samples, err := NIS(innovs)
	if err != nil {
		return 0, 0, 0, 0, err
	}

	dof := float64(innovs[0].Residual.Len())
	χ2 := distuv.ChiSquared{K: dof}
	lower = χ2.Quantile(significance / 2)
	upper = χ2.Quantile(1 - significance/2)

	inside := 0
	for _, s := range samples {
		if s >= lower && s <= upper {
			inside++
		}
	}
	mean = stat.Mean(samples, nil)
	fraction = float64(inside) / float64(len(samples))
	return lower, upper, mean, fraction, nil
}
