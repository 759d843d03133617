package filtsmooth

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/nathanaelbosch/probnum/gauss"
)

// DiffusionMLE computes the quasi-maximum-likelihood estimate of the global
// diffusion scale σ² from the innovations of a filter run: the mean of the
// whitened squared residuals zᵀ·(S·Sᵀ)⁻¹·z over all recorded update steps.
// It is a pure function of its input; an empty record (single-point grid)
// yields the neutral scale 1.
func DiffusionMLE(innovs []Innovation) (float64, error) {
	if len(innovs) == 0 {
		return 1, nil
	}
	total := 0.0
	count := 0
	for _, rec := range innovs {
		var w mat.VecDense
		if err := w.SolveVec(rec.CovFactor, rec.Residual); err != nil {
			return 0, fmt.Errorf("filtsmooth: whitening innovation at step %d: %w: %v",
				rec.Index, gauss.ErrSingularCovariance, err)
		}
		total += mat.Dot(&w, &w)
		count += rec.Residual.Len()
	}
	return total / float64(count), nil
}

// Calibrate rescales the posterior's covariances by the diffusion scale
// estimated from the innovations and returns the rescaled posterior together
// with the scale. Uniform rescaling is closed-form, so the filter and
// smoother are not re-run. The input posterior is left untouched; calling
// Calibrate again with the same innovations yields the same scale.
func Calibrate(post *Posterior, innovs []Innovation) (*Posterior, float64, error) {
	σ2, err := DiffusionMLE(innovs)
	if err != nil {
		return nil, 0, err
	}
	beliefs := make([]*gauss.Belief, post.Len())
	for i := range beliefs {
		if beliefs[i], err = post.beliefs[i].Rescale(σ2); err != nil {
			return nil, 0, err
		}
	}
	return &Posterior{model: post.model, ts: post.ts, beliefs: beliefs}, σ2, nil
}
