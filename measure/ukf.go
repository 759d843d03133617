package measure

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/nathanaelbosch/probnum/gauss"
	"github.com/nathanaelbosch/probnum/prior"
)

// UKF linearizes the ODE residual with the unscented transform: 2n+1 sigma
// points drawn from the belief's covariance factor, weighted by the usual
// (α, β, κ) scheme.
type UKF struct {
	odeModel
	α, β, κ float64
}

var _ Linearizer = (*UKF)(nil)

// NewUKF returns an unscented-transform measurement model with the common
// defaults α=1e-3, β=2, κ=0.
func NewUKF(m prior.Model, f VectorField) *UKF {
	return &UKF{odeModel: newODEModel(m, f), α: 1e-3, β: 2, κ: 0}
}

// SetSigmaParams overrides the sigma-point spread parameters.
func (kf *UKF) SetSigmaParams(α, β, κ float64) {
	kf.α, kf.β, kf.κ = α, β, κ
}

// SetObservationNoise overrides the default observation jitter standard
// deviation.
func (kf *UKF) SetObservationNoise(std float64) {
	kf.obsStd = std
}

// Linearize implements Linearizer.
func (kf *UKF) Linearize(t float64, b *gauss.Belief) (*mat.Dense, *mat.TriDense, *mat.VecDense, error) {
	n := float64(kf.stateDim())
	λ := kf.α*kf.α*(n+kf.κ) - n
	γ := math.Sqrt(n + λ)

	pts := spread(b, γ, true)
	wm := make([]float64, len(pts))
	wc := make([]float64, len(pts))
	wm[0] = λ / (n + λ)
	wc[0] = wm[0] + 1 - kf.α*kf.α + kf.β
	for i := 1; i < len(pts); i++ {
		wm[i] = 0.5 / (n + λ)
		wc[i] = wm[i]
	}
	return kf.statLinearize(t, b, pts, wm, wc)
}
