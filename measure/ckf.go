package measure

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/nathanaelbosch/probnum/gauss"
	"github.com/nathanaelbosch/probnum/prior"
)

// CKF linearizes the ODE residual with the third-degree spherical cubature
// rule: 2n equally weighted points at ±√n along the columns of the
// covariance factor. It has no tuning parameters, which makes it the sturdier
// choice when the unscented spread is hard to pick.
type CKF struct {
	odeModel
}

var _ Linearizer = (*CKF)(nil)

// NewCKF returns a cubature-transform measurement model.
func NewCKF(m prior.Model, f VectorField) *CKF {
	return &CKF{odeModel: newODEModel(m, f)}
}

// SetObservationNoise overrides the default observation jitter standard
// deviation.
func (kf *CKF) SetObservationNoise(std float64) {
	kf.obsStd = std
}

// Linearize implements Linearizer.
func (kf *CKF) Linearize(t float64, b *gauss.Belief) (*mat.Dense, *mat.TriDense, *mat.VecDense, error) {
	n := kf.stateDim()
	pts := spread(b, math.Sqrt(float64(n)), false)
	w := make([]float64, len(pts))
	for i := range w {
		w[i] = 0.5 / float64(n)
	}
	return kf.statLinearize(t, b, pts, w, w)
}
