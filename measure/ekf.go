package measure

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/nathanaelbosch/probnum/gauss"
	"github.com/nathanaelbosch/probnum/prior"
)

// EKF linearizes the ODE residual by a first-order Taylor expansion at the
// predicted mean: H = E₁ − J_f(t, E₀·m)·E₀. With a nil Jacobian the partial
// derivatives are approximated by forward differences; NewEKF0 drops the
// Jacobian correction entirely (H = E₁), which is cheaper and often
// sufficient for mildly nonlinear right-hand sides.
type EKF struct {
	odeModel
	jac    Jacobian
	zeroth bool
}

var _ Linearizer = (*EKF)(nil)

// NewEKF returns a Taylor-linearization measurement model for the vector
// field f under the given prior. jac may be nil, in which case the Jacobian
// is approximated by forward differences.
func NewEKF(m prior.Model, f VectorField, jac Jacobian) *EKF {
	return &EKF{odeModel: newODEModel(m, f), jac: jac}
}

// NewEKF0 returns the zeroth-order variant, which never differentiates f.
func NewEKF0(m prior.Model, f VectorField) *EKF {
	return &EKF{odeModel: newODEModel(m, f), zeroth: true}
}

// SetObservationNoise overrides the default observation jitter standard
// deviation. std must be positive for the innovation covariance to stay
// invertible.
func (kf *EKF) SetObservationNoise(std float64) {
	kf.obsStd = std
}

// Linearize implements Linearizer.
func (kf *EKF) Linearize(t float64, b *gauss.Belief) (*mat.Dense, *mat.TriDense, *mat.VecDense, error) {
	if err := kf.checkBelief(b); err != nil {
		return nil, nil, nil, err
	}
	m := b.Mean()
	yhat, err := kf.residual(t, m)
	if err != nil {
		return nil, nil, nil, err
	}

	H := mat.NewDense(kf.d, kf.stateDim(), nil)
	H.Copy(kf.e1)
	if !kf.zeroth {
		x0 := mat.NewVecDense(kf.d, nil)
		x0.MulVec(kf.e0, m)
		var J *mat.Dense
		if kf.jac != nil {
			J = kf.jac(t, x0)
		} else {
			J = numJacobian(kf.f, t, x0)
		}
		if err := checkJacDims(J, kf.d); err != nil {
			return nil, nil, nil, err
		}
		var JE0 mat.Dense
		JE0.Mul(J, kf.e0)
		H.Sub(H, &JE0)
	}
	return H, kf.noiseFactor(), yhat, nil
}

func checkJacDims(J *mat.Dense, d int) error {
	r, c := J.Dims()
	if r != d || c != d {
		return &gauss.DimensionError{Name1: "Jacobian", Name2: "vector field", R1: r, C1: c, R2: d, C2: d}
	}
	return nil
}

// numJacobian approximates ∂f/∂x by forward differences with a step scaled
// to the magnitude of each coordinate.
func numJacobian(f VectorField, t float64, x *mat.VecDense) *mat.Dense {
	d := x.Len()
	fx := f(t, x)
	J := mat.NewDense(d, d, nil)
	for j := 0; j < d; j++ {
		h := math.Sqrt(2.2e-16) * (1 + math.Abs(x.AtVec(j)))
		xh := mat.VecDenseCopyOf(x)
		xh.SetVec(j, xh.AtVec(j)+h)
		fxh := f(t, xh)
		for i := 0; i < d; i++ {
			J.Set(i, j, (fxh.AtVec(i)-fx.AtVec(i))/h)
		}
	}
	return J
}
