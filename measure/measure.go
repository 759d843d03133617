// Package measure implements the measurement models of the ODE filter. The
// "observation" of a probabilistic ODE solver is the residual
//
//	g(t, x) = E₁·x − f(t, E₀·x),
//
// which is exactly zero when the state interpolates a solution of
// ẋ = f(t, x). A measurement model linearizes g at the current belief and is
// polymorphic over how: first-order Taylor (extended Kalman), unscented
// transform, or spherical cubature. The variant is chosen at construction;
// all satisfy Linearizer.
package measure

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/nathanaelbosch/probnum/gauss"
	"github.com/nathanaelbosch/probnum/prior"
)

// VectorField is the externally supplied ODE right-hand side f(t, x). It is
// treated as a potentially expensive synchronous call and must be pure;
// results are undefined otherwise.
type VectorField func(t float64, x *mat.VecDense) *mat.VecDense

// Jacobian is the optional Jacobian ∂f/∂x of a vector field.
type Jacobian func(t float64, x *mat.VecDense) *mat.Dense

// defaultObsStd is the standard deviation of the observation jitter. The ODE
// residual is a noise-free observation, but a small positive value is
// required so the innovation covariance stays invertible.
const defaultObsStd = 1e-8

// Linearizer produces the (observation matrix, observation noise factor,
// predicted observation) triple that a conditioning step consumes.
type Linearizer interface {
	// Linearize evaluates the measurement model at the belief b and time t.
	Linearize(t float64, b *gauss.Belief) (H *mat.Dense, sqrtR *mat.TriDense, yhat *mat.VecDense, err error)
	// Dim returns the observation dimension (the number of ODE components).
	Dim() int
	// Field returns the wrapped vector field.
	Field() VectorField
}

// odeModel carries what every linearization variant shares: the projections
// onto the zeroth and first derivative, the vector field, and the jitter.
type odeModel struct {
	q, d   int
	e0, e1 *mat.Dense
	f      VectorField
	obsStd float64
}

func newODEModel(m prior.Model, f VectorField) odeModel {
	if m.Order() < 1 {
		panic(fmt.Sprintf("measure: prior order must be at least 1 to observe the derivative, got %d", m.Order()))
	}
	return odeModel{
		q:      m.Order(),
		d:      m.SpatialDim(),
		e0:     prior.Projection(m.Order(), m.SpatialDim(), 0),
		e1:     prior.Projection(m.Order(), m.SpatialDim(), 1),
		f:      f,
		obsStd: defaultObsStd,
	}
}

// Dim implements Linearizer.
func (m *odeModel) Dim() int { return m.d }

// Field implements Linearizer.
func (m *odeModel) Field() VectorField { return m.f }

func (m *odeModel) stateDim() int { return m.d * (m.q + 1) }

// residual evaluates g(t, x) = E₁·x − f(t, E₀·x) on a full state vector.
func (m *odeModel) residual(t float64, x *mat.VecDense) (*mat.VecDense, error) {
	x0 := mat.NewVecDense(m.d, nil)
	x0.MulVec(m.e0, x)
	fx := m.f(t, x0)
	if fx.Len() != m.d {
		return nil, fmt.Errorf("measure: vector field returned dimension %d, want %d", fx.Len(), m.d)
	}
	g := mat.NewVecDense(m.d, nil)
	g.MulVec(m.e1, x)
	g.SubVec(g, fx)
	return g, nil
}

// noiseFactor returns the lower-triangular factor of the jitter covariance.
func (m *odeModel) noiseFactor() *mat.TriDense {
	r := mat.NewTriDense(m.d, mat.Lower, nil)
	for i := 0; i < m.d; i++ {
		r.SetTri(i, i, m.obsStd)
	}
	return r
}

func (m *odeModel) checkBelief(b *gauss.Belief) error {
	if b.Dim() != m.stateDim() {
		return &gauss.DimensionError{
			Name1: "belief", Name2: "measurement model",
			R1: b.Dim(), C1: 1, R2: m.stateDim(), C2: 1,
		}
	}
	return nil
}
