// Package prior implements the continuous-time stochastic process priors of
// the ODE filter and their exact discretizations. A prior of order q over d
// spatial components models the solution and its first q derivatives, giving
// a stacked state of dimension d·(q+1) laid out as d blocks of q+1
// derivatives.
package prior

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrInvalidStepSize is returned when a discretization is requested for a
// non-positive step size.
var ErrInvalidStepSize = errors.New("prior: step size must be strictly positive")

// Model defines the discretized dynamics of a continuous-time prior process
// between two time points. Transition and process noise are closed-form
// functions of the step size and are recomputed on every call: grids may be
// non-uniform, so nothing is cached against Δt.
type Model interface {
	// Dim returns the stacked state dimension d·(q+1).
	Dim() int
	// Order returns the process order q.
	Order() int
	// SpatialDim returns the number of ODE components d.
	SpatialDim() int
	// Diffusion returns the diffusion scale σ².
	Diffusion() float64
	// Transition returns the discrete transition matrix Φ(Δt).
	Transition(Δt float64) (*mat.Dense, error)
	// ProcessNoise returns the discrete process noise covariance Q(Δt).
	ProcessNoise(Δt float64) (*mat.SymDense, error)
	// ProcessNoiseFactor returns a lower-triangular S with S·Sᵀ = Q(Δt).
	ProcessNoiseFactor(Δt float64) (*mat.TriDense, error)
	// StationaryCov returns the covariance used to seed the belief at t0:
	// the stationary covariance of the process where one exists, and the
	// diffusion-scaled identity for non-mean-reverting priors.
	StationaryCov() *mat.SymDense
	fmt.Stringer
}

// Discretize returns the transition matrix and process noise factor of the
// model for one step, the pair consumed by a predict step.
func Discretize(m Model, Δt float64) (Φ *mat.Dense, sqrtQ *mat.TriDense, err error) {
	if Φ, err = m.Transition(Δt); err != nil {
		return nil, nil, err
	}
	if sqrtQ, err = m.ProcessNoiseFactor(Δt); err != nil {
		return nil, nil, err
	}
	return Φ, sqrtQ, nil
}

// Projection returns the d×D matrix E_k selecting the k-th derivative of
// every spatial component from the stacked state.
func Projection(order, spatialDim, k int) *mat.Dense {
	if k < 0 || k > order {
		panic(fmt.Sprintf("prior: derivative %d out of range for order %d", k, order))
	}
	e := mat.NewDense(spatialDim, spatialDim*(order+1), nil)
	for i := 0; i < spatialDim; i++ {
		e.Set(i, i*(order+1)+k, 1)
	}
	return e
}

func checkStep(Δt float64) error {
	if Δt <= 0 {
		return fmt.Errorf("%w: Δt=%g", ErrInvalidStepSize, Δt)
	}
	return nil
}

// blockDiag repeats an n×n block d times along the diagonal.
func blockDiag(d int, block mat.Matrix) *mat.Dense {
	n, _ := block.Dims()
	out := mat.NewDense(d*n, d*n, nil)
	for b := 0; b < d; b++ {
		out.Slice(b*n, (b+1)*n, b*n, (b+1)*n).(*mat.Dense).Copy(block)
	}
	return out
}

func blockDiagSym(d int, block *mat.SymDense) *mat.SymDense {
	n := block.SymmetricDim()
	out := mat.NewSymDense(d*n, nil)
	for b := 0; b < d; b++ {
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				out.SetSym(b*n+i, b*n+j, block.At(i, j))
			}
		}
	}
	return out
}

func blockDiagTri(d int, block *mat.TriDense) *mat.TriDense {
	n, _ := block.Triangle()
	out := mat.NewTriDense(d*n, mat.Lower, nil)
	for b := 0; b < d; b++ {
		for i := 0; i < n; i++ {
			for j := 0; j <= i; j++ {
				out.SetTri(b*n+i, b*n+j, block.At(i, j))
			}
		}
	}
	return out
}

func scaledIdentity(n int, v float64) *mat.SymDense {
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		out.SetSym(i, i, v)
	}
	return out
}
