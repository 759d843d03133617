package prior

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/combin"

	"github.com/nathanaelbosch/probnum/gauss"
)

// Matern is the Matérn prior of smoothness ν = q + 1/2, in its state-space
// form: an order-(q+1) companion drift whose last row carries the binomial
// expansion of (∂ + λ)^(q+1) with λ = √(2ν)/lengthscale. Unlike IWP and IOUP
// it is fully mean reverting and has a proper stationary distribution, which
// StationaryCov computes from the Lyapunov equation.
type Matern struct {
	q     int
	d     int
	ls    float64
	σ2    float64
	drift *mat.Dense
	disp  *mat.Dense
}

var _ Model = (*Matern)(nil)

// NewMatern returns a Matérn prior of the given order over spatialDim
// components with the given length scale and diffusion σ² = diffusion.
func NewMatern(order, spatialDim int, lengthscale, diffusion float64) (*Matern, error) {
	if order < 0 {
		return nil, fmt.Errorf("prior: order must be non-negative, got %d", order)
	}
	if spatialDim < 1 {
		return nil, fmt.Errorf("prior: spatial dimension must be positive, got %d", spatialDim)
	}
	if lengthscale <= 0 {
		return nil, fmt.Errorf("prior: length scale must be positive, got %g", lengthscale)
	}
	if diffusion <= 0 {
		return nil, fmt.Errorf("prior: diffusion must be positive, got %g", diffusion)
	}

	n := order + 1
	ν := float64(order) + 0.5
	λ := math.Sqrt(2*ν) / lengthscale
	drift := mat.NewDense(n, n, nil)
	for i := 0; i < n-1; i++ {
		drift.Set(i, i+1, 1)
	}
	for i := 0; i < n; i++ {
		coeff := float64(combin.Binomial(n, i)) * math.Pow(λ, float64(n-i))
		drift.Set(n-1, i, drift.At(n-1, i)-coeff)
	}
	return &Matern{q: order, d: spatialDim, ls: lengthscale, σ2: diffusion, drift: drift, disp: dispersion(order, diffusion)}, nil
}

// Dim implements Model.
func (p *Matern) Dim() int { return p.d * (p.q + 1) }

// Order implements Model.
func (p *Matern) Order() int { return p.q }

// SpatialDim implements Model.
func (p *Matern) SpatialDim() int { return p.d }

// Diffusion implements Model.
func (p *Matern) Diffusion() float64 { return p.σ2 }

// Transition implements Model.
func (p *Matern) Transition(Δt float64) (*mat.Dense, error) {
	if err := checkStep(Δt); err != nil {
		return nil, err
	}
	Φ, _ := vanLoan(p.drift, p.disp, identity(1), Δt)
	return blockDiag(p.d, Φ), nil
}

// ProcessNoise implements Model.
func (p *Matern) ProcessNoise(Δt float64) (*mat.SymDense, error) {
	if err := checkStep(Δt); err != nil {
		return nil, err
	}
	_, Q := vanLoan(p.drift, p.disp, identity(1), Δt)
	return blockDiagSym(p.d, Q), nil
}

// ProcessNoiseFactor implements Model.
func (p *Matern) ProcessNoiseFactor(Δt float64) (*mat.TriDense, error) {
	if err := checkStep(Δt); err != nil {
		return nil, err
	}
	_, Q := vanLoan(p.drift, p.disp, identity(1), Δt)
	factor, err := gauss.FactorizeSym(Q)
	if err != nil {
		return nil, err
	}
	return blockDiagTri(p.d, factor), nil
}

// StationaryCov implements Model.
func (p *Matern) StationaryCov() *mat.SymDense {
	n := p.q + 1
	var ΓΓ mat.Dense
	ΓΓ.Mul(p.disp, p.disp.T())
	Q := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			Q.SetSym(i, j, ΓΓ.At(i, j))
		}
	}
	stat, err := lyapunov(p.drift, Q)
	if err != nil {
		// The Matérn drift is Hurwitz, so the Lyapunov system is regular;
		// a failed solve can only come from degenerate parameters.
		return scaledIdentity(p.Dim(), p.σ2)
	}
	return blockDiagSym(p.d, stat)
}

func (p *Matern) String() string {
	return fmt.Sprintf("Matern(q=%d, d=%d, ℓ=%g, σ²=%g)", p.q, p.d, p.ls, p.σ2)
}
