package prior

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/nathanaelbosch/probnum/gauss"
)

// IWP is the q-times integrated Wiener process prior, the default ODE
// solution prior: the q-th derivative of the solution is modeled as white
// noise with intensity σ². Transition and process noise have closed forms
// polynomial in the step size,
//
//	Φ(h)_ij = h^(j-i)/(j-i)!            for j ≥ i,
//	Q(h)_ij = σ²·h^(2q+1-i-j) / ((2q+1-i-j)·(q-i)!·(q-j)!),
//
// repeated block-diagonally over the d spatial components.
type IWP struct {
	q  int
	d  int
	σ2 float64

	// Step-independent lower Cholesky factor of the scale-free noise block
	// B_ij = 1/((2q+1-i-j)·(q-i)!·(q-j)!), so that the factor of Q(h) is
	// σ·diag(h^(q-i+1/2))·chol(B) in closed form for every h.
	bFactor *mat.TriDense
}

var _ Model = (*IWP)(nil)

// NewIWP returns an integrated Wiener process prior of the given order over
// spatialDim ODE components with diffusion scale σ² = diffusion.
func NewIWP(order, spatialDim int, diffusion float64) (*IWP, error) {
	if order < 0 {
		return nil, fmt.Errorf("prior: order must be non-negative, got %d", order)
	}
	if spatialDim < 1 {
		return nil, fmt.Errorf("prior: spatial dimension must be positive, got %d", spatialDim)
	}
	if diffusion <= 0 {
		return nil, fmt.Errorf("prior: diffusion must be positive, got %g", diffusion)
	}

	n := order + 1
	b := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			den := float64(2*order+1-i-j) * factorial(order-i) * factorial(order-j)
			b.SetSym(i, j, 1/den)
		}
	}
	bFactor, err := gauss.FactorizeSym(b)
	if err != nil {
		return nil, fmt.Errorf("prior: noise block of order %d: %w", order, err)
	}
	return &IWP{q: order, d: spatialDim, σ2: diffusion, bFactor: bFactor}, nil
}

// Dim implements Model.
func (p *IWP) Dim() int { return p.d * (p.q + 1) }

// Order implements Model.
func (p *IWP) Order() int { return p.q }

// SpatialDim implements Model.
func (p *IWP) SpatialDim() int { return p.d }

// Diffusion implements Model.
func (p *IWP) Diffusion() float64 { return p.σ2 }

// Transition implements Model.
func (p *IWP) Transition(Δt float64) (*mat.Dense, error) {
	if err := checkStep(Δt); err != nil {
		return nil, err
	}
	n := p.q + 1
	block := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			block.Set(i, j, math.Pow(Δt, float64(j-i))/factorial(j-i))
		}
	}
	return blockDiag(p.d, block), nil
}

// ProcessNoise implements Model.
func (p *IWP) ProcessNoise(Δt float64) (*mat.SymDense, error) {
	if err := checkStep(Δt); err != nil {
		return nil, err
	}
	n := p.q + 1
	block := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			pow := 2*p.q + 1 - i - j
			den := float64(pow) * factorial(p.q-i) * factorial(p.q-j)
			block.SetSym(i, j, p.σ2*math.Pow(Δt, float64(pow))/den)
		}
	}
	return blockDiagSym(p.d, block), nil
}

// ProcessNoiseFactor implements Model. The factor is exact for every Δt > 0:
// Q(h) = D·B·D with D = diag(σ·h^(q-i+1/2)), so the factor is D·chol(B) with
// the step-independent chol(B) computed once at construction. This sidesteps
// the extreme diagonal dynamic range of Q(h) for small steps, which makes a
// direct Cholesky of Q(h) unreliable.
func (p *IWP) ProcessNoiseFactor(Δt float64) (*mat.TriDense, error) {
	if err := checkStep(Δt); err != nil {
		return nil, err
	}
	n := p.q + 1
	σ := math.Sqrt(p.σ2)
	block := mat.NewTriDense(n, mat.Lower, nil)
	for i := 0; i < n; i++ {
		di := σ * math.Pow(Δt, float64(p.q-i)+0.5)
		for j := 0; j <= i; j++ {
			block.SetTri(i, j, di*p.bFactor.At(i, j))
		}
	}
	return blockDiagTri(p.d, block), nil
}

// StationaryCov implements Model. An integrated Wiener process is not mean
// reverting and has no stationary distribution; the diffusion-scaled identity
// serves as the prior covariance at t0, to be conditioned on the initial
// value.
func (p *IWP) StationaryCov() *mat.SymDense {
	return scaledIdentity(p.Dim(), p.σ2)
}

func (p *IWP) String() string {
	return fmt.Sprintf("IWP(q=%d, d=%d, σ²=%g)", p.q, p.d, p.σ2)
}

func factorial(n int) float64 {
	f := 1.0
	for i := 2; i <= n; i++ {
		f *= float64(i)
	}
	return f
}
