package prior

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/nathanaelbosch/probnum/gauss"
)

// IOUP is the q-times integrated Ornstein-Uhlenbeck prior: like the IWP, but
// the q-th derivative reverts to zero with the given drift speed λ > 0. The
// drift block is the IWP integrator chain with -λ in the corner; the
// discretization goes through the matrix exponential (Van Loan).
type IOUP struct {
	q     int
	d     int
	λ     float64
	σ2    float64
	drift *mat.Dense
	disp  *mat.Dense
}

var _ Model = (*IOUP)(nil)

// NewIOUP returns an integrated Ornstein-Uhlenbeck prior of the given order
// over spatialDim components with drift speed λ = driftspeed and diffusion
// σ² = diffusion.
func NewIOUP(order, spatialDim int, driftspeed, diffusion float64) (*IOUP, error) {
	if order < 0 {
		return nil, fmt.Errorf("prior: order must be non-negative, got %d", order)
	}
	if spatialDim < 1 {
		return nil, fmt.Errorf("prior: spatial dimension must be positive, got %d", spatialDim)
	}
	if driftspeed <= 0 {
		return nil, fmt.Errorf("prior: drift speed must be positive, got %g", driftspeed)
	}
	if diffusion <= 0 {
		return nil, fmt.Errorf("prior: diffusion must be positive, got %g", diffusion)
	}
	n := order + 1
	drift := mat.NewDense(n, n, nil)
	for i := 0; i < n-1; i++ {
		drift.Set(i, i+1, 1)
	}
	drift.Set(n-1, n-1, -driftspeed)
	return &IOUP{q: order, d: spatialDim, λ: driftspeed, σ2: diffusion, drift: drift, disp: dispersion(order, diffusion)}, nil
}

// Dim implements Model.
func (p *IOUP) Dim() int { return p.d * (p.q + 1) }

// Order implements Model.
func (p *IOUP) Order() int { return p.q }

// SpatialDim implements Model.
func (p *IOUP) SpatialDim() int { return p.d }

// Diffusion implements Model.
func (p *IOUP) Diffusion() float64 { return p.σ2 }

// Transition implements Model.
func (p *IOUP) Transition(Δt float64) (*mat.Dense, error) {
	if err := checkStep(Δt); err != nil {
		return nil, err
	}
	Φ, _ := vanLoan(p.drift, p.disp, identity(1), Δt)
	return blockDiag(p.d, Φ), nil
}

// ProcessNoise implements Model.
func (p *IOUP) ProcessNoise(Δt float64) (*mat.SymDense, error) {
	if err := checkStep(Δt); err != nil {
		return nil, err
	}
	_, Q := vanLoan(p.drift, p.disp, identity(1), Δt)
	return blockDiagSym(p.d, Q), nil
}

// ProcessNoiseFactor implements Model.
func (p *IOUP) ProcessNoiseFactor(Δt float64) (*mat.TriDense, error) {
	Q, err := p.ProcessNoise(Δt)
	if err != nil {
		return nil, err
	}
	blk := p.q + 1
	block := mat.NewSymDense(blk, nil)
	for i := 0; i < blk; i++ {
		for j := i; j < blk; j++ {
			block.SetSym(i, j, Q.At(i, j))
		}
	}
	factor, err := gauss.FactorizeSym(block)
	if err != nil {
		return nil, err
	}
	return blockDiagTri(p.d, factor), nil
}

// StationaryCov implements Model. The integrator part of the chain is not
// mean reverting, so no stationary distribution exists; as for the IWP, the
// diffusion-scaled identity seeds the belief at t0.
func (p *IOUP) StationaryCov() *mat.SymDense {
	return scaledIdentity(p.Dim(), p.σ2)
}

func (p *IOUP) String() string {
	return fmt.Sprintf("IOUP(q=%d, d=%d, λ=%g, σ²=%g)", p.q, p.d, p.λ, p.σ2)
}

// dispersion returns the (q+1)×1 dispersion column σ·e_q: white noise enters
// only through the highest derivative.
func dispersion(order int, diffusion float64) *mat.Dense {
	disp := mat.NewDense(order+1, 1, nil)
	disp.Set(order, 0, math.Sqrt(diffusion))
	return disp
}

func identity(n int) *mat.Dense {
	out := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		out.Set(i, i, 1)
	}
	return out
}
