// Package gauss implements the Gaussian beliefs propagated by the ODE filter.
// A belief stores its covariance as a lower-triangular square-root factor S
// with P = S·Sᵀ, so the covariance stays symmetric positive semi-definite by
// construction under arbitrarily long predict/update chains.
package gauss

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Belief is a multivariate normal distribution over the solver state.
// Use New or NewFromCov to initialize. All operations return new beliefs and
// leave the receiver untouched, so a belief can serve as an immutable
// per-step snapshot.
type Belief struct {
	mean *mat.VecDense
	sqrt *mat.TriDense // lower triangular, P = sqrt·sqrtᵀ
}

// New returns a belief from a mean vector and a lower-triangular covariance
// factor S such that P = S·Sᵀ. Both inputs are copied.
func New(mean *mat.VecDense, factor *mat.TriDense) (*Belief, error) {
	n, kind := factor.Triangle()
	if kind != mat.Lower {
		return nil, fmt.Errorf("gauss: covariance factor must be lower triangular")
	}
	if err := checkMatDims(mean, factor, "mean", "factor", rows2rows); err != nil {
		return nil, err
	}
	s := mat.NewTriDense(n, mat.Lower, nil)
	s.Copy(factor)
	return &Belief{mean: mat.VecDenseCopyOf(mean), sqrt: s}, nil
}

// NewFromCov returns a belief from a mean vector and a dense symmetric
// covariance, factorizing the covariance (with bounded jitter escalation if
// it is semi-definite to working precision).
func NewFromCov(mean *mat.VecDense, cov mat.Symmetric) (*Belief, error) {
	if err := checkMatDims(mean, cov, "mean", "covariance", rows2rows); err != nil {
		return nil, err
	}
	s, err := FactorizeSym(cov)
	if err != nil {
		return nil, err
	}
	return &Belief{mean: mat.VecDenseCopyOf(mean), sqrt: s}, nil
}

// Dim returns the state dimension d.
func (b *Belief) Dim() int {
	return b.mean.Len()
}

// Mean returns a copy of the mean vector.
func (b *Belief) Mean() *mat.VecDense {
	return mat.VecDenseCopyOf(b.mean)
}

// SqrtCov returns a copy of the lower-triangular covariance factor.
func (b *Belief) SqrtCov() *mat.TriDense {
	n := b.Dim()
	s := mat.NewTriDense(n, mat.Lower, nil)
	s.Copy(b.sqrt)
	return s
}

// Cov reconstructs the dense covariance S·Sᵀ. The reconstruction is
// symmetrized entry-wise to cancel last-ulp asymmetry from the two dot
// products.
func (b *Belief) Cov() *mat.SymDense {
	n := b.Dim()
	var p mat.Dense
	p.Mul(b.sqrt, b.sqrt.T())
	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, 0.5*(p.At(i, j)+p.At(j, i)))
		}
	}
	return cov
}

// Variance returns the marginal variance of component i, computed from the
// factor without forming the full covariance.
func (b *Belief) Variance(i int) float64 {
	v := 0.0
	for j := 0; j <= i; j++ {
		s := b.sqrt.At(i, j)
		v += s * s
	}
	return v
}

// StdDev returns the marginal standard deviation of component i.
func (b *Belief) StdDev(i int) float64 {
	return math.Sqrt(b.Variance(i))
}

// Clone returns a deep copy of the belief.
func (b *Belief) Clone() *Belief {
	c, _ := New(b.mean, b.sqrt)
	return c
}

// Rescale returns a copy of the belief with the covariance multiplied by
// c > 0 (the factor is scaled by √c); the mean is unchanged.
func (b *Belief) Rescale(c float64) (*Belief, error) {
	if c <= 0 {
		return nil, fmt.Errorf("gauss: covariance scale must be positive, got %g", c)
	}
	out := b.Clone()
	out.sqrt.ScaleTri(math.Sqrt(c), out.sqrt)
	return out, nil
}

func (b *Belief) String() string {
	return fmt.Sprintf("{\nm=%v\nP=%v\n}",
		mat.Formatted(b.mean, mat.Prefix("  ")),
		mat.Formatted(b.Cov(), mat.Prefix("  ")))
}
