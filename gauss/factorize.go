package gauss

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrSingularCovariance is returned when an innovation or prediction
// covariance is not invertible within tolerance.
var ErrSingularCovariance = errors.New("gauss: covariance is singular to working precision")

// defaultTol is the relative tolerance below which a factor diagonal entry is
// treated as zero.
const defaultTol = 1e-12

// FactorizeSym returns the lower-triangular Cholesky factor of a symmetric
// matrix. If the matrix is only semi-definite to working precision, a small
// diagonal jitter proportional to the largest diagonal entry is added and
// escalated a bounded number of times before giving up with
// ErrSingularCovariance wrapped in the returned error.
func FactorizeSym(cov mat.Symmetric) (*mat.TriDense, error) {
	n := cov.SymmetricDim()
	maxDiag := 0.0
	for i := 0; i < n; i++ {
		if d := cov.At(i, i); d > maxDiag {
			maxDiag = d
		}
	}

	var chol mat.Cholesky
	if chol.Factorize(cov) {
		s := mat.NewTriDense(n, mat.Lower, nil)
		chol.LTo(s)
		return s, nil
	}

	jittered := mat.NewSymDense(n, nil)
	jitter := defaultTol * (1 + maxDiag)
	for attempt := 0; attempt < 3; attempt++ {
		jittered.CopySym(cov)
		for i := 0; i < n; i++ {
			jittered.SetSym(i, i, jittered.At(i, i)+jitter)
		}
		if chol.Factorize(jittered) {
			s := mat.NewTriDense(n, mat.Lower, nil)
			chol.LTo(s)
			return s, nil
		}
		jitter *= 100
	}
	return nil, fmt.Errorf("%w: Cholesky failed after jitter up to %g", ErrSingularCovariance, jitter/100)
}

// CovSolve solves P·X = B for X using the belief's covariance factor. It is
// the shared solve path for smoothing gains; a factor that is singular within
// tolerance triggers one jittered refactorization of the covariance before
// the solve fails with ErrSingularCovariance.
func (b *Belief) CovSolve(bm mat.Matrix) (*mat.Dense, error) {
	n := b.Dim()
	if err := checkMatDims(b.sqrt, bm, "covariance", "rhs", rows2rows); err != nil {
		return nil, err
	}

	s := b.sqrt
	maxDiag := 0.0
	for i := 0; i < n; i++ {
		if d := s.At(i, i); d > maxDiag {
			maxDiag = d
		}
	}
	for i := 0; i < n; i++ {
		if s.At(i, i) <= defaultTol*maxDiag {
			var err error
			if s, err = FactorizeSym(b.Cov()); err != nil {
				return nil, err
			}
			break
		}
	}

	// Two triangular solves: S·Y = B, then Sᵀ·X = Y.
	var y, x mat.Dense
	if err := y.Solve(s, bm); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingularCovariance, err)
	}
	if err := x.Solve(s.T(), &y); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingularCovariance, err)
	}
	return &x, nil
}

// qrSqrt triangularizes a stacked pre-array and returns the lower-triangular
// square-root factor Rᵀ of (stackedᵀ·stacked), with a non-negative diagonal.
func qrSqrt(stacked *mat.Dense) *mat.TriDense {
	_, n := stacked.Dims()
	var qr mat.QR
	qr.Factorize(stacked)
	var r mat.Dense
	qr.RTo(&r)
	s := mat.NewTriDense(n, mat.Lower, nil)
	for i := 0; i < n; i++ {
		sign := 1.0
		if r.At(i, i) < 0 {
			sign = -1
		}
		for j := i; j < n; j++ {
			s.SetTri(j, i, sign*r.At(i, j))
		}
	}
	return s
}
