package gauss

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Update carries the diagnostics of a single conditioning step: the Kalman
// gain, the innovation (residual), the lower-triangular factor of the
// innovation covariance H·P·Hᵀ + R, and the predicted observation.
type Update struct {
	Gain             *mat.Dense
	Innovation       *mat.VecDense
	InnovationFactor *mat.TriDense
	PredictedObs     *mat.VecDense
}

// ConditionOn performs Gaussian conditioning (the Kalman measurement update)
// on the observation y with observation matrix H and noise factor sqrtR
// (lower triangular, R = sqrtR·sqrtRᵀ). yhat is the predicted observation;
// pass nil to use H·m, or the nonlinear measurement evaluated at the mean for
// extended-Kalman-type updates.
//
// The update triangularizes the pre-array
//
//	[ sqrtRᵀ   0  ]
//	[ Sᵀ·Hᵀ   Sᵀ ]
//
// whose post-array holds the innovation covariance factor, the gain (after a
// triangular solve), and the posterior covariance factor. No explicit
// inversion is performed. Returns ErrSingularCovariance (wrapped) when the
// innovation factor is singular within tolerance.
func (b *Belief) ConditionOn(H mat.Matrix, sqrtR *mat.TriDense, y, yhat *mat.VecDense) (*Belief, *Update, error) {
	n := b.Dim()
	m, _ := H.Dims()
	if err := checkMatDims(H, b.mean, "H", "mean", cols2rows); err != nil {
		return nil, nil, err
	}
	if err := checkMatDims(sqrtR, H, "sqrtR", "H", rows2rows); err != nil {
		return nil, nil, err
	}
	if err := checkMatDims(y, H, "y", "H", rows2rows); err != nil {
		return nil, nil, err
	}

	if yhat == nil {
		yhat = mat.NewVecDense(m, nil)
		yhat.MulVec(H, b.mean)
	} else if err := checkMatDims(yhat, y, "yhat", "y", rows2rows); err != nil {
		return nil, nil, err
	}

	var HS mat.Dense
	HS.Mul(H, b.sqrt)
	pre := mat.NewDense(m+n, m+n, nil)
	pre.Slice(0, m, 0, m).(*mat.Dense).Copy(sqrtR.T())
	pre.Slice(m, m+n, 0, m).(*mat.Dense).Copy(HS.T())
	pre.Slice(m, m+n, m, m+n).(*mat.Dense).Copy(b.sqrt.T())

	var qr mat.QR
	qr.Factorize(pre)
	var post mat.Dense
	qr.RTo(&post)

	// Normalize row signs so both triangular factors carry a non-negative
	// diagonal; flipping whole rows leaves postᵀ·post unchanged.
	for i := 0; i < m+n; i++ {
		if post.At(i, i) < 0 {
			for j := i; j < m+n; j++ {
				post.Set(i, j, -post.At(i, j))
			}
		}
	}

	// Innovation covariance factor Sy = T11ᵀ (lower).
	maxDiag := 0.0
	for i := 0; i < m; i++ {
		if d := post.At(i, i); d > maxDiag {
			maxDiag = d
		}
	}
	Sy := mat.NewTriDense(m, mat.Lower, nil)
	for i := 0; i < m; i++ {
		if post.At(i, i) <= defaultTol*maxDiag {
			return nil, nil, fmt.Errorf("%w: innovation factor diagonal %g in row %d",
				ErrSingularCovariance, post.At(i, i), i)
		}
		for j := i; j < m; j++ {
			Sy.SetTri(j, i, post.At(i, j))
		}
	}

	// Gain K = P·Hᵀ·(H·P·Hᵀ+R)⁻¹ = T12ᵀ·T11⁻ᵀ via the triangular solve
	// T11·Kᵀ = T12.
	T11 := post.Slice(0, m, 0, m)
	T12 := post.Slice(0, m, m, m+n)
	var Kt mat.Dense
	if err := Kt.Solve(T11, T12); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSingularCovariance, err)
	}
	K := mat.NewDense(n, m, nil)
	K.Copy(Kt.T())

	// Posterior covariance factor Sx = T22ᵀ (lower).
	Sx := mat.NewTriDense(n, mat.Lower, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			Sx.SetTri(j, i, post.At(m+i, m+j))
		}
	}

	innov := mat.NewVecDense(m, nil)
	innov.SubVec(y, yhat)
	mean := mat.NewVecDense(n, nil)
	mean.MulVec(K, innov)
	mean.AddVec(b.mean, mean)

	upd := &Update{
		Gain:             K,
		Innovation:       innov,
		InnovationFactor: Sy,
		PredictedObs:     mat.VecDenseCopyOf(yhat),
	}
	return &Belief{mean: mean, sqrt: Sx}, upd, nil
}
