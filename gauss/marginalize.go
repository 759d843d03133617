package gauss

import (
	"gonum.org/v1/gonum/mat"
)

// Marginalize propagates the belief through linear dynamics: the returned
// belief has mean Φ·m and covariance Φ·P·Φᵀ + Q, where Q = sqrtQ·sqrtQᵀ.
// The covariance update triangularizes the stacked pre-array
//
//	[ Sᵀ·Φᵀ ]
//	[ sqrtQᵀ ]
//
// by QR instead of forming Φ·P·Φᵀ explicitly, which keeps the result PSD over
// long step chains.
func (b *Belief) Marginalize(Φ mat.Matrix, sqrtQ *mat.TriDense) (*Belief, error) {
	n := b.Dim()
	if err := checkMatDims(Φ, Φ, "Φ", "Φ", rows2cols); err != nil {
		return nil, err
	}
	if err := checkMatDims(Φ, b.mean, "Φ", "mean", cols2rows); err != nil {
		return nil, err
	}
	if err := checkMatDims(sqrtQ, b.sqrt, "sqrtQ", "factor", rowsAndcols); err != nil {
		return nil, err
	}

	mean := mat.NewVecDense(n, nil)
	mean.MulVec(Φ, b.mean)

	var ΦS mat.Dense
	ΦS.Mul(Φ, b.sqrt)
	stacked := mat.NewDense(2*n, n, nil)
	stacked.Slice(0, n, 0, n).(*mat.Dense).Copy(ΦS.T())
	stacked.Slice(n, 2*n, 0, n).(*mat.Dense).Copy(sqrtQ.T())

	return &Belief{mean: mean, sqrt: qrSqrt(stacked)}, nil
}
