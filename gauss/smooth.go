package gauss

import (
	"gonum.org/v1/gonum/mat"
)

// RTSStep performs one backward fixed-interval (Rauch-Tung-Striebel)
// smoothing step. filtered is the filtered belief at index i, predicted the
// prediction at index i+1 obtained from it with transition Φ and noise factor
// sqrtQ, and next the already-smoothed belief at index i+1. The smoothing
// gain G = P_f·Φᵀ·P_pred⁻¹ is obtained through the predicted belief's factor
// (same tolerance and jitter policy as the forward pass), and the covariance
// is rebuilt in square-root form from the stacked pre-array
//
//	[ S_fᵀ·(I−G·Φ)ᵀ ]
//	[ sqrtQᵀ·Gᵀ     ]
//	[ S_nextᵀ·Gᵀ    ]
//
// which is the Joseph-style RTS covariance
// (I−GΦ)·P_f·(I−GΦ)ᵀ + G·Q·Gᵀ + G·P_next·Gᵀ: every term is PSD, so the
// recursion cannot lose definiteness even when Q has near-zero entries.
func RTSStep(filtered, predicted, next *Belief, Φ mat.Matrix, sqrtQ *mat.TriDense) (*Belief, error) {
	n := filtered.Dim()
	if err := checkMatDims(filtered.mean, next.mean, "filtered", "next", rows2rows); err != nil {
		return nil, err
	}
	if err := checkMatDims(filtered.mean, predicted.mean, "filtered", "predicted", rows2rows); err != nil {
		return nil, err
	}

	// Gᵀ from P_pred·Gᵀ = Φ·P_f.
	var ΦPf mat.Dense
	ΦPf.Mul(Φ, filtered.Cov())
	Gt, err := predicted.CovSolve(&ΦPf)
	if err != nil {
		return nil, err
	}
	G := mat.NewDense(n, n, nil)
	G.Copy(Gt.T())

	mean := mat.NewVecDense(n, nil)
	mean.SubVec(next.mean, predicted.mean)
	mean.MulVec(G, mean)
	mean.AddVec(filtered.mean, mean)

	var GΦ mat.Dense
	GΦ.Mul(G, Φ)
	ImGΦ := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		ImGΦ.Set(i, i, 1)
	}
	ImGΦ.Sub(ImGΦ, &GΦ)

	var top, mid, bot mat.Dense
	top.Mul(ImGΦ, filtered.sqrt)
	mid.Mul(G, sqrtQ)
	bot.Mul(G, next.sqrt)

	stacked := mat.NewDense(3*n, n, nil)
	stacked.Slice(0, n, 0, n).(*mat.Dense).Copy(top.T())
	stacked.Slice(n, 2*n, 0, n).(*mat.Dense).Copy(mid.T())
	stacked.Slice(2*n, 3*n, 0, n).(*mat.Dense).Copy(bot.T())

	return &Belief{mean: mean, sqrt: qrSqrt(stacked)}, nil
}
