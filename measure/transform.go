package measure

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/nathanaelbosch/probnum/gauss"
)

// statLinearize performs statistical linearization through a deterministic
// point set: the residual is propagated through every point, and the
// cross-covariance with the state yields an affine observation model
// H = C_xzᵀ·P⁻¹ with effective noise R = C_zz − H·C_xz. The same
// (H, sqrtR, ŷ) triple as the Taylor variant comes out, so the conditioning
// step is oblivious to how the linearization was obtained.
func (m *odeModel) statLinearize(t float64, b *gauss.Belief, pts []*mat.VecDense, wm, wc []float64) (*mat.Dense, *mat.TriDense, *mat.VecDense, error) {
	if err := m.checkBelief(b); err != nil {
		return nil, nil, nil, err
	}
	n := m.stateDim()
	d := m.d
	mean := b.Mean()

	zs := make([]*mat.VecDense, len(pts))
	for i, p := range pts {
		z, err := m.residual(t, p)
		if err != nil {
			return nil, nil, nil, err
		}
		zs[i] = z
	}

	zhat := mat.NewVecDense(d, nil)
	for i, z := range zs {
		zhat.AddScaledVec(zhat, wm[i], z)
	}

	Cxz := mat.NewDense(n, d, nil)
	Czz := mat.NewDense(d, d, nil)
	dx := mat.NewVecDense(n, nil)
	dz := mat.NewVecDense(d, nil)
	var outer mat.Dense
	for i := range pts {
		dx.SubVec(pts[i], mean)
		dz.SubVec(zs[i], zhat)
		outer.Reset()
		outer.Outer(wc[i], dx, dz)
		Cxz.Add(Cxz, &outer)
		outer.Reset()
		outer.Outer(wc[i], dz, dz)
		Czz.Add(Czz, &outer)
	}

	// H = (P⁻¹·C_xz)ᵀ through the belief's factor, no explicit inverse.
	X, err := b.CovSolve(Cxz)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("measure: statistical linearization: %w", err)
	}
	H := mat.NewDense(d, n, nil)
	H.Copy(X.T())

	// Effective noise: the lack-of-fit term C_zz − H·C_xz plus jitter.
	var HC mat.Dense
	HC.Mul(H, Cxz)
	R := mat.NewSymDense(d, nil)
	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			v := 0.5 * (Czz.At(i, j) - HC.At(i, j) + Czz.At(j, i) - HC.At(j, i))
			R.SetSym(i, j, v)
		}
		R.SetSym(i, i, R.At(i, i)+m.obsStd*m.obsStd)
	}
	sqrtR, err := gauss.FactorizeSym(R)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("measure: statistical linearization: %w", err)
	}
	return H, sqrtR, zhat, nil
}

// spread builds the point set m ± scale·S·e_j from the belief's covariance
// factor, optionally including the center point first.
func spread(b *gauss.Belief, scale float64, center bool) []*mat.VecDense {
	n := b.Dim()
	mean := b.Mean()
	s := b.SqrtCov()
	var pts []*mat.VecDense
	if center {
		pts = append(pts, mat.VecDenseCopyOf(mean))
	}
	for j := 0; j < n; j++ {
		up := mat.NewVecDense(n, nil)
		dn := mat.NewVecDense(n, nil)
		for i := 0; i < n; i++ {
			up.SetVec(i, mean.AtVec(i)+scale*s.At(i, j))
			dn.SetVec(i, mean.AtVec(i)-scale*s.At(i, j))
		}
		pts = append(pts, up, dn)
	}
	return pts
}
