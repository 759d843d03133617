package filtsmooth

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// TestAgainstDenseKalmanRTS cross-checks the square-root pipeline against a
// plain dense Kalman filter and RTS smoother on the linear ODE ẋ = −x, where
// the Taylor linearization is exact and both recursions compute the same
// posterior.
func TestAgainstDenseKalmanRTS(t *testing.T) {
	const (
		steps  = 20
		obsStd = 1e-8
	)
	model, lin := decaySetup(t, 1)
	ts := grid(0, 1, steps)
	kf, err := NewFilter(model, lin, mat.NewVecDense(1, []float64{1}), ts)
	require.NoError(t, err)
	res, err := kf.Run()
	require.NoError(t, err)
	post, err := Smooth(res)
	require.NoError(t, err)

	n := model.Dim()
	// H = E₁ − J·E₀ with J = −1 for the decay field.
	H := mat.NewDense(1, n, []float64{1, 1})
	R := mat.NewSymDense(1, []float64{obsStd * obsStd})

	init := kf.InitialBelief()
	means := make([]*mat.VecDense, len(ts))
	covs := make([]*mat.SymDense, len(ts))
	predMeans := make([]*mat.VecDense, len(ts))
	predCovs := make([]*mat.SymDense, len(ts))
	means[0] = mat.VecDenseCopyOf(init.Mean())
	covs[0] = denseSym(init.Cov())

	for k := 1; k < len(ts); k++ {
		Δt := ts[k] - ts[k-1]
		Φ, err := model.Transition(Δt)
		require.NoError(t, err)
		Q, err := model.ProcessNoise(Δt)
		require.NoError(t, err)

		mp := mat.NewVecDense(n, nil)
		mp.MulVec(Φ, means[k-1])
		var pp mat.Dense
		pp.Mul(Φ, covs[k-1])
		pp.Mul(&pp, Φ.T())
		Pp := denseSym(&pp)
		Pp.AddSym(Pp, Q)
		predMeans[k], predCovs[k] = mp, Pp

		// Innovation against the zero residual: z = −H·mp.
		var HP mat.Dense
		HP.Mul(H, Pp)
		var S mat.Dense
		S.Mul(&HP, H.T())
		S.Add(&S, R)
		var K mat.Dense
		var PHt mat.Dense
		PHt.Mul(Pp, H.T())
		var Sinv mat.Dense
		require.NoError(t, Sinv.Inverse(&S))
		K.Mul(&PHt, &Sinv)

		z := mat.NewVecDense(1, nil)
		z.MulVec(H, mp)
		z.ScaleVec(-1, z)
		m := mat.VecDenseCopyOf(mp)
		var Kz mat.VecDense
		Kz.MulVec(&K, z)
		m.AddVec(m, &Kz)

		// Joseph form keeps the dense reference numerically honest.
		ikh := eyeDense(n)
		var KH mat.Dense
		KH.Mul(&K, H)
		ikh.Sub(ikh, &KH)
		var P mat.Dense
		P.Mul(ikh, Pp)
		P.Mul(&P, ikh.T())
		var KR mat.Dense
		KR.Mul(&K, R)
		var KRKt mat.Dense
		KRKt.Mul(&KR, K.T())
		P.Add(&P, &KRKt)

		means[k] = m
		covs[k] = denseSym(&P)
	}

	for k := range ts {
		got := res.Filtered(k)
		for i := 0; i < n; i++ {
			require.InDelta(t, means[k].AtVec(i), got.Mean().AtVec(i), 1e-9, "filtered mean, step %d component %d", k, i)
			require.InDelta(t, covs[k].At(i, i), got.Variance(i), 1e-9, "filtered variance, step %d component %d", k, i)
		}
	}

	// Dense RTS backward pass.
	smMeans := make([]*mat.VecDense, len(ts))
	smCovs := make([]*mat.SymDense, len(ts))
	last := len(ts) - 1
	smMeans[last], smCovs[last] = means[last], covs[last]
	for k := last - 1; k >= 0; k-- {
		Δt := ts[k+1] - ts[k]
		Φ, err := model.Transition(Δt)
		require.NoError(t, err)

		var G mat.Dense
		G.Mul(covs[k], Φ.T())
		var Pinv mat.Dense
		require.NoError(t, Pinv.Inverse(predCovs[k+1]))
		G.Mul(&G, &Pinv)

		dm := mat.VecDenseCopyOf(smMeans[k+1])
		dm.SubVec(dm, predMeans[k+1])
		m := mat.VecDenseCopyOf(means[k])
		var Gdm mat.VecDense
		Gdm.MulVec(&G, dm)
		m.AddVec(m, &Gdm)

		var dP mat.Dense
		dP.Sub(smCovs[k+1], predCovs[k+1])
		var GdP mat.Dense
		GdP.Mul(&G, &dP)
		GdP.Mul(&GdP, G.T())
		var P mat.Dense
		P.Add(covs[k], &GdP)

		smMeans[k] = m
		smCovs[k] = denseSym(&P)
	}

	for k := range ts {
		got := post.State(k)
		for i := 0; i < n; i++ {
			require.InDelta(t, smMeans[k].AtVec(i), got.Mean().AtVec(i), 1e-9, "smoothed mean, step %d component %d", k, i)
			require.InDelta(t, smCovs[k].At(i, i), got.Variance(i), 1e-9, "smoothed variance, step %d component %d", k, i)
		}
	}
}

func denseSym(a mat.Matrix) *mat.SymDense {
	r, _ := a.Dims()
	s := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			s.SetSym(i, j, 0.5*(a.At(i, j)+a.At(j, i)))
		}
	}
	return s
}

func eyeDense(n int) *mat.Dense {
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, 1)
	}
	return d
}
