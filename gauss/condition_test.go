package gauss

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// denseCov multiplies out a factor for reference computations.
func denseCov(s *mat.TriDense) *mat.Dense {
	var p mat.Dense
	p.Mul(s, s.T())
	return &p
}

func TestMarginalizeMatchesDenseRecursion(t *testing.T) {
	b := testBelief(t)
	Φ := mat.NewDense(2, 2, []float64{1, 0.1, 0, 1})
	sqrtQ := mat.NewTriDense(2, mat.Lower, []float64{0.02, 0, 0.01, 0.05})

	pred, err := b.Marginalize(Φ, sqrtQ)
	require.NoError(t, err)

	// Reference: m' = Φ·m, P' = Φ·P·Φᵀ + Q.
	var wantMean mat.VecDense
	wantMean.MulVec(Φ, b.Mean())
	var ΦP, wantCov mat.Dense
	ΦP.Mul(Φ, denseCov(b.SqrtCov()))
	wantCov.Mul(&ΦP, Φ.T())
	wantCov.Add(&wantCov, denseCov(sqrtQ))

	gotCov := pred.Cov()
	for i := 0; i < 2; i++ {
		require.InDelta(t, wantMean.AtVec(i), pred.Mean().AtVec(i), 1e-14)
		for j := 0; j < 2; j++ {
			require.InDelta(t, wantCov.At(i, j), gotCov.At(i, j), 1e-13)
		}
	}
}

func TestMarginalizeDimensionChecks(t *testing.T) {
	b := testBelief(t)
	var dimErr *DimensionError
	_, err := b.Marginalize(mat.NewDense(3, 2, nil), mat.NewTriDense(2, mat.Lower, nil))
	require.ErrorAs(t, err, &dimErr)
	_, err = b.Marginalize(mat.NewDense(2, 2, nil), mat.NewTriDense(3, mat.Lower, nil))
	require.ErrorAs(t, err, &dimErr)
}

func TestConditionOnMatchesDenseUpdate(t *testing.T) {
	b := testBelief(t)
	H := mat.NewDense(1, 2, []float64{1, 0})
	sqrtR := mat.NewTriDense(1, mat.Lower, []float64{0.1})
	y := mat.NewVecDense(1, []float64{0.3})

	post, upd, err := b.ConditionOn(H, sqrtR, y, nil)
	require.NoError(t, err)

	// Dense reference update.
	P := denseCov(b.SqrtCov())
	var PHt, S, K mat.Dense
	PHt.Mul(P, H.T())
	S.Mul(H, &PHt)
	S.Add(&S, denseCov(sqrtR))
	K.Scale(1/S.At(0, 0), &PHt)

	innov := y.AtVec(0) - b.Mean().AtVec(0)
	require.InDelta(t, innov, upd.Innovation.AtVec(0), 1e-14)
	require.InDelta(t, S.At(0, 0), upd.InnovationFactor.At(0, 0)*upd.InnovationFactor.At(0, 0), 1e-13)
	require.InDelta(t, b.Mean().AtVec(0), upd.PredictedObs.AtVec(0), 1e-14)

	var KH, josephL, wantCov, KRK mat.Dense
	KH.Mul(&K, H)
	josephL.Sub(eye(2), &KH)
	var tmp mat.Dense
	tmp.Mul(&josephL, P)
	wantCov.Mul(&tmp, josephL.T())
	KRK.Mul(&K, denseCov(sqrtR))
	var KRKt mat.Dense
	KRKt.Mul(&KRK, K.T())
	wantCov.Add(&wantCov, &KRKt)

	gotCov := post.Cov()
	for i := 0; i < 2; i++ {
		wantMean := b.Mean().AtVec(i) + K.At(i, 0)*innov
		require.InDelta(t, wantMean, post.Mean().AtVec(i), 1e-13)
		require.InDelta(t, K.At(i, 0), upd.Gain.At(i, 0), 1e-13)
		for j := 0; j < 2; j++ {
			require.InDelta(t, wantCov.At(i, j), gotCov.At(i, j), 1e-13)
		}
	}
}

func TestConditionOnExplicitPrediction(t *testing.T) {
	// Passing yhat shifts only the innovation, exactly as the EKF needs.
	b := testBelief(t)
	H := mat.NewDense(1, 2, []float64{1, 0})
	sqrtR := mat.NewTriDense(1, mat.Lower, []float64{0.1})
	y := mat.NewVecDense(1, []float64{0.3})
	yhat := mat.NewVecDense(1, []float64{0.25})

	_, upd, err := b.ConditionOn(H, sqrtR, y, yhat)
	require.NoError(t, err)
	require.InDelta(t, 0.05, upd.Innovation.AtVec(0), 1e-14)
}

func TestConditionOnSingularInnovation(t *testing.T) {
	// A zero observation matrix with zero noise leaves nothing to invert.
	b := testBelief(t)
	H := mat.NewDense(1, 2, nil)
	sqrtR := mat.NewTriDense(1, mat.Lower, []float64{0})
	_, _, err := b.ConditionOn(H, sqrtR, mat.NewVecDense(1, nil), nil)
	if !errors.Is(err, ErrSingularCovariance) {
		t.Fatalf("want ErrSingularCovariance, got %v", err)
	}
}

func TestSquareRootChainStaysPSD(t *testing.T) {
	// A long predict/update chain must keep every covariance factorizable;
	// this is the property the square-root form exists for.
	b := testBelief(t)
	Φ := mat.NewDense(2, 2, []float64{1, 0.01, 0, 1})
	sqrtQ := mat.NewTriDense(2, mat.Lower, []float64{1e-6, 0, 0, 1e-6})
	H := mat.NewDense(1, 2, []float64{1, 0})
	sqrtR := mat.NewTriDense(1, mat.Lower, []float64{1e-5})
	y := mat.NewVecDense(1, nil)

	var err error
	for k := 0; k < 2000; k++ {
		if b, err = b.Marginalize(Φ, sqrtQ); err != nil {
			t.Fatalf("step %d predict: %v", k, err)
		}
		if b, _, err = b.ConditionOn(H, sqrtR, y, nil); err != nil {
			t.Fatalf("step %d update: %v", k, err)
		}
		for i := 0; i < 2; i++ {
			if b.Variance(i) < 0 {
				t.Fatalf("step %d: negative variance in component %d", k, i)
			}
		}
	}
}

func TestRTSStepMatchesDenseRecursion(t *testing.T) {
	filt := testBelief(t)
	Φ := mat.NewDense(2, 2, []float64{1, 0.1, 0, 1})
	sqrtQ := mat.NewTriDense(2, mat.Lower, []float64{0.03, 0, 0.01, 0.02})

	pred, err := filt.Marginalize(Φ, sqrtQ)
	require.NoError(t, err)
	next, err := New(
		mat.NewVecDense(2, []float64{0.05, -0.15}),
		mat.NewTriDense(2, mat.Lower, []float64{0.8, 0, 0.1, 0.9}),
	)
	require.NoError(t, err)

	sm, err := RTSStep(filt, pred, next, Φ, sqrtQ)
	require.NoError(t, err)

	// Dense reference: G = P_f·Φᵀ·P_pred⁻¹, m_s = m_f + G(m_next − m_pred),
	// P_s = P_f + G(P_next − P_pred)Gᵀ.
	Pf := denseCov(filt.SqrtCov())
	Pp := denseCov(pred.SqrtCov())
	Pn := denseCov(next.SqrtCov())
	var PfΦt, PpInv, G mat.Dense
	PfΦt.Mul(Pf, Φ.T())
	require.NoError(t, PpInv.Inverse(Pp))
	G.Mul(&PfΦt, &PpInv)

	var dm, wantMean mat.VecDense
	dm.SubVec(next.Mean(), pred.Mean())
	wantMean.MulVec(&G, &dm)
	wantMean.AddVec(filt.Mean(), &wantMean)

	var dP, GdP, wantCov mat.Dense
	dP.Sub(Pn, Pp)
	GdP.Mul(&G, &dP)
	wantCov.Mul(&GdP, G.T())
	wantCov.Add(Pf, &wantCov)

	gotCov := sm.Cov()
	for i := 0; i < 2; i++ {
		require.InDelta(t, wantMean.AtVec(i), sm.Mean().AtVec(i), 1e-12)
		for j := 0; j < 2; j++ {
			require.InDelta(t, wantCov.At(i, j), gotCov.At(i, j), 1e-11)
		}
	}
}

func eye(n int) *mat.Dense {
	out := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		out.Set(i, i, 1)
	}
	return out
}
