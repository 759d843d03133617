package measure

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/nathanaelbosch/probnum/gauss"
	"github.com/nathanaelbosch/probnum/prior"
)

// decay is the right-hand side of dx/dt = -x.
func decay(t float64, x *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(x.Len(), nil)
	out.ScaleVec(-1, x)
	return out
}

func decayJac(t float64, x *mat.VecDense) *mat.Dense {
	return mat.NewDense(1, 1, []float64{-1})
}

func testModel(t *testing.T) prior.Model {
	t.Helper()
	m, err := prior.NewIWP(1, 1, 1)
	require.NoError(t, err)
	return m
}

func testPredicted(t *testing.T) *gauss.Belief {
	t.Helper()
	b, err := gauss.New(
		mat.NewVecDense(2, []float64{2, 3}),
		mat.NewTriDense(2, mat.Lower, []float64{0.5, 0, 0.1, 0.4}),
	)
	require.NoError(t, err)
	return b
}

func TestEKFLinearizesDecay(t *testing.T) {
	kf := NewEKF(testModel(t), decay, decayJac)
	b := testPredicted(t)

	H, sqrtR, yhat, err := kf.Linearize(0, b)
	require.NoError(t, err)

	// g(m) = E₁m − f(E₀m) = 3 − (−2) = 5.
	require.InDelta(t, 5.0, yhat.AtVec(0), 1e-14)
	// H = E₁ − J·E₀ = [0,1] − (−1)·[1,0] = [1,1].
	require.InDelta(t, 1.0, H.At(0, 0), 1e-14)
	require.InDelta(t, 1.0, H.At(0, 1), 1e-14)
	require.Greater(t, sqrtR.At(0, 0), 0.0)
}

func TestEKFNumericJacobianMatchesAnalytic(t *testing.T) {
	withJac := NewEKF(testModel(t), decay, decayJac)
	without := NewEKF(testModel(t), decay, nil)
	b := testPredicted(t)

	Ha, _, _, err := withJac.Linearize(0, b)
	require.NoError(t, err)
	Hn, _, _, err := without.Linearize(0, b)
	require.NoError(t, err)
	for j := 0; j < 2; j++ {
		require.InDelta(t, Ha.At(0, j), Hn.At(0, j), 1e-6)
	}
}

func TestEKF0SkipsJacobian(t *testing.T) {
	kf := NewEKF0(testModel(t), decay)
	b := testPredicted(t)
	H, _, yhat, err := kf.Linearize(0, b)
	require.NoError(t, err)
	require.InDelta(t, 0.0, H.At(0, 0), 0)
	require.InDelta(t, 1.0, H.At(0, 1), 0)
	require.InDelta(t, 5.0, yhat.AtVec(0), 1e-14)
}

func TestEKFRejectsWrongBeliefDim(t *testing.T) {
	kf := NewEKF(testModel(t), decay, decayJac)
	b, err := gauss.New(mat.NewVecDense(3, nil), mat.NewTriDense(3, mat.Lower, nil))
	require.NoError(t, err)
	var dimErr *gauss.DimensionError
	_, _, _, lerr := kf.Linearize(0, b)
	require.ErrorAs(t, lerr, &dimErr)
}

func TestStatisticalLinearizersRecoverLinearField(t *testing.T) {
	// For a linear vector field the unscented and cubature transforms must
	// reproduce the Taylor linearization (up to the observation jitter).
	b := testPredicted(t)
	model := testModel(t)

	variants := map[string]Linearizer{
		"ukf": NewUKF(model, decay),
		"ckf": NewCKF(model, decay),
	}
	for name, lin := range variants {
		t.Run(name, func(t *testing.T) {
			H, _, yhat, err := lin.Linearize(0, b)
			require.NoError(t, err)
			require.InDelta(t, 5.0, yhat.AtVec(0), 1e-8)
			require.InDelta(t, 1.0, H.At(0, 0), 1e-8)
			require.InDelta(t, 1.0, H.At(0, 1), 1e-8)
		})
	}
}

func TestUKFSigmaParamOverride(t *testing.T) {
	kf := NewUKF(testModel(t), decay)
	kf.SetSigmaParams(1, 0, 3-2) // spread suited to a 2-dimensional state
	b := testPredicted(t)
	H, _, _, err := kf.Linearize(0, b)
	require.NoError(t, err)
	require.InDelta(t, 1.0, H.At(0, 0), 1e-8)
}

func TestFieldAccessor(t *testing.T) {
	kf := NewEKF(testModel(t), decay, nil)
	out := kf.Field()(0, mat.NewVecDense(1, []float64{4}))
	require.InDelta(t, -4.0, out.AtVec(0), 0)
}
