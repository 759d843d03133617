// Package filtsmooth drives the Bayesian filtering and smoothing recursion of
// the probabilistic ODE solver: a forward (filtering) pass alternating
// prediction under the prior with conditioning on the zero ODE residual, a
// backward (smoothing) pass refining every belief with information from later
// time points, and post-hoc calibration of the diffusion scale from the
// realized innovations.
package filtsmooth

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/nathanaelbosch/probnum/gauss"
	"github.com/nathanaelbosch/probnum/measure"
	"github.com/nathanaelbosch/probnum/prior"
)

// diracStd models the exactly known initial value: near-zero observation
// noise on the conditioned components.
const diracStd = 1e-14

// DivergenceError reports a failed update during the forward pass, tagged
// with the grid index and time at which filtering diverged. The run is
// aborted: a corrupted belief would poison all subsequent steps.
type DivergenceError struct {
	Index int
	Time  float64
	Err   error
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("filtsmooth: filter diverged at step %d (t=%g): %v", e.Index, e.Time, e.Err)
}

func (e *DivergenceError) Unwrap() error { return e.Err }

// Innovation records the residual diagnostics of one update step, the raw
// material for calibration and consistency testing.
type Innovation struct {
	Index     int
	Time      float64
	Residual  *mat.VecDense
	CovFactor *mat.TriDense // lower-triangular factor of the innovation covariance
}

// Filter runs the forward pass of the ODE filter over a fixed time grid.
// Construct with NewFilter, then call Run. A Filter owns no shared state and
// is cheap to construct, so independent solves can run concurrently each with
// their own Filter.
type Filter struct {
	model prior.Model
	lin   measure.Linearizer
	ts    []float64
	init  *gauss.Belief
}

// NewFilter validates the time grid and prepares the initial belief: the
// prior's stationary covariance conditioned on the known initial value x(t0),
// and on ẋ(t0) = f(t0, x0) when the prior tracks at least one derivative.
// A non-increasing grid fails with prior.ErrInvalidStepSize before any
// computation proceeds.
func NewFilter(model prior.Model, lin measure.Linearizer, x0 *mat.VecDense, ts []float64) (*Filter, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("%w: empty time grid", prior.ErrInvalidStepSize)
	}
	for i := 1; i < len(ts); i++ {
		if ts[i] <= ts[i-1] {
			return nil, fmt.Errorf("%w: grid entry %d (t=%g) does not increase past t=%g",
				prior.ErrInvalidStepSize, i, ts[i], ts[i-1])
		}
	}
	if x0.Len() != model.SpatialDim() {
		return nil, &gauss.DimensionError{
			Name1: "x0", Name2: "model",
			R1: x0.Len(), C1: 1, R2: model.SpatialDim(), C2: 1,
		}
	}
	if lin.Dim() != model.SpatialDim() {
		return nil, &gauss.DimensionError{
			Name1: "measurement model", Name2: "prior",
			R1: lin.Dim(), C1: 1, R2: model.SpatialDim(), C2: 1,
		}
	}

	init, err := initialBelief(model, lin, x0, ts[0])
	if err != nil {
		return nil, err
	}
	grid := make([]float64, len(ts))
	copy(grid, ts)
	return &Filter{model: model, lin: lin, ts: grid, init: init}, nil
}

// InitialBelief returns a copy of the belief at t0.
func (kf *Filter) InitialBelief() *gauss.Belief {
	return kf.init.Clone()
}

// Run executes the forward pass: for each grid index, predict under the
// prior, linearize the measurement model at the predicted belief, and
// condition on the observation that the ODE residual is zero. Returns the
// full filtered sequence with the per-step caches the smoother needs. Any
// failing update surfaces as a *DivergenceError; no step is skipped.
func (kf *Filter) Run() (*Result, error) {
	n := len(kf.ts)
	res := &Result{
		model:        kf.model,
		ts:           kf.ts,
		filtered:     make([]*gauss.Belief, n),
		predicted:    make([]*gauss.Belief, n),
		transitions:  make([]*mat.Dense, n),
		noiseFactors: make([]*mat.TriDense, n),
		innovations:  make([]Innovation, 0, n-1),
	}
	res.filtered[0] = kf.init.Clone()
	res.predicted[0] = kf.init.Clone()

	zero := mat.NewVecDense(kf.lin.Dim(), nil)
	for i := 1; i < n; i++ {
		t := kf.ts[i]
		Φ, sqrtQ, err := prior.Discretize(kf.model, t-kf.ts[i-1])
		if err != nil {
			return nil, &DivergenceError{Index: i, Time: t, Err: err}
		}
		pred, err := res.filtered[i-1].Marginalize(Φ, sqrtQ)
		if err != nil {
			return nil, &DivergenceError{Index: i, Time: t, Err: err}
		}
		H, sqrtR, yhat, err := kf.lin.Linearize(t, pred)
		if err != nil {
			return nil, &DivergenceError{Index: i, Time: t, Err: err}
		}
		post, upd, err := pred.ConditionOn(H, sqrtR, zero, yhat)
		if err != nil {
			return nil, &DivergenceError{Index: i, Time: t, Err: err}
		}

		res.filtered[i] = post
		res.predicted[i] = pred
		res.transitions[i] = Φ
		res.noiseFactors[i] = sqrtQ
		res.innovations = append(res.innovations, Innovation{
			Index:     i,
			Time:      t,
			Residual:  upd.Innovation,
			CovFactor: upd.InnovationFactor,
		})
	}
	return res, nil
}

// Result is the output of the forward pass: one filtered belief per grid
// point plus the prediction caches consumed by the smoother. The Filter owns
// the sequence during Run and hands it over immutable; accessors return the
// stored snapshots.
type Result struct {
	model        prior.Model
	ts           []float64
	filtered     []*gauss.Belief
	predicted    []*gauss.Belief
	transitions  []*mat.Dense
	noiseFactors []*mat.TriDense
	innovations  []Innovation
}

// Len returns the number of grid points.
func (r *Result) Len() int { return len(r.ts) }

// Time returns the i-th grid time.
func (r *Result) Time(i int) float64 { return r.ts[i] }

// Filtered returns the filtered belief at grid index i.
func (r *Result) Filtered(i int) *gauss.Belief { return r.filtered[i] }

// Innovations returns the innovation records accumulated during filtering,
// one per update step (grid length minus one).
func (r *Result) Innovations() []Innovation { return r.innovations }

func initialBelief(model prior.Model, lin measure.Linearizer, x0 *mat.VecDense, t0 float64) (*gauss.Belief, error) {
	d := model.SpatialDim()
	b, err := gauss.NewFromCov(mat.NewVecDense(model.Dim(), nil), model.StationaryCov())
	if err != nil {
		return nil, err
	}

	dirac := mat.NewTriDense(d, mat.Lower, nil)
	for i := 0; i < d; i++ {
		dirac.SetTri(i, i, diracStd)
	}

	e0 := prior.Projection(model.Order(), d, 0)
	if b, _, err = b.ConditionOn(e0, dirac, x0, nil); err != nil {
		return nil, err
	}
	if model.Order() >= 1 {
		fx := lin.Field()(t0, x0)
		if fx.Len() != d {
			return nil, &gauss.DimensionError{Name1: "f(t0,x0)", Name2: "model", R1: fx.Len(), C1: 1, R2: d, C2: 1}
		}
		e1 := prior.Projection(model.Order(), d, 1)
		if b, _, err = b.ConditionOn(e1, dirac, fx, nil); err != nil {
			return nil, err
		}
	}
	return b, nil
}
