package filtsmooth

import (
	"fmt"
	"sort"

	"github.com/nathanaelbosch/probnum/gauss"
	"github.com/nathanaelbosch/probnum/prior"
)

// Posterior is the smoothed sequence of beliefs, addressable by grid index or
// interpolated continuously between grid points. It is owned by the caller
// after return and never mutated by the package.
type Posterior struct {
	model   prior.Model
	ts      []float64
	beliefs []*gauss.Belief
}

// Len returns the number of grid points.
func (p *Posterior) Len() int { return len(p.ts) }

// Time returns the i-th grid time.
func (p *Posterior) Time(i int) float64 { return p.ts[i] }

// Times returns a copy of the time grid.
func (p *Posterior) Times() []float64 {
	out := make([]float64, len(p.ts))
	copy(out, p.ts)
	return out
}

// State returns the smoothed belief at grid index i.
func (p *Posterior) State(i int) *gauss.Belief { return p.beliefs[i] }

// At evaluates the posterior at an arbitrary time t ≥ t0 (dense output). An
// exact grid hit returns a copy of the stored belief. An interior t is the
// Gauss-Markov bridge between its neighbors: the left smoothed belief is
// predicted to t and refined with one backward smoothing step against the
// right smoothed belief. Beyond the last grid point the posterior
// extrapolates by prediction alone.
func (p *Posterior) At(t float64) (*gauss.Belief, error) {
	if t < p.ts[0] {
		return nil, fmt.Errorf("%w: t=%g precedes the initial time %g", prior.ErrInvalidStepSize, t, p.ts[0])
	}
	i := sort.SearchFloat64s(p.ts, t)
	if i < len(p.ts) && p.ts[i] == t {
		return p.beliefs[i].Clone(), nil
	}
	last := len(p.ts) - 1
	if t > p.ts[last] {
		Φ, sqrtQ, err := prior.Discretize(p.model, t-p.ts[last])
		if err != nil {
			return nil, err
		}
		return p.beliefs[last].Marginalize(Φ, sqrtQ)
	}

	left, right := i-1, i
	Φl, sqrtQl, err := prior.Discretize(p.model, t-p.ts[left])
	if err != nil {
		return nil, err
	}
	bridged, err := p.beliefs[left].Marginalize(Φl, sqrtQl)
	if err != nil {
		return nil, err
	}
	Φr, sqrtQr, err := prior.Discretize(p.model, p.ts[right]-t)
	if err != nil {
		return nil, err
	}
	predicted, err := bridged.Marginalize(Φr, sqrtQr)
	if err != nil {
		return nil, err
	}
	return gauss.RTSStep(bridged, predicted, p.beliefs[right], Φr, sqrtQr)
}
