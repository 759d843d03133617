package filtsmooth

import (
	"fmt"

	"github.com/nathanaelbosch/probnum/gauss"
)

// Smooth runs the backward Rauch-Tung-Striebel pass over a filter result and
// returns the smoothed posterior. The belief at the final grid index is the
// filtered one, copied bit-for-bit: no future information exists there. Each
// earlier index is refined with the cached prediction and transition from the
// forward pass.
func Smooth(r *Result) (*Posterior, error) {
	n := r.Len()
	smoothed := make([]*gauss.Belief, n)
	smoothed[n-1] = r.filtered[n-1].Clone()
	for i := n - 2; i >= 0; i-- {
		b, err := gauss.RTSStep(r.filtered[i], r.predicted[i+1], smoothed[i+1], r.transitions[i+1], r.noiseFactors[i+1])
		if err != nil {
			return nil, fmt.Errorf("filtsmooth: smoothing failed at step %d (t=%g): %w", i, r.ts[i], err)
		}
		smoothed[i] = b
	}
	return &Posterior{model: r.model, ts: r.ts, beliefs: smoothed}, nil
}
