// Package derived is the derived-metric computer (C4): given the
// per-strike rows of a completed bucket, produces the expiry-level PCR
// and max-pain strike.
package derived

import (
	"gonum.org/v1/gonum/floats"

	"github.com/foaggregator/fo-aggregator/internal/domain"
)

// StrikeVolumes is the minimal per-strike input max-pain needs: the
// strike itself and its call/put volumes for the bucket.
type StrikeVolumes struct {
	Strike     float64
	CallVolume float64
	PutVolume  float64
}

// Compute returns the PCR and max-pain strike for one completed bucket's
// strike rows (spec.md §4.4).
func Compute(rows []StrikeVolumes) (pcr *float64, maxPain *float64) {
	var totalCall, totalPut float64
	for _, r := range rows {
		totalCall += r.CallVolume
		totalPut += r.PutVolume
	}

	if totalCall > 0 {
		v := totalPut / totalCall
		pcr = &v
	}

	maxPain = MaxPainStrike(rows)
	return pcr, maxPain
}

// MaxPainStrike evaluates the aggregate option-holder pain function at
// each observed strike candidate and returns the argmin; ties broken by
// the smallest strike (P4). Returns nil if rows is empty.
func MaxPainStrike(rows []StrikeVolumes) *float64 {
	if len(rows) == 0 {
		return nil
	}

	var best float64
	bestPain := -1.0
	haveBest := false

	for _, candidate := range rows {
		pain := painAt(candidate.Strike, rows)
		if !haveBest || pain < bestPain || (pain == bestPain && candidate.Strike < best) {
			best = candidate.Strike
			bestPain = pain
			haveBest = true
		}
	}
	return &best
}

// painAt evaluates Σ_j max(0, s_j - c)*call_vol_j + max(0, c - s_j)*put_vol_j
// for candidate settlement price c over the observed strikes (spec.md §3).
// Unlike the aggregator's per-tick Greek/IV averaging, every row here is
// already materialized in one bucket's strike slice, so the per-strike
// contributions are summed via gonum/floats as a genuine vectorized
// reduction rather than a manual loop.
func painAt(c float64, rows []StrikeVolumes) float64 {
	contributions := make([]float64, 0, len(rows)*2)
	for _, r := range rows {
		if r.Strike > c {
			contributions = append(contributions, (r.Strike-c)*r.CallVolume)
		}
		if c > r.Strike {
			contributions = append(contributions, (c-r.Strike)*r.PutVolume)
		}
	}
	return floats.Sum(contributions)
}

// StrikeVolumesFromBars extracts the max-pain/PCR input from a set of
// flushed strike bars belonging to the same bucket.
func StrikeVolumesFromBars(bars []domain.StrikeBar) []StrikeVolumes {
	out := make([]StrikeVolumes, len(bars))
	for i, b := range bars {
		out[i] = StrikeVolumes{Strike: b.Strike, CallVolume: b.CallVolume, PutVolume: b.PutVolume}
	}
	return out
}
