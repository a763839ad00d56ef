// Package beatmap derives the rhythmic cue timeline visual transitions are
// aligned to. Tempo detection is a replaceable strategy; the default builder
// uses a fixed-interval heuristic rather than real onset analysis.
package beatmap

import (
	"math"
	"sort"
)

// Epsilon within which two cue times are considered the same beat.
const cueEpsilon = 0.010

// BeatMap models the tempo and cue times of one render, in seconds from the
// start of the output. CueTimes is sorted ascending, deduplicated within
// cueEpsilon, and bounded by [0, duration]. StrongBeats and DropMoments are
// subsets of CueTimes.
type BeatMap struct {
	BPM         float64   `json:"bpm"`
	CueTimes    []float64 `json:"cue_times"`
	StrongBeats []float64 `json:"strong_beats"`
	DropMoments []float64 `json:"drop_moments,omitempty"`
}

// Nearest returns the cue time closest to t, or t itself when the map has no
// cues.
func (m BeatMap) Nearest(t float64) float64 {
	if len(m.CueTimes) == 0 {
		return t
	}
	idx := sort.SearchFloat64s(m.CueTimes, t)
	if idx == 0 {
		return m.CueTimes[0]
	}
	if idx == len(m.CueTimes) {
		return m.CueTimes[len(m.CueTimes)-1]
	}
	before := m.CueTimes[idx-1]
	after := m.CueTimes[idx]
	if t-before <= after-t {
		return before
	}
	return after
}

// NearestIn returns the cue time closest to t that lies inside [lo, hi].
// When no cue falls in the window, t is returned clamped to the window.
func (m BeatMap) NearestIn(t, lo, hi float64) float64 {
	best := math.NaN()
	bestDist := math.Inf(1)
	for _, cue := range m.CueTimes {
		if cue < lo-cueEpsilon || cue > hi+cueEpsilon {
			continue
		}
		if d := math.Abs(cue - t); d < bestDist {
			best = cue
			bestDist = d
		}
	}
	if math.IsNaN(best) {
		return math.Max(lo, math.Min(hi, t))
	}
	return math.Max(lo, math.Min(hi, best))
}

// BeatInterval returns the seconds between consecutive beats.
func (m BeatMap) BeatInterval() float64 {
	if m.BPM <= 0 {
		return 0
	}
	return 60 / m.BPM
}

// mergeCues merges, clamps, sorts, and deduplicates cue sets.
func mergeCues(duration float64, sets ...[]float64) []float64 {
	var merged []float64
	for _, set := range sets {
		for _, t := range set {
			if t < 0 || t > duration {
				continue
			}
			merged = append(merged, t)
		}
	}
	sort.Float64s(merged)

	var out []float64
	for _, t := range merged {
		if len(out) > 0 && t-out[len(out)-1] < cueEpsilon {
			continue
		}
		out = append(out, t)
	}
	return out
}
