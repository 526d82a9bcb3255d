// Package scoring holds the pure consensus and evidence-credibility math.
package scoring

import "math"

// DefaultFloorStdDev is the minimum standard deviation assumed for a
// suggestion's votes. Thin samples would otherwise report near-zero
// spread and produce over-confident scores.
const DefaultFloorStdDev = 0.25

// Tally is the running aggregate of evaluation votes in [-1, 1].
// Folding votes in is associative and commutative, so concurrent
// submissions converge to the same tally regardless of arrival order.
type Tally struct {
	Count      int
	Sum        float64
	SumSquares float64
}

func (t Tally) Add(value float64) Tally {
	return Tally{
		Count:      t.Count + 1,
		Sum:        t.Sum + value,
		SumSquares: t.SumSquares + value*value,
	}
}

// Replace swaps a previously folded vote for a new value, used when an
// evaluator changes their vote.
func (t Tally) Replace(old, value float64) Tally {
	return Tally{
		Count:      t.Count,
		Sum:        t.Sum - old + value,
		SumSquares: t.SumSquares - old*old + value*value,
	}
}

func (t Tally) Merge(other Tally) Tally {
	return Tally{
		Count:      t.Count + other.Count,
		Sum:        t.Sum + other.Sum,
		SumSquares: t.SumSquares + other.SumSquares,
	}
}

func (t Tally) Mean() float64 {
	if t.Count == 0 {
		return 0
	}
	return t.Sum / float64(t.Count)
}

// StandardError estimates the remaining uncertainty of the tally's
// mean, with the deviation floored at floorStdDev. An empty tally is
// maximally uncertain.
func StandardError(t Tally, floorStdDev float64) float64 {
	if floorStdDev <= 0 {
		floorStdDev = DefaultFloorStdDev
	}
	if t.Count == 0 {
		return floorStdDev
	}
	mean := t.Mean()
	variance := t.SumSquares/float64(t.Count) - mean*mean
	if variance < 0 {
		variance = 0
	}
	stdDev := math.Sqrt(variance)
	if stdDev < floorStdDev {
		stdDev = floorStdDev
	}
	return stdDev / math.Sqrt(float64(t.Count))
}

// Agreement collapses a vote tally into a bounded consensus score in
// [-1, 1]. The mean is penalized by its standard error so that a
// thin or noisy sample scores pessimistically; the penalty is capped
// at the distance to the theoretical minimum of -1 so the result
// never drops below it.
func Agreement(t Tally, floorStdDev float64) float64 {
	if t.Count == 0 {
		return 0
	}
	mean := t.Mean()
	penalty := StandardError(t, floorStdDev)
	if available := mean + 1; penalty > available {
		penalty = available
	}
	return mean - penalty
}
