// Package sampler selects which suggestions a user evaluates next.
package sampler

import (
	"math/rand"

	"concord/api/internal/scoring"
)

// Candidate is a suggestion in the sampling pool together with its
// evaluation tally.
type Candidate struct {
	ID              string
	Tally           scoring.Tally
	Hidden          bool
	EvaluatedByUser bool
}

type Config struct {
	BatchSize int
	// A candidate with at least StableMinEvaluations votes and a
	// standard error at or below StableMaxStdErr is considered settled
	// and is not surfaced again.
	StableMinEvaluations int
	StableMaxStdErr      float64
	FloorStdDev          float64
	// Candidates with fewer evaluations than this count toward the
	// low-evaluation stat.
	LowEvaluationCount int
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 6
	}
	if c.StableMinEvaluations <= 0 {
		c.StableMinEvaluations = 12
	}
	if c.StableMaxStdErr <= 0 {
		c.StableMaxStdErr = 0.12
	}
	if c.FloorStdDev <= 0 {
		c.FloorStdDev = scoring.DefaultFloorStdDev
	}
	if c.LowEvaluationCount <= 0 {
		c.LowEvaluationCount = 3
	}
	return c
}

type Request struct {
	UserID     string
	Size       int
	ExcludeIDs []string
}

type Stats struct {
	Eligible      int `json:"eligible"`
	Fresh         int `json:"fresh"`
	LowEvaluation int `json:"lowEvaluation"`
}

type Result struct {
	Selected []Candidate
	HasMore  bool
	Stats    Stats
}

// Select draws a batch by priority-weighted sampling without
// replacement. Priority combines an under-evaluation boost with the
// tally's remaining uncertainty, so repeated calls surface varied
// items instead of a fixed top-K. Without a user identity the draw is
// uniform over all eligible, non-hidden candidates.
func Select(rng *rand.Rand, cfg Config, req Request, pool []Candidate) Result {
	cfg = cfg.withDefaults()
	size := req.Size
	if size <= 0 {
		size = cfg.BatchSize
	}

	excluded := make(map[string]struct{}, len(req.ExcludeIDs))
	for _, id := range req.ExcludeIDs {
		excluded[id] = struct{}{}
	}

	var eligible []Candidate
	stats := Stats{}
	for _, candidate := range pool {
		if candidate.Hidden {
			continue
		}
		if _, ok := excluded[candidate.ID]; ok {
			continue
		}
		if req.UserID != "" {
			if candidate.EvaluatedByUser {
				continue
			}
			if stable(cfg, candidate) {
				continue
			}
		}
		eligible = append(eligible, candidate)
		switch {
		case candidate.Tally.Count == 0:
			stats.Fresh++
		case candidate.Tally.Count < cfg.LowEvaluationCount:
			stats.LowEvaluation++
		}
	}
	stats.Eligible = len(eligible)

	weights := make([]float64, len(eligible))
	for i, candidate := range eligible {
		if req.UserID == "" {
			weights[i] = 1
			continue
		}
		weights[i] = priority(cfg, candidate)
	}

	selected := drawWithoutReplacement(rng, eligible, weights, size)
	return Result{
		Selected: selected,
		HasMore:  len(eligible) > len(selected),
		Stats:    stats,
	}
}

func priority(cfg Config, candidate Candidate) float64 {
	boost := 1 / float64(1+candidate.Tally.Count)
	width := scoring.StandardError(candidate.Tally, cfg.FloorStdDev)
	return boost + width
}

func stable(cfg Config, candidate Candidate) bool {
	return candidate.Tally.Count >= cfg.StableMinEvaluations &&
		scoring.StandardError(candidate.Tally, cfg.FloorStdDev) <= cfg.StableMaxStdErr
}

func drawWithoutReplacement(rng *rand.Rand, pool []Candidate, weights []float64, size int) []Candidate {
	remaining := append([]Candidate(nil), pool...)
	remainingWeights := append([]float64(nil), weights...)

	var selected []Candidate
	for len(selected) < size && len(remaining) > 0 {
		var total float64
		for _, w := range remainingWeights {
			total += w
		}

		index := len(remaining) - 1
		if total > 0 {
			target := rng.Float64() * total
			for i, w := range remainingWeights {
				target -= w
				if target < 0 {
					index = i
					break
				}
			}
		} else {
			index = rng.Intn(len(remaining))
		}

		selected = append(selected, remaining[index])
		remaining = append(remaining[:index], remaining[index+1:]...)
		remainingWeights = append(remainingWeights[:index], remainingWeights[index+1:]...)
	}
	return selected
}
