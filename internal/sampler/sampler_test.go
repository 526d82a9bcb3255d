package sampler

import (
	"math/rand"
	"testing"

	"concord/api/internal/scoring"
)

func tallyOf(votes ...float64) scoring.Tally {
	var t scoring.Tally
	for _, v := range votes {
		t = t.Add(v)
	}
	return t
}

func poolOf(n int) []Candidate {
	pool := make([]Candidate, n)
	for i := range pool {
		pool[i] = Candidate{ID: string(rune('a' + i))}
	}
	return pool
}

func TestSelectNeverReturnsExcluded(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	pool := poolOf(10)
	req := Request{UserID: "u1", Size: 6, ExcludeIDs: []string{"a", "b", "c"}}

	for trial := 0; trial < 50; trial++ {
		result := Select(rng, Config{}, req, pool)
		for _, candidate := range result.Selected {
			for _, excluded := range req.ExcludeIDs {
				if candidate.ID == excluded {
					t.Fatalf("trial %d: excluded id %q was selected", trial, excluded)
				}
			}
		}
	}
}

func TestSelectRespectsSizeAndHasMore(t *testing.T) {
	rng := rand.New(rand.NewSource(2))

	result := Select(rng, Config{}, Request{UserID: "u1", Size: 6}, poolOf(10))
	if len(result.Selected) != 6 {
		t.Fatalf("expected 6 selected, got %d", len(result.Selected))
	}
	if !result.HasMore {
		t.Fatalf("expected hasMore with 10 eligible and 6 requested")
	}

	exhausted := Select(rng, Config{}, Request{UserID: "u1", Size: 6}, poolOf(4))
	if len(exhausted.Selected) != 4 {
		t.Fatalf("exhausted pool should return everything, got %d", len(exhausted.Selected))
	}
	if exhausted.HasMore {
		t.Fatalf("exhausted pool must report hasMore=false")
	}
}

func TestSelectSkipsEvaluatedAndStable(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	settled := tallyOf()
	for i := 0; i < 30; i++ {
		settled = settled.Add(0.9)
	}
	pool := []Candidate{
		{ID: "seen", EvaluatedByUser: true},
		{ID: "settled", Tally: settled},
		{ID: "open"},
	}

	result := Select(rng, Config{}, Request{UserID: "u1", Size: 6}, pool)
	if len(result.Selected) != 1 || result.Selected[0].ID != "open" {
		t.Fatalf("expected only the open candidate, got %+v", result.Selected)
	}
}

func TestSelectAnonymousIncludesEvaluated(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	pool := []Candidate{
		{ID: "seen", EvaluatedByUser: true},
		{ID: "hidden", Hidden: true},
		{ID: "open"},
	}

	result := Select(rng, Config{}, Request{Size: 6}, pool)
	if len(result.Selected) != 2 {
		t.Fatalf("anonymous sampling should cover all non-hidden candidates, got %d", len(result.Selected))
	}
	for _, candidate := range result.Selected {
		if candidate.ID == "hidden" {
			t.Fatalf("hidden candidate must never be selected")
		}
	}
}

func TestSelectFavorsUnderEvaluated(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	busy := tallyOf()
	for i := 0; i < 10; i++ {
		busy = busy.Add(0.5)
	}
	pool := []Candidate{
		{ID: "fresh"},
		{ID: "busy", Tally: busy},
	}

	freshWins := 0
	for trial := 0; trial < 500; trial++ {
		result := Select(rng, Config{}, Request{UserID: "u1", Size: 1}, pool)
		if result.Selected[0].ID == "fresh" {
			freshWins++
		}
	}
	if freshWins < 300 {
		t.Fatalf("fresh candidate should win most draws, won %d/500", freshWins)
	}
	if freshWins == 500 {
		t.Fatalf("sampling should be stochastic, not a strict top-K")
	}
}

func TestSelectStats(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	pool := []Candidate{
		{ID: "fresh1"},
		{ID: "fresh2"},
		{ID: "low", Tally: tallyOf(0.5)},
		{ID: "active", Tally: tallyOf(0.5, 0.4, 0.3, 0.2)},
	}

	result := Select(rng, Config{}, Request{UserID: "u1", Size: 2}, pool)
	if result.Stats.Eligible != 4 {
		t.Fatalf("eligible: got %d want 4", result.Stats.Eligible)
	}
	if result.Stats.Fresh != 2 {
		t.Fatalf("fresh: got %d want 2", result.Stats.Fresh)
	}
	if result.Stats.LowEvaluation != 1 {
		t.Fatalf("lowEvaluation: got %d want 1", result.Stats.LowEvaluation)
	}
}
