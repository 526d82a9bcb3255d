package queue

import (
	"testing"
	"time"
)

func TestCrossesThresholdBoundary(t *testing.T) {
	if CrossesThreshold(0.45, 0.5) {
		t.Fatalf("0.45 must not cross threshold 0.5")
	}
	if !CrossesThreshold(0.51, 0.5) {
		t.Fatalf("0.51 must cross threshold 0.5")
	}
	// boundary is non-strict
	if !CrossesThreshold(0.5, 0.5) {
		t.Fatalf("a score exactly at the threshold must cross")
	}
}

func TestIsStaleBoundary(t *testing.T) {
	// drop of exactly 0.10 flags stale
	if !IsStale(0.52, 0.42, 0.10) {
		t.Fatalf("drop of exactly the threshold must flag stale")
	}
	if IsStale(0.52, 0.43, 0.10) {
		t.Fatalf("drop below the threshold must not flag stale")
	}
	if IsStale(0.42, 0.52, 0.10) {
		t.Fatalf("a rising consensus is never stale")
	}
}

func TestNextCreatesOnFirstCross(t *testing.T) {
	now := time.Now()
	if got := Next(true, true, "s1", now, nil); got != ActionCreate {
		t.Fatalf("first cross should create, got %v", got)
	}
	if got := Next(true, false, "s1", now, nil); got != ActionNone {
		t.Fatalf("below threshold with no pending item should do nothing, got %v", got)
	}
}

func TestNextDisabledVersionControl(t *testing.T) {
	if got := Next(false, true, "s1", time.Now(), nil); got != ActionNone {
		t.Fatalf("disabled version control must never create items, got %v", got)
	}
}

func TestNextRefreshesOwnPendingItem(t *testing.T) {
	now := time.Now()
	pending := &Pending{SuggestionID: "s1", SuggestionCreatedAt: now}

	if got := Next(true, true, "s1", now, pending); got != ActionRefresh {
		t.Fatalf("crossing again should refresh, got %v", got)
	}
	// staleness tracking: refresh even when consensus fell below threshold
	if got := Next(true, false, "s1", now, pending); got != ActionRefresh {
		t.Fatalf("a pending item is refreshed on every recompute, got %v", got)
	}
}

func TestNextSupersedesByCreationOrder(t *testing.T) {
	base := time.Now()
	pending := &Pending{SuggestionID: "s1", SuggestionCreatedAt: base}

	if got := Next(true, true, "s2", base.Add(time.Minute), pending); got != ActionSupersede {
		t.Fatalf("later-created crossing suggestion should supersede, got %v", got)
	}
	if got := Next(true, true, "s0", base.Add(-time.Minute), pending); got != ActionNone {
		t.Fatalf("earlier-created suggestion must not supersede, got %v", got)
	}
}

func TestValidSort(t *testing.T) {
	for _, sort := range []string{"", SortByCreated, SortByConsensus, SortByVotes} {
		if !ValidSort(sort) {
			t.Fatalf("sort %q should be valid", sort)
		}
	}
	if ValidSort("alphabetical") {
		t.Fatalf("unknown sort order should be rejected")
	}
}
