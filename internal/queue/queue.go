// Package queue holds the replacement-queue state machine decisions.
// The persisted rows live in the store; this package only decides
// which transition a consensus change should produce.
package queue

import "time"

const (
	StatusPending    = "pending"
	StatusApproved   = "approved"
	StatusRejected   = "rejected"
	StatusSuperseded = "superseded"
)

// Read-side sort orders for queue listings.
const (
	SortByCreated   = "created"
	SortByConsensus = "consensus"
	SortByVotes     = "votes"
)

// Action is what the queue manager should do after a suggestion's
// consensus is recomputed.
type Action int

const (
	ActionNone Action = iota
	// ActionCreate opens a pending item for the suggestion.
	ActionCreate
	// ActionRefresh updates the existing pending item's consensus and
	// staleness flag.
	ActionRefresh
	// ActionSupersede marks the current pending item superseded and
	// opens a new one for the later-created suggestion.
	ActionSupersede
)

// Pending describes the paragraph's current pending item, if any.
type Pending struct {
	SuggestionID        string
	SuggestionCreatedAt time.Time
}

// CrossesThreshold reports whether a consensus score reaches the
// paragraph's review threshold. Non-strict: a score exactly at the
// threshold qualifies.
func CrossesThreshold(consensus, reviewThreshold float64) bool {
	return consensus >= reviewThreshold
}

// IsStale reports whether a pending item's consensus has dropped
// materially since it was queued. Non-strict: a drop exactly at the
// threshold is stale.
func IsStale(consensusAtCreation, currentConsensus, stalenessDrop float64) bool {
	return consensusAtCreation-currentConsensus >= stalenessDrop
}

// Next decides the transition for one consensus recompute. An existing
// pending item for the same suggestion is always refreshed, crossed or
// not, so its staleness tracks every recompute. A later-created
// suggestion that crosses supersedes the pending item; an earlier one
// never does, preserving at most one non-superseded item per
// paragraph. With version control disabled no items are ever created.
func Next(versionControlEnabled, crossed bool, suggestionID string, suggestionCreatedAt time.Time, pending *Pending) Action {
	if pending != nil && pending.SuggestionID == suggestionID {
		return ActionRefresh
	}
	if !versionControlEnabled || !crossed {
		return ActionNone
	}
	if pending == nil {
		return ActionCreate
	}
	if suggestionCreatedAt.After(pending.SuggestionCreatedAt) {
		return ActionSupersede
	}
	return ActionNone
}

// ValidSort reports whether a listing sort order is recognized. An
// empty sort falls back to creation time.
func ValidSort(sort string) bool {
	switch sort {
	case "", SortByCreated, SortByConsensus, SortByVotes:
		return true
	}
	return false
}
