package scoring

import "math"

// Statement status classifications derived from aggregated evidence.
const (
	StatusLookingGood     = "looking_good"
	StatusNeedsFixing     = "needs_fixing"
	StatusUnderDiscussion = "under_discussion"
)

const (
	lookingGoodThreshold = 2.0
	needsFixingThreshold = -2.0

	// minEvidenceWeight keeps a downvoted post from being dismissed entirely.
	minEvidenceWeight = 0.01
)

// Evidence categories ranked by credibility. Unknown categories get
// the lowest rank rather than failing.
var evidenceRanks = map[string]int{
	"peer_reviewed":  5,
	"expert_opinion": 4,
	"news_report":    3,
	"reference":      2,
	"anecdote":       1,
}

const maxEvidenceRank = 5

// BaseWeight maps an evidence category to a credibility weight
// normalized to (0, 1] by rank.
func BaseWeight(evidenceType string) float64 {
	rank, ok := evidenceRanks[evidenceType]
	if !ok {
		rank = 1
	}
	return float64(rank) / float64(maxEvidenceRank)
}

// PostWeight combines the category base weight with community votes.
// The raw helpful/not-helpful net is squashed through tanh so extreme
// tallies stay bounded, then mapped to a [0,1] multiplier.
func PostWeight(evidenceType string, helpful, notHelpful int) float64 {
	net := float64(helpful - notHelpful)
	normalized := math.Tanh(net / 10)
	multiplier := (normalized + 1) / 2
	weight := BaseWeight(evidenceType) * multiplier
	if weight < minEvidenceWeight {
		weight = minEvidenceWeight
	}
	return weight
}

// EvidenceInput is one sibling post of a statement.
type EvidenceInput struct {
	Type       string
	Support    float64
	Helpful    int
	NotHelpful int
}

// StatementScore recomputes a statement's evidence total from scratch
// over all sibling posts. Always a full re-scan: any incremental
// optimization must produce a result equal to this one.
func StatementScore(posts []EvidenceInput) (total float64, weights []float64) {
	weights = make([]float64, len(posts))
	for i, post := range posts {
		weights[i] = PostWeight(post.Type, post.Helpful, post.NotHelpful)
		total += post.Support * weights[i]
	}
	return total, weights
}

// StatementStatus classifies a statement by its evidence total.
func StatementStatus(total float64) string {
	switch {
	case total > lookingGoodThreshold:
		return StatusLookingGood
	case total < needsFixingThreshold:
		return StatusNeedsFixing
	default:
		return StatusUnderDiscussion
	}
}
