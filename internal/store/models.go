package store

import "time"

// VersionSettings is the per-paragraph version control configuration.
// It is read from the paragraph row and passed explicitly into the
// queue and executor paths; nothing reads it from ambient state.
type VersionSettings struct {
	Enabled         bool
	Mode            string // "auto", "manual", or "deadline"
	ReviewThreshold float64
	AllowAdminEdit  bool
	MaxRecent       int
	MaxTotal        int
}

type Paragraph struct {
	ID         string
	DocumentID string
	Text       string
	Version    int
	Settings   VersionSettings
	UpdatedBy  string
	UpdatedAt  time.Time
}

type Suggestion struct {
	ID          string
	ParagraphID string
	Text        string
	Author      string
	// Running evaluation tallies; votes are in [-1, 1].
	EvalCount      int
	EvalSum        float64
	EvalSumSquares float64
	Consensus      float64
	EvidenceScore  float64
	EvidenceStatus string
	Applied        bool
	Hidden         bool
	CreatedAt      time.Time
}

type QueueItem struct {
	ID                  string
	ParagraphID         string
	SuggestionID        string
	SuggestionCreatedAt time.Time
	ConsensusAtCreation float64
	CurrentConsensus    float64
	EvaluationCount     int
	Status              string
	Stale               bool
	AdminNotes          string
	ResolvedBy          string
	ResolvedAt          *time.Time
	CreatedAt           time.Time
}

type VersionEntry struct {
	ParagraphID string
	Version     int
	Text        string
	ReplacedBy  string
	Consensus   float64
	FinalizedBy string
	FinalizedAt time.Time
	AdminEdited bool
	AdminNotes  string
	IsCurrent   bool
}

// VersionArchive is an immutable compressed batch of version entries
// that aged out of the recent tier.
type VersionArchive struct {
	ID          string
	ParagraphID string
	FromVersion int
	ToVersion   int
	Payload     []byte
	CreatedAt   time.Time
}

// Span is the number of versions the archive covers.
func (a VersionArchive) Span() int {
	return a.ToVersion - a.FromVersion + 1
}

type EvidencePost struct {
	ID              string
	StatementID     string
	EvidenceType    string
	Support         float64
	HelpfulCount    int
	NotHelpfulCount int
	Weight          float64
	Author          string
	CreatedAt       time.Time
}
