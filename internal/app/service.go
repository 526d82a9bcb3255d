package app

import (
	"context"
	"errors"
	"log"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"concord/api/internal/config"
	"concord/api/internal/queue"
	"concord/api/internal/sampler"
	"concord/api/internal/scoring"
	"concord/api/internal/search"
	"concord/api/internal/store"
	"concord/api/internal/util"
)

var allowedVersionModes = map[string]struct{}{
	"auto":     {},
	"manual":   {},
	"deadline": {},
}

var allowedEvidenceTypes = map[string]struct{}{
	"peer_reviewed":  {},
	"expert_opinion": {},
	"news_report":    {},
	"reference":      {},
	"anecdote":       {},
}

type dataStore interface {
	GetParagraph(context.Context, string) (store.Paragraph, error)
	InsertParagraph(context.Context, store.Paragraph) error
	UpdateVersionSettings(context.Context, string, store.VersionSettings) error
	GetSuggestion(context.Context, string) (store.Suggestion, error)
	InsertSuggestion(context.Context, store.Suggestion) error
	ListSuggestionsByParagraph(context.Context, string, bool) ([]store.Suggestion, error)
	SubmitEvaluation(context.Context, string, string, float64) (store.Suggestion, error)
	UpdateSuggestionScore(context.Context, string, float64) error
	ListEvaluatedSuggestionIDs(context.Context, string, string) (map[string]struct{}, error)
	InsertEvidencePost(context.Context, store.EvidencePost) error
	VoteEvidence(context.Context, string, bool) (store.EvidencePost, error)
	ListEvidenceByStatement(context.Context, string) ([]store.EvidencePost, error)
	UpdateEvidenceWeight(context.Context, string, float64) error
	UpdateStatementEvidence(context.Context, string, float64, string) error
	GetQueueItem(context.Context, string) (store.QueueItem, error)
	GetPendingQueueItem(context.Context, string) (*store.QueueItem, error)
	EnqueueReplacement(context.Context, store.QueueItem) error
	RefreshQueueConsensus(context.Context, string, float64, int, bool) error
	ListQueueItems(context.Context, string, string) ([]store.QueueItem, error)
	RejectQueueItem(context.Context, string, string, string) (bool, error)
	ApplyReplacement(context.Context, store.ReplacementParams) (store.ReplacementResult, error)
	Ping(ctx context.Context) error
}

type historyStore interface {
	History(ctx context.Context, paragraphID string) ([]store.VersionEntry, error)
	Compact(ctx context.Context, paragraphID string) error
}

type searchIndex interface {
	Search(q search.Query) search.Response
	IndexSuggestion(record search.SuggestionRecord)
}

type Service struct {
	cfg     config.Config
	store   dataStore
	history historyStore
	search  searchIndex

	samplerMu  sync.Mutex
	samplerRng *rand.Rand
}

func New(cfg config.Config, dataStore dataStore, history historyStore, searchSvc searchIndex) *Service {
	return &Service{
		cfg:        cfg,
		store:      dataStore,
		history:    history,
		search:     searchSvc,
		samplerRng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

type CreateParagraphInput struct {
	DocumentID string `json:"documentId"`
	Text       string `json:"text"`
	Author     string `json:"author"`
}

func (s *Service) CreateParagraph(ctx context.Context, input CreateParagraphInput) (store.Paragraph, error) {
	if strings.TrimSpace(input.DocumentID) == "" {
		return store.Paragraph{}, validationError("documentId is required")
	}
	if strings.TrimSpace(input.Text) == "" {
		return store.Paragraph{}, validationError("text is required")
	}

	item := store.Paragraph{
		ID:         util.NewID("par"),
		DocumentID: input.DocumentID,
		Text:       input.Text,
		Version:    1,
		Settings: store.VersionSettings{
			Enabled:         true,
			Mode:            "manual",
			ReviewThreshold: s.cfg.ReviewThreshold,
			AllowAdminEdit:  true,
			MaxRecent:       s.cfg.MaxRecentVersions,
			MaxTotal:        s.cfg.MaxTotalVersions,
		},
		UpdatedBy: input.Author,
	}
	if err := s.store.InsertParagraph(ctx, item); err != nil {
		return store.Paragraph{}, err
	}
	return item, nil
}

func (s *Service) GetParagraph(ctx context.Context, paragraphID string) (store.Paragraph, error) {
	item, err := s.store.GetParagraph(ctx, paragraphID)
	if err != nil {
		return store.Paragraph{}, mapStoreErr(err)
	}
	return item, nil
}

func (s *Service) UpdateParagraphSettings(ctx context.Context, paragraphID string, settings store.VersionSettings) error {
	if _, ok := allowedVersionModes[settings.Mode]; !ok {
		return validationError("mode must be auto, manual, or deadline")
	}
	if settings.ReviewThreshold < 0 || settings.ReviewThreshold > 1 {
		return validationError("reviewThreshold must be in [0, 1]")
	}
	if settings.MaxRecent <= 0 || settings.MaxTotal <= 0 {
		return validationError("version retention limits must be positive")
	}
	if err := s.store.UpdateVersionSettings(ctx, paragraphID, settings); err != nil {
		return mapStoreErr(err)
	}
	return nil
}

type CreateSuggestionInput struct {
	ParagraphID string `json:"paragraphId"`
	Text        string `json:"text"`
	Author      string `json:"author"`
}

func (s *Service) CreateSuggestion(ctx context.Context, input CreateSuggestionInput) (store.Suggestion, error) {
	if strings.TrimSpace(input.Text) == "" {
		return store.Suggestion{}, validationError("text is required")
	}
	if strings.TrimSpace(input.Author) == "" {
		return store.Suggestion{}, validationError("author is required")
	}
	paragraph, err := s.store.GetParagraph(ctx, input.ParagraphID)
	if err != nil {
		return store.Suggestion{}, mapStoreErr(err)
	}

	item := store.Suggestion{
		ID:             util.NewID("sug"),
		ParagraphID:    paragraph.ID,
		Text:           input.Text,
		Author:         input.Author,
		EvidenceStatus: scoring.StatusUnderDiscussion,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.InsertSuggestion(ctx, item); err != nil {
		return store.Suggestion{}, err
	}
	s.indexSuggestion(item, paragraph.DocumentID)
	return item, nil
}

type VoteInput struct {
	SuggestionID string  `json:"suggestionId"`
	EvaluatorID  string  `json:"evaluatorId"`
	Value        float64 `json:"value"`
}

type VoteOutcome struct {
	Suggestion store.Suggestion `json:"suggestion"`
	Consensus  float64          `json:"consensus"`
	// QueueAction reports what the vote did to the replacement queue:
	// "none", "created", "refreshed", or "superseded".
	QueueAction string `json:"queueAction"`
	AutoApplied bool   `json:"autoApplied"`
}

// SubmitVote records an evaluation, recomputes the suggestion's
// consensus, and drives the replacement queue transition that the new
// score implies.
func (s *Service) SubmitVote(ctx context.Context, input VoteInput) (VoteOutcome, error) {
	if strings.TrimSpace(input.SuggestionID) == "" {
		return VoteOutcome{}, validationError("suggestionId is required")
	}
	if strings.TrimSpace(input.EvaluatorID) == "" {
		return VoteOutcome{}, validationError("evaluatorId is required")
	}
	if math.IsNaN(input.Value) || input.Value < -1 || input.Value > 1 {
		return VoteOutcome{}, validationError("value must be in [-1, 1]")
	}

	suggestion, err := s.store.SubmitEvaluation(ctx, input.SuggestionID, input.EvaluatorID, input.Value)
	if err != nil {
		return VoteOutcome{}, mapStoreErr(err)
	}

	tally := scoring.Tally{
		Count:      suggestion.EvalCount,
		Sum:        suggestion.EvalSum,
		SumSquares: suggestion.EvalSumSquares,
	}
	consensus := scoring.Agreement(tally, s.cfg.FloorStdDev)
	if err := s.store.UpdateSuggestionScore(ctx, suggestion.ID, consensus); err != nil {
		return VoteOutcome{}, err
	}
	suggestion.Consensus = consensus

	paragraph, err := s.store.GetParagraph(ctx, suggestion.ParagraphID)
	if err != nil {
		return VoteOutcome{}, mapStoreErr(err)
	}
	crossed := queue.CrossesThreshold(consensus, paragraph.Settings.ReviewThreshold)
	pending, queueAction, err := s.driveQueue(ctx, paragraph, suggestion, consensus, crossed)
	if err != nil {
		return VoteOutcome{}, err
	}
	outcome := VoteOutcome{Suggestion: suggestion, Consensus: consensus, QueueAction: queueAction}

	if paragraph.Settings.Mode == "auto" && crossed && pending != nil && pending.SuggestionID == suggestion.ID && !pending.Stale {
		if _, err := s.applyWithRetry(ctx, store.ReplacementParams{
			QueueID:     pending.ID,
			FinalizedBy: "auto-policy",
		}); err != nil {
			// a concurrent approval is not this vote's failure
			if !errors.Is(err, store.ErrAlreadyApplied) && !errors.Is(err, store.ErrConflict) {
				return VoteOutcome{}, mapStoreErr(err)
			}
			log.Printf("app: auto-policy apply for queue item %s skipped: %v", pending.ID, err)
		} else {
			outcome.AutoApplied = true
			s.afterReplacement(ctx, pending.ParagraphID, suggestion, paragraph.DocumentID)
		}
	}
	return outcome, nil
}

// driveQueue reads the paragraph's pending item and applies the queue
// transition the new consensus implies. Two crossing votes can race on
// the single-pending guarantee; the loser re-reads the committed item
// and retries so creation order still decides who supersedes.
func (s *Service) driveQueue(ctx context.Context, paragraph store.Paragraph, suggestion store.Suggestion, consensus float64, crossed bool) (*store.QueueItem, string, error) {
	for attempt := 1; ; attempt++ {
		pending, err := s.store.GetPendingQueueItem(ctx, paragraph.ID)
		if err != nil {
			return nil, "", err
		}

		var pendingRef *queue.Pending
		if pending != nil {
			pendingRef = &queue.Pending{
				SuggestionID:        pending.SuggestionID,
				SuggestionCreatedAt: pending.SuggestionCreatedAt,
			}
		}

		switch queue.Next(paragraph.Settings.Enabled, crossed, suggestion.ID, suggestion.CreatedAt, pendingRef) {
		case queue.ActionCreate, queue.ActionSupersede:
			item := store.QueueItem{
				ID:                  util.NewID("que"),
				ParagraphID:         paragraph.ID,
				SuggestionID:        suggestion.ID,
				ConsensusAtCreation: consensus,
				CurrentConsensus:    consensus,
				EvaluationCount:     suggestion.EvalCount,
			}
			if err := s.store.EnqueueReplacement(ctx, item); err != nil {
				if errors.Is(err, store.ErrConflict) && attempt < s.cfg.ReplacementRetries {
					log.Printf("app: enqueue for paragraph %s lost to a concurrent item, retrying: %v", paragraph.ID, err)
					continue
				}
				return nil, "", err
			}
			if pending != nil {
				return &item, "superseded", nil
			}
			return &item, "created", nil
		case queue.ActionRefresh:
			stale := queue.IsStale(pending.ConsensusAtCreation, consensus, s.cfg.StalenessDrop)
			if err := s.store.RefreshQueueConsensus(ctx, pending.ID, consensus, suggestion.EvalCount, stale); err != nil {
				return nil, "", err
			}
			pending.CurrentConsensus = consensus
			pending.Stale = stale
			return pending, "refreshed", nil
		default:
			return pending, "none", nil
		}
	}
}

type BatchInput struct {
	ParagraphID string   `json:"paragraphId"`
	UserID      string   `json:"userId"`
	Size        int      `json:"size"`
	ExcludeIDs  []string `json:"excludeIds"`
}

type BatchResult struct {
	Suggestions []store.Suggestion `json:"suggestions"`
	HasMore     bool               `json:"hasMore"`
	Stats       sampler.Stats      `json:"stats"`
}

// RequestBatch draws the next set of suggestions for a user to
// evaluate. Anonymous requests get a uniform draw over everything
// visible; identified users never see items they already voted on or
// items whose score has settled.
func (s *Service) RequestBatch(ctx context.Context, input BatchInput) (BatchResult, error) {
	if _, err := s.store.GetParagraph(ctx, input.ParagraphID); err != nil {
		return BatchResult{}, mapStoreErr(err)
	}
	suggestions, err := s.store.ListSuggestionsByParagraph(ctx, input.ParagraphID, false)
	if err != nil {
		return BatchResult{}, err
	}

	evaluated := map[string]struct{}{}
	if input.UserID != "" {
		evaluated, err = s.store.ListEvaluatedSuggestionIDs(ctx, input.UserID, input.ParagraphID)
		if err != nil {
			return BatchResult{}, err
		}
	}

	byID := make(map[string]store.Suggestion, len(suggestions))
	pool := make([]sampler.Candidate, 0, len(suggestions))
	for _, suggestion := range suggestions {
		byID[suggestion.ID] = suggestion
		_, seen := evaluated[suggestion.ID]
		pool = append(pool, sampler.Candidate{
			ID: suggestion.ID,
			Tally: scoring.Tally{
				Count:      suggestion.EvalCount,
				Sum:        suggestion.EvalSum,
				SumSquares: suggestion.EvalSumSquares,
			},
			Hidden:          suggestion.Hidden || suggestion.Applied,
			EvaluatedByUser: seen,
		})
	}

	samplerCfg := sampler.Config{
		BatchSize:            s.cfg.BatchSize,
		StableMinEvaluations: s.cfg.StableMinEvaluations,
		StableMaxStdErr:      s.cfg.StableMaxStdErr,
		FloorStdDev:          s.cfg.FloorStdDev,
	}

	s.samplerMu.Lock()
	result := sampler.Select(s.samplerRng, samplerCfg, sampler.Request{
		UserID:     input.UserID,
		Size:       input.Size,
		ExcludeIDs: input.ExcludeIDs,
	}, pool)
	s.samplerMu.Unlock()

	selected := make([]store.Suggestion, 0, len(result.Selected))
	for _, candidate := range result.Selected {
		selected = append(selected, byID[candidate.ID])
	}
	return BatchResult{Suggestions: selected, HasMore: result.HasMore, Stats: result.Stats}, nil
}

type ApproveInput struct {
	QueueID    string
	AdminText  *string
	AdminNotes string
	AdminName  string
}

// ApproveQueueItem executes a pending replacement on behalf of an
// admin. Contention with a concurrent approval retries a bounded
// number of times before surfacing a conflict.
func (s *Service) ApproveQueueItem(ctx context.Context, input ApproveInput) (store.ReplacementResult, error) {
	if strings.TrimSpace(input.AdminName) == "" {
		return store.ReplacementResult{}, validationError("admin name is required")
	}

	item, err := s.store.GetQueueItem(ctx, input.QueueID)
	if err != nil {
		return store.ReplacementResult{}, mapStoreErr(err)
	}
	paragraph, err := s.store.GetParagraph(ctx, item.ParagraphID)
	if err != nil {
		return store.ReplacementResult{}, mapStoreErr(err)
	}
	if input.AdminText != nil {
		if !paragraph.Settings.AllowAdminEdit {
			return store.ReplacementResult{}, validationError("admin edits are disabled for this paragraph")
		}
		if strings.TrimSpace(*input.AdminText) == "" {
			return store.ReplacementResult{}, validationError("edited text must not be empty")
		}
	}

	result, err := s.applyWithRetry(ctx, store.ReplacementParams{
		QueueID:         input.QueueID,
		AdminEditedText: input.AdminText,
		AdminNotes:      input.AdminNotes,
		FinalizedBy:     input.AdminName,
	})
	if err != nil {
		return store.ReplacementResult{}, mapStoreErr(err)
	}

	suggestion, err := s.store.GetSuggestion(ctx, result.SuggestionID)
	if err == nil {
		s.afterReplacement(ctx, result.ParagraphID, suggestion, paragraph.DocumentID)
	} else {
		log.Printf("app: reload applied suggestion %s: %v", result.SuggestionID, err)
	}
	return result, nil
}

func (s *Service) applyWithRetry(ctx context.Context, params store.ReplacementParams) (store.ReplacementResult, error) {
	attempts := s.cfg.ReplacementRetries
	if attempts <= 0 {
		attempts = 1
	}

	var (
		result store.ReplacementResult
		err    error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err = s.store.ApplyReplacement(ctx, params)
		if err == nil || !errors.Is(err, store.ErrConflict) {
			return result, err
		}
		log.Printf("app: replacement attempt %d/%d for queue item %s hit contention: %v",
			attempt, attempts, params.QueueID, err)
	}
	return store.ReplacementResult{}, err
}

// afterReplacement runs the post-commit follow-ups. Both are
// best-effort: the replacement already committed and history compaction
// is safe to retry on the next replacement.
func (s *Service) afterReplacement(ctx context.Context, paragraphID string, suggestion store.Suggestion, documentID string) {
	if err := s.history.Compact(ctx, paragraphID); err != nil {
		log.Printf("app: compact history for paragraph %s: %v", paragraphID, err)
	}
	suggestion.Applied = true
	s.indexSuggestion(suggestion, documentID)
}

func (s *Service) indexSuggestion(suggestion store.Suggestion, documentID string) {
	if s.search == nil {
		return
	}
	s.search.IndexSuggestion(search.SuggestionRecord{
		ID:          suggestion.ID,
		ParagraphID: suggestion.ParagraphID,
		DocumentID:  documentID,
		Text:        suggestion.Text,
		Consensus:   suggestion.Consensus,
		Status:      suggestion.EvidenceStatus,
		Applied:     suggestion.Applied,
	})
}

// RejectQueueItem resolves a pending item without replacing the
// paragraph. A rejection always carries a note explaining why.
func (s *Service) RejectQueueItem(ctx context.Context, queueID, notes, adminName string) (store.QueueItem, error) {
	if strings.TrimSpace(adminName) == "" {
		return store.QueueItem{}, validationError("admin name is required")
	}
	if strings.TrimSpace(notes) == "" {
		return store.QueueItem{}, validationError("rejection notes are required")
	}

	ok, err := s.store.RejectQueueItem(ctx, queueID, notes, adminName)
	if err != nil {
		return store.QueueItem{}, err
	}
	item, getErr := s.store.GetQueueItem(ctx, queueID)
	if !ok {
		if getErr != nil {
			return store.QueueItem{}, mapStoreErr(getErr)
		}
		return store.QueueItem{}, domainError(409, CodeAlreadyApplied,
			"queue item is already resolved", map[string]any{"status": item.Status})
	}
	if getErr != nil {
		return store.QueueItem{}, mapStoreErr(getErr)
	}
	return item, nil
}

// RunAutoPolicy applies the paragraph's pending item when its tracked
// consensus still clears the threshold and has not gone stale. Callers
// drive this for deadline-mode paragraphs; auto mode also triggers it
// inline on each qualifying vote.
func (s *Service) RunAutoPolicy(ctx context.Context, paragraphID string) (*store.ReplacementResult, error) {
	paragraph, err := s.store.GetParagraph(ctx, paragraphID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if !paragraph.Settings.Enabled || paragraph.Settings.Mode == "manual" {
		return nil, nil
	}
	pending, err := s.store.GetPendingQueueItem(ctx, paragraphID)
	if err != nil {
		return nil, err
	}
	if pending == nil || pending.Stale {
		return nil, nil
	}
	if !queue.CrossesThreshold(pending.CurrentConsensus, paragraph.Settings.ReviewThreshold) {
		return nil, nil
	}

	result, err := s.applyWithRetry(ctx, store.ReplacementParams{
		QueueID:     pending.ID,
		FinalizedBy: "auto-policy",
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyApplied) {
			return nil, nil
		}
		return nil, mapStoreErr(err)
	}

	suggestion, sugErr := s.store.GetSuggestion(ctx, result.SuggestionID)
	if sugErr == nil {
		s.afterReplacement(ctx, result.ParagraphID, suggestion, paragraph.DocumentID)
	}
	return &result, nil
}

// ParagraphHistory returns the live version followed by every retained
// historical version, newest first.
func (s *Service) ParagraphHistory(ctx context.Context, paragraphID string) ([]store.VersionEntry, error) {
	paragraph, err := s.store.GetParagraph(ctx, paragraphID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	archived, err := s.history.History(ctx, paragraphID)
	if err != nil {
		return nil, err
	}

	entries := make([]store.VersionEntry, 0, len(archived)+1)
	entries = append(entries, store.VersionEntry{
		ParagraphID: paragraph.ID,
		Version:     paragraph.Version,
		Text:        paragraph.Text,
		FinalizedBy: paragraph.UpdatedBy,
		FinalizedAt: paragraph.UpdatedAt,
		IsCurrent:   true,
	})
	return append(entries, archived...), nil
}

func (s *Service) ListQueue(ctx context.Context, paragraphID, sortBy string) ([]store.QueueItem, error) {
	if !queue.ValidSort(sortBy) {
		return nil, validationError("sort must be created, consensus, or votes")
	}
	if _, err := s.store.GetParagraph(ctx, paragraphID); err != nil {
		return nil, mapStoreErr(err)
	}
	items, err := s.store.ListQueueItems(ctx, paragraphID, sortBy)
	if err != nil {
		return nil, err
	}
	return items, nil
}

type CreateEvidenceInput struct {
	StatementID string  `json:"statementId"`
	Type        string  `json:"type"`
	Support     float64 `json:"support"`
	Author      string  `json:"author"`
}

func (s *Service) CreateEvidencePost(ctx context.Context, input CreateEvidenceInput) (store.EvidencePost, error) {
	if _, ok := allowedEvidenceTypes[input.Type]; !ok {
		return store.EvidencePost{}, validationError("unknown evidence type")
	}
	if math.IsNaN(input.Support) || input.Support < -1 || input.Support > 1 {
		return store.EvidencePost{}, validationError("support must be in [-1, 1]")
	}
	if strings.TrimSpace(input.Author) == "" {
		return store.EvidencePost{}, validationError("author is required")
	}
	if _, err := s.store.GetSuggestion(ctx, input.StatementID); err != nil {
		return store.EvidencePost{}, mapStoreErr(err)
	}

	item := store.EvidencePost{
		ID:           util.NewID("evd"),
		StatementID:  input.StatementID,
		EvidenceType: input.Type,
		Support:      input.Support,
		Weight:       scoring.PostWeight(input.Type, 0, 0),
		Author:       input.Author,
	}
	if err := s.store.InsertEvidencePost(ctx, item); err != nil {
		return store.EvidencePost{}, err
	}
	if err := s.recomputeStatement(ctx, input.StatementID); err != nil {
		return store.EvidencePost{}, err
	}
	return item, nil
}

func (s *Service) VoteEvidencePost(ctx context.Context, postID string, helpful bool) (store.EvidencePost, error) {
	post, err := s.store.VoteEvidence(ctx, postID, helpful)
	if err != nil {
		return store.EvidencePost{}, mapStoreErr(err)
	}
	if err := s.recomputeStatement(ctx, post.StatementID); err != nil {
		return store.EvidencePost{}, err
	}
	post.Weight = scoring.PostWeight(post.EvidenceType, post.HelpfulCount, post.NotHelpfulCount)
	return post, nil
}

func (s *Service) ListEvidence(ctx context.Context, statementID string) ([]store.EvidencePost, error) {
	if _, err := s.store.GetSuggestion(ctx, statementID); err != nil {
		return nil, mapStoreErr(err)
	}
	return s.store.ListEvidenceByStatement(ctx, statementID)
}

// recomputeStatement re-scores a statement from every sibling post.
// Always a full re-scan, so a vote on one post also refreshes weights
// that drifted.
func (s *Service) recomputeStatement(ctx context.Context, statementID string) error {
	posts, err := s.store.ListEvidenceByStatement(ctx, statementID)
	if err != nil {
		return err
	}

	inputs := make([]scoring.EvidenceInput, len(posts))
	for i, post := range posts {
		inputs[i] = scoring.EvidenceInput{
			Type:       post.EvidenceType,
			Support:    post.Support,
			Helpful:    post.HelpfulCount,
			NotHelpful: post.NotHelpfulCount,
		}
	}
	total, weights := scoring.StatementScore(inputs)

	for i, post := range posts {
		if weights[i] == post.Weight {
			continue
		}
		if err := s.store.UpdateEvidenceWeight(ctx, post.ID, weights[i]); err != nil {
			return err
		}
	}
	return s.store.UpdateStatementEvidence(ctx, statementID, total, scoring.StatementStatus(total))
}

func (s *Service) SearchSuggestions(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.SuggestionRecord{}, Query: q.Text}
	}
	return s.search.Search(q)
}

func (s *Service) ListSuggestions(ctx context.Context, paragraphID string) ([]store.Suggestion, error) {
	if _, err := s.store.GetParagraph(ctx, paragraphID); err != nil {
		return nil, mapStoreErr(err)
	}
	return s.store.ListSuggestionsByParagraph(ctx, paragraphID, false)
}

// Ping verifies the database connection is alive
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// mapStoreErr translates store sentinels into client-facing errors.
// Unknown errors pass through and surface as 500s.
func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return notFoundError(err.Error())
	case errors.Is(err, store.ErrAlreadyApplied):
		return domainError(409, CodeAlreadyApplied, err.Error(), nil)
	case errors.Is(err, store.ErrConflict):
		return domainError(409, CodeConflict, err.Error(), nil)
	case errors.Is(err, store.ErrOwnership):
		return domainError(422, CodeOwnership, err.Error(), nil)
	}
	return err
}
