package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

const paragraphColumns = `
	id, document_id, body, current_version,
	version_enabled, version_mode, review_threshold, allow_admin_edit,
	max_recent_versions, max_total_versions,
	updated_by_name, updated_at
`

func scanParagraph(row *sql.Row) (Paragraph, error) {
	var item Paragraph
	err := row.Scan(
		&item.ID,
		&item.DocumentID,
		&item.Text,
		&item.Version,
		&item.Settings.Enabled,
		&item.Settings.Mode,
		&item.Settings.ReviewThreshold,
		&item.Settings.AllowAdminEdit,
		&item.Settings.MaxRecent,
		&item.Settings.MaxTotal,
		&item.UpdatedBy,
		&item.UpdatedAt,
	)
	return item, err
}

func (s *PostgresStore) GetParagraph(ctx context.Context, paragraphID string) (Paragraph, error) {
	item, err := scanParagraph(s.db.QueryRowContext(ctx, `
		SELECT `+paragraphColumns+`
		FROM paragraphs
		WHERE id=$1
	`, paragraphID))
	if errors.Is(err, sql.ErrNoRows) {
		return Paragraph{}, fmt.Errorf("paragraph %s: %w", paragraphID, ErrNotFound)
	}
	if err != nil {
		return Paragraph{}, fmt.Errorf("get paragraph: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) InsertParagraph(ctx context.Context, item Paragraph) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO paragraphs (
			id, document_id, body, current_version,
			version_enabled, version_mode, review_threshold, allow_admin_edit,
			max_recent_versions, max_total_versions, updated_by_name
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, item.ID, item.DocumentID, item.Text, item.Version,
		item.Settings.Enabled, item.Settings.Mode, item.Settings.ReviewThreshold, item.Settings.AllowAdminEdit,
		item.Settings.MaxRecent, item.Settings.MaxTotal, item.UpdatedBy)
	if err != nil {
		return fmt.Errorf("insert paragraph: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateVersionSettings(ctx context.Context, paragraphID string, settings VersionSettings) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE paragraphs
		SET version_enabled=$2, version_mode=$3, review_threshold=$4, allow_admin_edit=$5,
			max_recent_versions=$6, max_total_versions=$7, updated_at=NOW()
		WHERE id=$1
	`, paragraphID, settings.Enabled, settings.Mode, settings.ReviewThreshold,
		settings.AllowAdminEdit, settings.MaxRecent, settings.MaxTotal)
	if err != nil {
		return fmt.Errorf("update version settings: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update version settings rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("paragraph %s: %w", paragraphID, ErrNotFound)
	}
	return nil
}

const suggestionColumns = `
	id, paragraph_id, body, author_name,
	eval_count, eval_sum, eval_sum_squares, consensus,
	evidence_score, evidence_status, applied, hidden, created_at
`

func scanSuggestion(scan func(...any) error) (Suggestion, error) {
	var item Suggestion
	err := scan(
		&item.ID,
		&item.ParagraphID,
		&item.Text,
		&item.Author,
		&item.EvalCount,
		&item.EvalSum,
		&item.EvalSumSquares,
		&item.Consensus,
		&item.EvidenceScore,
		&item.EvidenceStatus,
		&item.Applied,
		&item.Hidden,
		&item.CreatedAt,
	)
	return item, err
}

func (s *PostgresStore) GetSuggestion(ctx context.Context, suggestionID string) (Suggestion, error) {
	item, err := scanSuggestion(s.db.QueryRowContext(ctx, `
		SELECT `+suggestionColumns+`
		FROM suggestions
		WHERE id=$1
	`, suggestionID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Suggestion{}, fmt.Errorf("suggestion %s: %w", suggestionID, ErrNotFound)
	}
	if err != nil {
		return Suggestion{}, fmt.Errorf("get suggestion: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) InsertSuggestion(ctx context.Context, item Suggestion) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suggestions (id, paragraph_id, body, author_name, evidence_status)
		VALUES ($1, $2, $3, $4, $5)
	`, item.ID, item.ParagraphID, item.Text, item.Author, item.EvidenceStatus)
	if err != nil {
		return fmt.Errorf("insert suggestion: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSuggestionsByParagraph(ctx context.Context, paragraphID string, includeHidden bool) ([]Suggestion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+suggestionColumns+`
		FROM suggestions
		WHERE paragraph_id=$1
		  AND ($2::boolean OR NOT hidden)
		ORDER BY created_at ASC
	`, paragraphID, includeHidden)
	if err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}
	defer rows.Close()

	items := make([]Suggestion, 0)
	for rows.Next() {
		item, err := scanSuggestion(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate suggestions: %w", err)
	}
	return items, nil
}

// SubmitEvaluation records one evaluator's vote and folds it into the
// suggestion's running tallies in a single transaction. A repeat vote
// by the same evaluator replaces the previous value instead of
// inflating the count.
func (s *PostgresStore) SubmitEvaluation(ctx context.Context, suggestionID, evaluatorID string, value float64) (Suggestion, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Suggestion{}, fmt.Errorf("begin evaluation tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var previous float64
	hasPrevious := true
	err = tx.QueryRowContext(ctx, `
		SELECT value FROM evaluations
		WHERE suggestion_id=$1 AND evaluator_id=$2
		FOR UPDATE
	`, suggestionID, evaluatorID).Scan(&previous)
	if errors.Is(err, sql.ErrNoRows) {
		hasPrevious = false
	} else if err != nil {
		return Suggestion{}, fmt.Errorf("lookup evaluation: %w", err)
	}

	var item Suggestion
	if hasPrevious {
		if _, err := tx.ExecContext(ctx, `
			UPDATE evaluations SET value=$3, updated_at=NOW()
			WHERE suggestion_id=$1 AND evaluator_id=$2
		`, suggestionID, evaluatorID, value); err != nil {
			return Suggestion{}, fmt.Errorf("update evaluation: %w", err)
		}
		item, err = scanSuggestion(tx.QueryRowContext(ctx, `
			UPDATE suggestions
			SET eval_sum = eval_sum - $2 + $3,
				eval_sum_squares = eval_sum_squares - $2*$2 + $3*$3
			WHERE id=$1
			RETURNING `+suggestionColumns+`
		`, suggestionID, previous, value).Scan)
	} else {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO evaluations (suggestion_id, evaluator_id, value)
			VALUES ($1, $2, $3)
		`, suggestionID, evaluatorID, value); err != nil {
			return Suggestion{}, fmt.Errorf("insert evaluation: %w", err)
		}
		item, err = scanSuggestion(tx.QueryRowContext(ctx, `
			UPDATE suggestions
			SET eval_count = eval_count + 1,
				eval_sum = eval_sum + $2,
				eval_sum_squares = eval_sum_squares + $2*$2
			WHERE id=$1
			RETURNING `+suggestionColumns+`
		`, suggestionID, value).Scan)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return Suggestion{}, fmt.Errorf("suggestion %s: %w", suggestionID, ErrNotFound)
	}
	if err != nil {
		return Suggestion{}, fmt.Errorf("fold evaluation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Suggestion{}, fmt.Errorf("commit evaluation: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) UpdateSuggestionScore(ctx context.Context, suggestionID string, consensus float64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE suggestions SET consensus=$2 WHERE id=$1`, suggestionID, consensus)
	if err != nil {
		return fmt.Errorf("update suggestion score: %w", err)
	}
	return nil
}

// ListEvaluatedSuggestionIDs returns the ids of a paragraph's
// suggestions that the evaluator has already voted on.
func (s *PostgresStore) ListEvaluatedSuggestionIDs(ctx context.Context, evaluatorID, paragraphID string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.suggestion_id
		FROM evaluations e
		JOIN suggestions sg ON sg.id = e.suggestion_id
		WHERE e.evaluator_id=$1 AND sg.paragraph_id=$2
	`, evaluatorID, paragraphID)
	if err != nil {
		return nil, fmt.Errorf("list evaluated suggestions: %w", err)
	}
	defer rows.Close()

	evaluated := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan evaluated suggestion: %w", err)
		}
		evaluated[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evaluated suggestions: %w", err)
	}
	return evaluated, nil
}

const evidenceColumns = `
	id, statement_id, evidence_type, support,
	helpful_count, not_helpful_count, weight, author_name, created_at
`

func scanEvidence(scan func(...any) error) (EvidencePost, error) {
	var item EvidencePost
	err := scan(
		&item.ID,
		&item.StatementID,
		&item.EvidenceType,
		&item.Support,
		&item.HelpfulCount,
		&item.NotHelpfulCount,
		&item.Weight,
		&item.Author,
		&item.CreatedAt,
	)
	return item, err
}

func (s *PostgresStore) InsertEvidencePost(ctx context.Context, item EvidencePost) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO evidence_posts (id, statement_id, evidence_type, support, weight, author_name)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, item.ID, item.StatementID, item.EvidenceType, item.Support, item.Weight, item.Author)
	if err != nil {
		return fmt.Errorf("insert evidence post: %w", err)
	}
	return nil
}

func (s *PostgresStore) VoteEvidence(ctx context.Context, postID string, helpful bool) (EvidencePost, error) {
	item, err := scanEvidence(s.db.QueryRowContext(ctx, `
		UPDATE evidence_posts
		SET helpful_count = helpful_count + CASE WHEN $2 THEN 1 ELSE 0 END,
			not_helpful_count = not_helpful_count + CASE WHEN $2 THEN 0 ELSE 1 END
		WHERE id=$1
		RETURNING `+evidenceColumns+`
	`, postID, helpful).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return EvidencePost{}, fmt.Errorf("evidence post %s: %w", postID, ErrNotFound)
	}
	if err != nil {
		return EvidencePost{}, fmt.Errorf("vote evidence: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) ListEvidenceByStatement(ctx context.Context, statementID string) ([]EvidencePost, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+evidenceColumns+`
		FROM evidence_posts
		WHERE statement_id=$1
		ORDER BY created_at ASC
	`, statementID)
	if err != nil {
		return nil, fmt.Errorf("list evidence posts: %w", err)
	}
	defer rows.Close()

	items := make([]EvidencePost, 0)
	for rows.Next() {
		item, err := scanEvidence(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan evidence post: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evidence posts: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateEvidenceWeight(ctx context.Context, postID string, weight float64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE evidence_posts SET weight=$2 WHERE id=$1`, postID, weight)
	if err != nil {
		return fmt.Errorf("update evidence weight: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateStatementEvidence(ctx context.Context, statementID string, score float64, status string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE suggestions SET evidence_score=$2, evidence_status=$3 WHERE id=$1
	`, statementID, score, status)
	if err != nil {
		return fmt.Errorf("update statement evidence: %w", err)
	}
	return nil
}

const queueColumns = `
	q.id, q.paragraph_id, q.suggestion_id, sg.created_at,
	q.consensus_at_creation, q.current_consensus, q.evaluation_count,
	q.status, q.stale, COALESCE(q.admin_notes, ''), COALESCE(q.resolved_by_name, ''), q.resolved_at, q.created_at
`

func scanQueueItem(scan func(...any) error) (QueueItem, error) {
	var item QueueItem
	err := scan(
		&item.ID,
		&item.ParagraphID,
		&item.SuggestionID,
		&item.SuggestionCreatedAt,
		&item.ConsensusAtCreation,
		&item.CurrentConsensus,
		&item.EvaluationCount,
		&item.Status,
		&item.Stale,
		&item.AdminNotes,
		&item.ResolvedBy,
		&item.ResolvedAt,
		&item.CreatedAt,
	)
	return item, err
}

func (s *PostgresStore) GetQueueItem(ctx context.Context, queueID string) (QueueItem, error) {
	item, err := scanQueueItem(s.db.QueryRowContext(ctx, `
		SELECT `+queueColumns+`
		FROM replacement_queue q
		JOIN suggestions sg ON sg.id = q.suggestion_id
		WHERE q.id=$1
	`, queueID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return QueueItem{}, fmt.Errorf("queue item %s: %w", queueID, ErrNotFound)
	}
	if err != nil {
		return QueueItem{}, fmt.Errorf("get queue item: %w", err)
	}
	return item, nil
}

// GetPendingQueueItem returns the paragraph's single pending item, or
// nil when none exists.
func (s *PostgresStore) GetPendingQueueItem(ctx context.Context, paragraphID string) (*QueueItem, error) {
	item, err := scanQueueItem(s.db.QueryRowContext(ctx, `
		SELECT `+queueColumns+`
		FROM replacement_queue q
		JOIN suggestions sg ON sg.id = q.suggestion_id
		WHERE q.paragraph_id=$1 AND q.status='pending'
		ORDER BY q.created_at DESC
		LIMIT 1
	`, paragraphID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pending queue item: %w", err)
	}
	return &item, nil
}

// joinUniqueConflict makes a unique violation match ErrConflict.
// Two transactions can both read an empty queue and race on the
// single-pending index; the loser should re-read and retry, not fail.
func joinUniqueConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

// EnqueueReplacement supersedes any pending item on the paragraph and
// inserts the new one, atomically, so at most one non-superseded
// pending item exists per paragraph. Superseded items are retained for
// audit. Losing a race on the single-pending index reports ErrConflict.
func (s *PostgresStore) EnqueueReplacement(ctx context.Context, item QueueItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enqueue tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE replacement_queue
		SET status='superseded', resolved_at=NOW()
		WHERE paragraph_id=$1 AND status='pending'
	`, item.ParagraphID); err != nil {
		return fmt.Errorf("supersede pending items: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO replacement_queue (
			id, paragraph_id, suggestion_id,
			consensus_at_creation, current_consensus, evaluation_count, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending')
	`, item.ID, item.ParagraphID, item.SuggestionID,
		item.ConsensusAtCreation, item.CurrentConsensus, item.EvaluationCount); err != nil {
		return fmt.Errorf("insert queue item: %w", joinUniqueConflict(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit enqueue: %w", joinUniqueConflict(err))
	}
	return nil
}

// RefreshQueueConsensus updates a pending item's tracked consensus and
// staleness flag. Resolved items are left untouched.
func (s *PostgresStore) RefreshQueueConsensus(ctx context.Context, queueID string, currentConsensus float64, evaluationCount int, stale bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE replacement_queue
		SET current_consensus=$2, evaluation_count=$3, stale=$4
		WHERE id=$1 AND status='pending'
	`, queueID, currentConsensus, evaluationCount, stale)
	if err != nil {
		return fmt.Errorf("refresh queue consensus: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListQueueItems(ctx context.Context, paragraphID, sortBy string) ([]QueueItem, error) {
	orderBy := "q.created_at DESC"
	switch sortBy {
	case "consensus":
		orderBy = "q.current_consensus DESC, q.created_at DESC"
	case "votes":
		orderBy = "q.evaluation_count DESC, q.created_at DESC"
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+queueColumns+`
		FROM replacement_queue q
		JOIN suggestions sg ON sg.id = q.suggestion_id
		WHERE q.paragraph_id=$1
		ORDER BY `+orderBy+`
	`, paragraphID)
	if err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	defer rows.Close()

	items := make([]QueueItem, 0)
	for rows.Next() {
		item, err := scanQueueItem(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue items: %w", err)
	}
	return items, nil
}

// RejectQueueItem resolves a pending item without touching the
// paragraph. Returns false when the item was not pending anymore.
func (s *PostgresStore) RejectQueueItem(ctx context.Context, queueID, adminNotes, resolvedBy string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE replacement_queue
		SET status='rejected', admin_notes=$2, resolved_by_name=$3, resolved_at=NOW()
		WHERE id=$1 AND status='pending'
	`, queueID, adminNotes, resolvedBy)
	if err != nil {
		return false, fmt.Errorf("reject queue item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reject queue item rows: %w", err)
	}
	return affected > 0, nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
